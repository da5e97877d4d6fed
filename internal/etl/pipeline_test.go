package etl

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cliconfig "github.com/mking01/spark-data-lakes/internal/cli/config"
	intconfig "github.com/mking01/spark-data-lakes/internal/config"
	"github.com/mking01/spark-data-lakes/internal/lake"
	"github.com/mking01/spark-data-lakes/internal/testutil"
	"github.com/mking01/spark-data-lakes/pkg/star"
)

// memStore is an in-memory star.Store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	runs      map[string]*star.Run
	tableRuns map[string]*star.TableRun
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		runs:      make(map[string]*star.Run),
		tableRuns: make(map[string]*star.TableRun),
	}
}

func (m *memStore) CreateRun(env string) (*star.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	run := &star.Run{
		ID:          fmt.Sprintf("run-%d", m.seq),
		Environment: env,
		Status:      star.RunStatusRunning,
		StartedAt:   time.Now(),
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memStore) GetRun(id string) (*star.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return run, nil
}

func (m *memStore) CompleteRun(id string, status star.RunStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	now := time.Now()
	run.Status = status
	run.Error = errMsg
	run.CompletedAt = &now
	return nil
}

func (m *memStore) GetLatestRun(env string) (*star.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *star.Run
	for _, run := range m.runs {
		if env != "" && run.Environment != env {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	return latest, nil
}

func (m *memStore) ListRuns(limit int) ([]*star.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []*star.Run
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	return runs, nil
}

func (m *memStore) RecordTableRun(runID, table string) (*star.TableRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	tr := &star.TableRun{
		ID:        fmt.Sprintf("tr-%d", m.seq),
		RunID:     runID,
		Table:     table,
		Status:    star.TableRunStatusPending,
		StartedAt: time.Now(),
	}
	m.tableRuns[tr.ID] = tr
	return tr, nil
}

func (m *memStore) UpdateTableRun(id string, status star.TableRunStatus, rows, files, durationMS int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.tableRuns[id]
	if !ok {
		return fmt.Errorf("table run %s not found", id)
	}
	tr.Status = status
	tr.Rows = rows
	tr.Files = files
	tr.DurationMS = durationMS
	tr.Error = errMsg
	return nil
}

func (m *memStore) GetTableRunsForRun(runID string) ([]*star.TableRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var trs []*star.TableRun
	for _, tr := range m.tableRuns {
		if tr.RunID == runID {
			trs = append(trs, tr)
		}
	}
	return trs, nil
}

func (m *memStore) Close() error { return nil }

func seedInput(t *testing.T, root string) {
	t.Helper()
	writeInputFile(t, root, "song_data/A/A/A/TRAAAAW128F429D538.json",
		`{"num_songs": 1, "artist_id": "A1", "artist_name": "First Artist", "artist_location": "Memphis, TN", "song_id": "SOa", "title": "Test Song", "duration": 180.0, "year": 2000}
{"num_songs": 1, "artist_id": "A2", "artist_name": "Second Artist", "song_id": "SOb", "title": "Other Song", "duration": 210.5, "year": 1999}`)

	writeInputFile(t, root, "log_data/2018/11/2018-11-15-events.json",
		`{"artist": "First Artist", "auth": "Logged In", "firstName": "Ryan", "gender": "M", "itemInSession": 0, "lastName": "Smith", "length": 180.0, "level": "free", "location": "San Jose-Sunnyvale-Santa Clara, CA", "method": "PUT", "page": "NextSong", "registration": 1541016707796.0, "sessionId": 583, "song": "Test Song", "status": 200, "ts": 1542241826796, "userAgent": "Mozilla/5.0", "userId": "26"}
{"artist": null, "auth": "Logged In", "firstName": "Ryan", "gender": "M", "itemInSession": 1, "lastName": "Smith", "level": "free", "location": "San Jose-Sunnyvale-Santa Clara, CA", "method": "GET", "page": "Home", "registration": 1541016707796.0, "sessionId": 583, "status": 200, "ts": 1542241830796, "userAgent": "Mozilla/5.0", "userId": "26"}
{"artist": "Nobody Known", "auth": "Logged In", "firstName": "Tegan", "gender": "F", "itemInSession": 2, "lastName": "Levine", "length": 99.9, "level": "paid", "location": "Portland-South Portland, ME", "method": "PUT", "page": "NextSong", "registration": 1540794356796.0, "sessionId": 602, "song": "Nowhere Song", "status": 200, "ts": 1542242926796, "userAgent": "Mozilla/5.0", "userId": "80"}`)
}

func testPipeline(t *testing.T, inRoot, outRoot string, store star.Store) *Pipeline {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	cfg := &cliconfig.Config{
		InputRoot:   inRoot,
		OutputRoot:  outRoot,
		Region:      intconfig.DefaultRegion,
		Workers:     2,
		Compression: "snappy",
	}
	session, err := NewSession(context.Background(), cfg, intconfig.Credentials{}, logger)
	require.NoError(t, err)
	return New(session, store, "dev", logger)
}

func TestPipelineRunAllTables(t *testing.T) {
	inRoot, outRoot := t.TempDir(), t.TempDir()
	seedInput(t, inRoot)
	store := newMemStore()

	p := testPipeline(t, inRoot, outRoot, store)
	summary, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, star.RunStatusCompleted, summary.Status)
	assert.False(t, summary.Failed())
	require.Len(t, summary.Tables, 5)
	for _, tr := range summary.Tables {
		assert.Equal(t, star.TableRunStatusSuccess, tr.Status, tr.Table)
	}
	assert.Zero(t, summary.SkippedSongRecords)
	assert.Zero(t, summary.SkippedEventRecords)

	// Read the lake back and check the star schema contents.
	out := p.session.Out

	songs, err := lake.ReadTable[star.SongRow](context.Background(), out, "songs/*/*/*.parquet")
	require.NoError(t, err)
	assert.Len(t, songs, 2)

	artists, err := lake.ReadTable[star.ArtistRow](context.Background(), out, "artists/*.parquet")
	require.NoError(t, err)
	assert.Len(t, artists, 2)

	users, err := lake.ReadTable[star.UserRow](context.Background(), out, "users/*.parquet")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	times, err := lake.ReadTable[star.TimeRow](context.Background(), out, "time/*/*/*.parquet")
	require.NoError(t, err)
	assert.Len(t, times, 2)

	plays, err := lake.ReadTable[star.SongplayRow](context.Background(), out, "songplays/*/*/*.parquet")
	require.NoError(t, err)
	require.Len(t, plays, 2)

	var matched, unmatched int
	for _, play := range plays {
		if play.SongID != nil {
			matched++
			assert.NotNil(t, play.ArtistID)
		} else {
			unmatched++
			assert.Nil(t, play.ArtistID)
		}
	}
	assert.Equal(t, 1, matched)
	assert.Equal(t, 1, unmatched)

	// Ledger reflects the same outcomes.
	run, err := store.GetLatestRun("dev")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, star.RunStatusCompleted, run.Status)

	trs, err := store.GetTableRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, trs, 5)
	for _, tr := range trs {
		assert.Equal(t, star.TableRunStatusSuccess, tr.Status, tr.Table)
		assert.Positive(t, tr.Rows, tr.Table)
		assert.Positive(t, tr.Files, tr.Table)
	}
}

func TestPipelineSelection(t *testing.T) {
	inRoot, outRoot := t.TempDir(), t.TempDir()
	seedInput(t, inRoot)
	store := newMemStore()

	p := testPipeline(t, inRoot, outRoot, store)
	summary, err := p.Run(context.Background(), Options{Tables: []string{star.TableUsers}})
	require.NoError(t, err)

	require.Len(t, summary.Tables, 1)
	assert.Equal(t, star.TableUsers, summary.Tables[0].Table)
	assert.Equal(t, int64(2), summary.Tables[0].Rows)

	// Nothing else was written.
	_, err = lake.ReadTable[star.SongRow](context.Background(), p.session.Out, "songs/*/*/*.parquet")
	require.NoError(t, err)
}

func TestPipelineSongplaysOnlyRestoresCatalog(t *testing.T) {
	inRoot, outRoot := t.TempDir(), t.TempDir()
	seedInput(t, inRoot)
	store := newMemStore()

	p := testPipeline(t, inRoot, outRoot, store)

	// Build the dimensions first, then the fact alone in a second run.
	_, err := p.Run(context.Background(), Options{Tables: []string{star.TableSongs, star.TableArtists}})
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), Options{Tables: []string{star.TableSongplays}})
	require.NoError(t, err)
	require.Len(t, summary.Tables, 1)
	assert.Equal(t, star.TableRunStatusSuccess, summary.Tables[0].Status)

	plays, err := lake.ReadTable[star.SongplayRow](context.Background(), p.session.Out, "songplays/*/*/*.parquet")
	require.NoError(t, err)
	require.Len(t, plays, 2)

	var matched int
	for _, play := range plays {
		if play.SongID != nil {
			matched++
		}
	}
	assert.Equal(t, 1, matched)
}

func TestPipelineFailureMarksSkipped(t *testing.T) {
	inRoot, outRoot := t.TempDir(), t.TempDir()
	// Song catalog is present but a log file violates the schema:
	// a NextSong event without a userId.
	writeInputFile(t, inRoot, "song_data/A/A/A/ok.json",
		`{"num_songs": 1, "artist_id": "A1", "artist_name": "First Artist", "song_id": "SOa", "title": "Test Song", "duration": 180.0, "year": 2000}`)
	writeInputFile(t, inRoot, "log_data/2018/11/bad.json",
		`{"page": "NextSong", "level": "free", "sessionId": 1, "ts": 1542241826796, "userId": ""}`)
	store := newMemStore()

	p := testPipeline(t, inRoot, outRoot, store)
	summary, err := p.Run(context.Background(), Options{})
	require.Error(t, err)

	assert.Equal(t, star.RunStatusFailed, summary.Status)
	assert.True(t, summary.Failed())

	byTable := make(map[string]star.TableRunStatus)
	for _, tr := range summary.Tables {
		byTable[tr.Table] = tr.Status
	}
	// The catalog phase ran to completion before the log decode failed.
	assert.Equal(t, star.TableRunStatusSuccess, byTable[star.TableSongs])
	assert.Equal(t, star.TableRunStatusSuccess, byTable[star.TableArtists])
	assert.Equal(t, star.TableRunStatusSkipped, byTable[star.TableUsers])
	assert.Equal(t, star.TableRunStatusSkipped, byTable[star.TableTime])
	assert.Equal(t, star.TableRunStatusSkipped, byTable[star.TableSongplays])

	run, err := store.GetLatestRun("dev")
	require.NoError(t, err)
	assert.Equal(t, star.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "schema violation")
}

func TestPipelineUnknownTable(t *testing.T) {
	store := newMemStore()
	p := testPipeline(t, t.TempDir(), t.TempDir(), store)

	_, err := p.Run(context.Background(), Options{Tables: []string{"nonsense"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}
