package etl

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	intconfig "github.com/mking01/spark-data-lakes/internal/config"
	"github.com/mking01/spark-data-lakes/internal/lake"
	"github.com/mking01/spark-data-lakes/internal/plan"
	"github.com/mking01/spark-data-lakes/pkg/star"
)

// Read-back globs for the catalog dimensions on the lake.
const (
	songsGlob   = "songs/*/*/*.parquet"
	artistsGlob = "artists/*.parquet"
)

// Pipeline sequences the two transforms against a session and records
// every outcome in the run ledger.
type Pipeline struct {
	session  *Session
	store    star.Store
	env      string
	songGlob string
	logGlob  string
	logger   *slog.Logger
}

// Options selects which tables a run builds. An empty Tables builds all
// five. Downstream additionally pulls in transitive dependents of the
// selection.
type Options struct {
	Tables     []string
	Downstream bool
}

// TableResult is the outcome of one table in a run.
type TableResult struct {
	Table    string
	Status   star.TableRunStatus
	Rows     int64
	Files    int64
	Duration time.Duration
	Error    string
}

// Summary is the outcome of a whole run.
type Summary struct {
	RunID    string
	Status   star.RunStatus
	Tables   []TableResult
	Duration time.Duration

	// Malformed input lines skipped per source family.
	SkippedSongRecords  int64
	SkippedEventRecords int64
}

// Failed reports whether the run ended in failure.
func (s *Summary) Failed() bool {
	return s.Status == star.RunStatusFailed
}

// New creates a pipeline over the session, recording into store under the
// named environment.
func New(session *Session, store star.Store, env string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		session:  session,
		store:    store,
		env:      env,
		songGlob: intconfig.DefaultSongGlob,
		logGlob:  intconfig.DefaultLogGlob,
		logger:   logger,
	}
}

// run tracks the ledger ids and in-memory results of one execution.
type runState struct {
	mu      sync.Mutex
	ledger  map[string]string // table -> TableRun id
	results map[string]*TableResult
	order   []string
}

// Run executes the selected tables in dependency order: the song-catalog
// phase first, then the event-log phase, writing each produced table and
// recording per-table transitions in the ledger. The returned summary is
// valid even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	started := time.Now()

	order, err := plan.Order(opts.Tables, opts.Downstream)
	if err != nil {
		return nil, err
	}

	run, err := p.store.CreateRun(p.env)
	if err != nil {
		return nil, err
	}
	p.logger.Info("starting run", slog.String("run_id", run.ID), slog.Any("tables", order))

	st := &runState{
		ledger:  make(map[string]string, len(order)),
		results: make(map[string]*TableResult, len(order)),
		order:   order,
	}
	for _, table := range order {
		tr, err := p.store.RecordTableRun(run.ID, table)
		if err != nil {
			return nil, err
		}
		st.ledger[table] = tr.ID
		st.results[table] = &TableResult{Table: table, Status: star.TableRunStatusPending}
	}

	summary := &Summary{RunID: run.ID}
	runErr := p.execute(ctx, st, summary)

	// Anything never started was skipped because an earlier phase failed.
	for _, table := range order {
		if st.results[table].Status == star.TableRunStatusPending {
			st.results[table].Status = star.TableRunStatusSkipped
			p.updateLedger(st, table, star.TableRunStatusSkipped, lake.Result{}, 0, "earlier phase failed")
		}
	}

	status := star.RunStatusCompleted
	errMsg := ""
	if runErr != nil {
		status = star.RunStatusFailed
		errMsg = runErr.Error()
	}
	if err := p.store.CompleteRun(run.ID, status, errMsg); err != nil {
		p.logger.Error("failed to record run completion", slog.String("run_id", run.ID), slog.String("error", err.Error()))
	}

	summary.Status = status
	summary.Duration = time.Since(started)
	for _, table := range order {
		summary.Tables = append(summary.Tables, *st.results[table])
	}

	if runErr != nil {
		p.logger.Info("run failed", slog.String("run_id", run.ID), slog.String("error", runErr.Error()))
	} else {
		p.logger.Info("run completed", slog.String("run_id", run.ID), slog.Duration("elapsed", summary.Duration))
	}
	return summary, runErr
}

func (p *Pipeline) execute(ctx context.Context, st *runState, summary *Summary) error {
	need := make(map[string]bool, len(st.order))
	for _, table := range st.order {
		need[table] = true
	}

	s := p.session

	// Song-catalog phase. The raw catalog is also decoded when only
	// songs or artists are selected; a songplays-only run instead
	// restores the join indexes from the dimensions already on the lake.
	var catalog *SongTables
	if need[star.TableSongs] || need[star.TableArtists] {
		records, skipped, err := decodeFiles(ctx, s.In, p.songGlob, s.Workers, (*star.RawSong).Validate, p.logger)
		if err != nil {
			return err
		}
		summary.SkippedSongRecords = skipped
		catalog = BuildSongTables(records)
		p.logger.Info("processed song catalog",
			slog.Int("records", len(records)),
			slog.Int64("skipped", skipped),
			slog.Int("songs", len(catalog.Songs)),
			slog.Int("artists", len(catalog.Artists)))

		eg, egctx := errgroup.WithContext(ctx)
		if need[star.TableSongs] {
			eg.Go(func() error {
				return runTable(egctx, p, st, star.TableSongs, func(ctx context.Context) (lake.Result, error) {
					return lake.WriteTable(ctx, s.Writer, s.Out, star.TableSongs, catalog.Songs, songPartitioner)
				})
			})
		}
		if need[star.TableArtists] {
			eg.Go(func() error {
				return runTable(egctx, p, st, star.TableArtists, func(ctx context.Context) (lake.Result, error) {
					return lake.WriteTable[star.ArtistRow](ctx, s.Writer, s.Out, star.TableArtists, catalog.Artists, nil)
				})
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}

	if !need[star.TableUsers] && !need[star.TableTime] && !need[star.TableSongplays] {
		return nil
	}

	// Event-log phase.
	if need[star.TableSongplays] && catalog == nil {
		songs, err := lake.ReadTable[star.SongRow](ctx, s.Out, songsGlob)
		if err != nil {
			return err
		}
		artists, err := lake.ReadTable[star.ArtistRow](ctx, s.Out, artistsGlob)
		if err != nil {
			return err
		}
		catalog = RestoreSongTables(songs, artists)
	}
	if catalog == nil {
		catalog = &SongTables{}
	}

	events, skipped, err := decodeFiles(ctx, s.In, p.logGlob, s.Workers, (*star.RawEvent).Validate, p.logger)
	if err != nil {
		return err
	}
	summary.SkippedEventRecords = skipped

	tables, err := BuildEventTables(events, catalog)
	if err != nil {
		return err
	}
	p.logger.Info("processed activity logs",
		slog.Int("events", len(events)),
		slog.Int64("skipped", skipped),
		slog.Int("plays", tables.Plays),
		slog.Int("song_matches", tables.SongMatches),
		slog.Int("artist_matches", tables.ArtistMatches))

	eg, egctx := errgroup.WithContext(ctx)
	if need[star.TableUsers] {
		eg.Go(func() error {
			return runTable(egctx, p, st, star.TableUsers, func(ctx context.Context) (lake.Result, error) {
				return lake.WriteTable[star.UserRow](ctx, s.Writer, s.Out, star.TableUsers, tables.Users, nil)
			})
		})
	}
	if need[star.TableTime] {
		eg.Go(func() error {
			return runTable(egctx, p, st, star.TableTime, func(ctx context.Context) (lake.Result, error) {
				return lake.WriteTable(ctx, s.Writer, s.Out, star.TableTime, tables.Time, timePartitioner)
			})
		})
	}
	if need[star.TableSongplays] {
		eg.Go(func() error {
			return runTable(egctx, p, st, star.TableSongplays, func(ctx context.Context) (lake.Result, error) {
				return lake.WriteTable(ctx, s.Writer, s.Out, star.TableSongplays, tables.Songplays, songplayPartitioner)
			})
		})
	}
	return eg.Wait()
}

// runTable wraps one table write with ledger transitions.
func runTable(ctx context.Context, p *Pipeline, st *runState, table string, write func(context.Context) (lake.Result, error)) error {
	p.updateLedger(st, table, star.TableRunStatusRunning, lake.Result{}, 0, "")
	started := time.Now()

	result, err := write(ctx)
	elapsed := time.Since(started)

	if err != nil {
		p.updateLedger(st, table, star.TableRunStatusFailed, lake.Result{}, elapsed, err.Error())
		return err
	}

	p.updateLedger(st, table, star.TableRunStatusSuccess, result, elapsed, "")
	p.logger.Info("built table",
		slog.String("table", table),
		slog.Int64("rows", result.Rows),
		slog.Int64("files", result.Files),
		slog.Duration("elapsed", elapsed))
	return nil
}

// updateLedger records a table transition in memory and, best effort, in
// the store. Ledger write failures are logged but never mask a pipeline
// error.
func (p *Pipeline) updateLedger(st *runState, table string, status star.TableRunStatus, result lake.Result, elapsed time.Duration, errMsg string) {
	st.mu.Lock()
	r := st.results[table]
	r.Status = status
	r.Rows = result.Rows
	r.Files = result.Files
	r.Duration = elapsed
	r.Error = errMsg
	id := st.ledger[table]
	st.mu.Unlock()

	if err := p.store.UpdateTableRun(id, status, result.Rows, result.Files, elapsed.Milliseconds(), errMsg); err != nil {
		p.logger.Error("failed to record table run",
			slog.String("table", table),
			slog.String("error", err.Error()))
	}
}

func songPartitioner(row star.SongRow) []lake.Partition {
	return []lake.Partition{
		{Key: "year", Value: strconv.FormatInt(int64(row.Year), 10)},
		{Key: "artist_id", Value: row.ArtistID},
	}
}

func timePartitioner(row star.TimeRow) []lake.Partition {
	return []lake.Partition{
		{Key: "year", Value: strconv.FormatInt(int64(row.Year), 10)},
		{Key: "month", Value: strconv.FormatInt(int64(row.Month), 10)},
	}
}

func songplayPartitioner(row star.SongplayRow) []lake.Partition {
	return []lake.Partition{
		{Key: "year", Value: strconv.FormatInt(int64(row.Year), 10)},
		{Key: "month", Value: strconv.FormatInt(int64(row.Month), 10)},
	}
}
