package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mking01/spark-data-lakes/pkg/star"
)

func playEvent(userID string, ts int64, song, artist, level string) star.RawEvent {
	return star.RawEvent{
		Page:      star.PageNextSong,
		Auth:      "Logged In",
		UserID:    userID,
		TS:        ts,
		Song:      song,
		Artist:    artist,
		Level:     level,
		SessionID: 583,
		Location:  "San Francisco-Oakland-Hayward, CA",
		UserAgent: `"Mozilla/5.0"`,
	}
}

func TestFilterNextSong(t *testing.T) {
	events := []star.RawEvent{
		playEvent("26", 1542241826796, "Test Song", "First Artist", "free"),
		{Page: "Home", TS: 1542241826796},
		{Page: "Logout", TS: 1542241827796},
		playEvent("26", 1542242926796, "Other Song", "Second Artist", "free"),
	}

	plays := FilterNextSong(events)
	require.Len(t, plays, 2)
	for _, e := range plays {
		assert.True(t, e.IsNextSong())
	}
}

func TestBuildEventTablesJoins(t *testing.T) {
	catalog := BuildSongTables([]star.RawSong{
		rawSong("SOa", "Test Song", "A1", "First Artist", 2000, 180.0),
	})

	events := []star.RawEvent{
		playEvent("26", 1542241826796, "Test Song", "First Artist", "free"),
		playEvent("26", 1542242926796, "Unknown Song", "Unknown Artist", "free"),
		{Page: "Home", TS: 1542241826796, UserID: "26"},
	}

	tables, err := BuildEventTables(events, catalog)
	require.NoError(t, err)

	assert.Equal(t, 2, tables.Plays)
	assert.Equal(t, 1, tables.SongMatches)
	assert.Equal(t, 1, tables.ArtistMatches)

	require.Len(t, tables.Songplays, 2)

	matched := tables.Songplays[0]
	require.NotNil(t, matched.SongID)
	assert.Equal(t, int64(0), *matched.SongID)
	require.NotNil(t, matched.ArtistID)
	assert.Equal(t, "A1", *matched.ArtistID)
	assert.Equal(t, int32(2018), matched.Year)
	assert.Equal(t, int32(11), matched.Month)
	assert.Equal(t, int64(26), matched.UserID)

	// The unmatched play is kept with NULL keys, not dropped.
	unmatched := tables.Songplays[1]
	assert.Nil(t, unmatched.SongID)
	assert.Nil(t, unmatched.ArtistID)
}

func TestBuildEventTablesUsersLatestLevelWins(t *testing.T) {
	events := []star.RawEvent{
		playEvent("26", 1542241826796, "a", "x", "free"),
		playEvent("80", 1542241926796, "b", "y", "paid"),
		// Later event for user 26 after an upgrade.
		playEvent("26", 1542243926796, "c", "z", "paid"),
	}

	tables, err := BuildEventTables(events, &SongTables{})
	require.NoError(t, err)

	require.Len(t, tables.Users, 2)
	// First-seen order with latest-event fields.
	assert.Equal(t, int64(26), tables.Users[0].UserID)
	assert.Equal(t, "paid", tables.Users[0].Level)
	assert.Equal(t, int64(80), tables.Users[1].UserID)
	assert.Equal(t, "paid", tables.Users[1].Level)
}

func TestBuildEventTablesTimeDistinctSorted(t *testing.T) {
	events := []star.RawEvent{
		playEvent("26", 1542242926796, "a", "x", "free"),
		playEvent("80", 1542241826796, "b", "y", "free"),
		// Duplicate stamp across two users collapses to one row.
		playEvent("26", 1542241826796, "c", "z", "free"),
	}

	tables, err := BuildEventTables(events, &SongTables{})
	require.NoError(t, err)

	require.Len(t, tables.Time, 2)
	assert.Equal(t, int64(1542241826796), tables.Time[0].StartTime)
	assert.Equal(t, int64(1542242926796), tables.Time[1].StartTime)
	assert.Equal(t, "Thursday", tables.Time[0].Weekday)
}

func TestBuildEventTablesNonPlayEventsExcluded(t *testing.T) {
	events := []star.RawEvent{
		{Page: "Home", TS: 1542241826796, UserID: "26", Level: "free"},
		{Page: "Login", TS: 1542241926796},
	}

	tables, err := BuildEventTables(events, &SongTables{})
	require.NoError(t, err)

	assert.Empty(t, tables.Users)
	assert.Empty(t, tables.Time)
	assert.Empty(t, tables.Songplays)
	assert.Zero(t, tables.Plays)
}
