package etl

import (
	"fmt"
	"sort"

	"github.com/mking01/spark-data-lakes/pkg/star"
)

// EventTables holds the relations derived from the activity logs.
type EventTables struct {
	Users     []star.UserRow
	Time      []star.TimeRow
	Songplays []star.SongplayRow

	// Plays counts the NextSong events that survived the filter.
	Plays int
	// SongMatches and ArtistMatches count fact rows whose join against
	// the catalog resolved. Misses keep the row with a NULL key.
	SongMatches   int
	ArtistMatches int
}

// FilterNextSong keeps only song-play events. Every derivation downstream
// of the logs operates on this filtered set.
func FilterNextSong(events []star.RawEvent) []star.RawEvent {
	var plays []star.RawEvent
	for _, e := range events {
		if e.IsNextSong() {
			plays = append(plays, e)
		}
	}
	return plays
}

// BuildEventTables derives users, time, and songplays from raw log events.
// The catalog provides the song and artist lookups for the fact join;
// unmatched titles or names yield NULL keys, never dropped rows.
func BuildEventTables(events []star.RawEvent, catalog *SongTables) (*EventTables, error) {
	plays := FilterNextSong(events)
	t := &EventTables{Plays: len(plays)}

	users, err := buildUsers(plays)
	if err != nil {
		return nil, err
	}
	t.Users = users
	t.Time = buildTime(plays)

	t.Songplays = make([]star.SongplayRow, 0, len(plays))
	for _, e := range plays {
		userID, err := e.UserIDInt()
		if err != nil {
			return nil, fmt.Errorf("invalid songplay event: %w", err)
		}

		row := star.SongplayRow{
			StartTime: e.TS,
			UserID:    userID,
			Level:     e.Level,
			SessionID: e.SessionID,
			Location:  e.Location,
			UserAgent: e.UserAgent,
		}

		parts := PartsOf(FromMillis(e.TS))
		row.Year = parts.Year
		row.Month = parts.Month

		if songID, ok := catalog.SongIDByTitle(e.Song); ok {
			id := songID
			row.SongID = &id
			t.SongMatches++
		}
		if artistID, ok := catalog.ArtistIDByName(e.Artist); ok {
			id := artistID
			row.ArtistID = &id
			t.ArtistMatches++
		}

		t.Songplays = append(t.Songplays, row)
	}

	return t, nil
}

// buildUsers deduplicates on user_id in first-seen order. The row's
// fields come from the user's latest event, so level reflects the most
// recent subscription tier.
func buildUsers(plays []star.RawEvent) ([]star.UserRow, error) {
	index := make(map[int64]int)
	latest := make(map[int64]int64)
	var users []star.UserRow

	for _, e := range plays {
		userID, err := e.UserIDInt()
		if err != nil {
			return nil, fmt.Errorf("invalid songplay event: %w", err)
		}

		row := star.UserRow{
			UserID:    userID,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Gender:    e.Gender,
			Level:     e.Level,
		}

		i, seen := index[userID]
		if !seen {
			index[userID] = len(users)
			latest[userID] = e.TS
			users = append(users, row)
			continue
		}
		if e.TS >= latest[userID] {
			latest[userID] = e.TS
			users[i] = row
		}
	}

	return users, nil
}

// buildTime projects distinct start times, ascending, decomposed into
// calendar parts.
func buildTime(plays []star.RawEvent) []star.TimeRow {
	distinct := make(map[int64]bool)
	for _, e := range plays {
		distinct[e.TS] = true
	}

	stamps := make([]int64, 0, len(distinct))
	for ts := range distinct {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	rows := make([]star.TimeRow, len(stamps))
	for i, ts := range stamps {
		rows[i] = TimeRowFromMillis(ts)
	}
	return rows
}
