package star

import (
	"errors"
	"fmt"
	"strconv"
)

// PageNextSong is the event page value that marks an actual song play.
// Only these events feed the users, time, and songplays tables.
const PageNextSong = "NextSong"

// RawSong is a single newline-delimited JSON record from the song catalog
// (song_data/*/*/*/*.json). Latitude and longitude are nullable in the
// source and stay pointers here.
type RawSong struct {
	NumSongs        int32    `json:"num_songs"`
	ArtistID        string   `json:"artist_id"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	ArtistLocation  string   `json:"artist_location"`
	ArtistName      string   `json:"artist_name"`
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	Duration        float64  `json:"duration"`
	Year            int32    `json:"year"`
}

// Validate checks the required fields of the catalog schema.
func (r *RawSong) Validate() error {
	if r.ArtistID == "" {
		return errors.New("song record missing required artist_id")
	}
	if r.SongID == "" {
		return errors.New("song record missing required song_id")
	}
	return nil
}

// RawEvent is a single newline-delimited JSON record from the user
// activity logs (log_data/*/*/*.json). UserID arrives as a string-encoded
// integer and is empty for anonymous sessions.
type RawEvent struct {
	Artist        string  `json:"artist"`
	Auth          string  `json:"auth"`
	FirstName     string  `json:"firstName"`
	Gender        string  `json:"gender"`
	ItemInSession int32   `json:"itemInSession"`
	LastName      string  `json:"lastName"`
	Length        float64 `json:"length"`
	Level         string  `json:"level"`
	Location      string  `json:"location"`
	Method        string  `json:"method"`
	Page          string  `json:"page"`
	Registration  float64 `json:"registration"`
	SessionID     int32   `json:"sessionId"`
	Song          string  `json:"song"`
	Status        int32   `json:"status"`
	TS            int64   `json:"ts"`
	UserAgent     string  `json:"userAgent"`
	UserID        string  `json:"userId"`
}

// Validate checks the required fields of the log schema. Anonymous events
// (empty userId) are valid records; they are excluded later by the
// NextSong filter, which only ever matches authenticated plays.
func (r *RawEvent) Validate() error {
	if r.TS <= 0 {
		return fmt.Errorf("event record has invalid ts %d", r.TS)
	}
	if r.Page == PageNextSong {
		if _, err := r.UserIDInt(); err != nil {
			return err
		}
	}
	return nil
}

// UserIDInt parses the string-encoded user id.
func (r *RawEvent) UserIDInt() (int64, error) {
	if r.UserID == "" {
		return 0, errors.New("event record missing required userId")
	}
	id, err := strconv.ParseInt(r.UserID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("event record has non-numeric userId %q", r.UserID)
	}
	return id, nil
}

// IsNextSong reports whether the event is a song play.
func (r *RawEvent) IsNextSong() bool {
	return r.Page == PageNextSong
}
