package etl

import (
	"github.com/mking01/spark-data-lakes/pkg/star"
)

// songKey is the dedup key of the songs projection.
type songKey struct {
	title    string
	artistID string
	year     int32
	duration float64
}

// SongTables holds the two catalog dimensions plus the lookup indexes the
// event transform joins against.
type SongTables struct {
	Songs   []star.SongRow
	Artists []star.ArtistRow

	songIDByTitle  map[string]int64
	artistIDByName map[string]string
}

// BuildSongTables projects and deduplicates raw catalog records into the
// songs and artists dimensions.
//
// Songs dedup on the full (title, artist_id, year, duration) projection
// and receive a dense int64 surrogate id in first-seen order. Artists
// dedup on their natural artist_id, which is kept as-is: it is the key
// songplays joins on, so it must never be replaced by a surrogate.
func BuildSongTables(records []star.RawSong) *SongTables {
	t := &SongTables{
		songIDByTitle:  make(map[string]int64),
		artistIDByName: make(map[string]string),
	}

	seenSongs := make(map[songKey]bool)
	seenArtists := make(map[string]bool)

	for _, r := range records {
		key := songKey{title: r.Title, artistID: r.ArtistID, year: r.Year, duration: r.Duration}
		if !seenSongs[key] {
			seenSongs[key] = true
			id := int64(len(t.Songs))
			t.Songs = append(t.Songs, star.SongRow{
				SongID:   id,
				Title:    r.Title,
				ArtistID: r.ArtistID,
				Year:     r.Year,
				Duration: r.Duration,
			})
			if _, ok := t.songIDByTitle[r.Title]; !ok {
				t.songIDByTitle[r.Title] = id
			}
		}

		if !seenArtists[r.ArtistID] {
			seenArtists[r.ArtistID] = true
			t.Artists = append(t.Artists, star.ArtistRow{
				ArtistID:  r.ArtistID,
				Name:      r.ArtistName,
				Location:  r.ArtistLocation,
				Latitude:  r.ArtistLatitude,
				Longitude: r.ArtistLongitude,
			})
			if _, ok := t.artistIDByName[r.ArtistName]; !ok {
				t.artistIDByName[r.ArtistName] = r.ArtistID
			}
		}
	}

	return t
}

// RestoreSongTables rebuilds the join indexes from dimension rows read
// back off the lake, for runs that build songplays without rebuilding the
// catalog in the same run.
func RestoreSongTables(songs []star.SongRow, artists []star.ArtistRow) *SongTables {
	t := &SongTables{
		Songs:          songs,
		Artists:        artists,
		songIDByTitle:  make(map[string]int64),
		artistIDByName: make(map[string]string),
	}
	for _, s := range songs {
		if _, ok := t.songIDByTitle[s.Title]; !ok {
			t.songIDByTitle[s.Title] = s.SongID
		}
	}
	for _, a := range artists {
		if _, ok := t.artistIDByName[a.Name]; !ok {
			t.artistIDByName[a.Name] = a.ArtistID
		}
	}
	return t
}

// SongIDByTitle resolves a played song title against the songs dimension.
// Exact string equality; when several catalog songs share a title, the
// first seen wins.
func (t *SongTables) SongIDByTitle(title string) (int64, bool) {
	id, ok := t.songIDByTitle[title]
	return id, ok
}

// ArtistIDByName resolves a played artist name against the artists
// dimension. Exact string equality.
func (t *SongTables) ArtistIDByName(name string) (string, bool) {
	id, ok := t.artistIDByName[name]
	return id, ok
}
