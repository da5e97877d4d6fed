// Package star defines the star schema produced by the pipeline: the five
// output tables (songs, artists, users, time, songplays), the raw input
// records they are derived from, and the run-ledger types used to track
// pipeline executions.
//
// The Golden Rule: pkg/star imports ONLY the standard library. Transform
// logic, storage backends, and file formats live elsewhere and depend on
// this package, never the other way around.
package star

// Table names, in dependency order. Dimensions first, the fact table last.
const (
	TableSongs     = "songs"
	TableArtists   = "artists"
	TableUsers     = "users"
	TableTime      = "time"
	TableSongplays = "songplays"
)

// AllTables lists every output table in canonical build order.
var AllTables = []string{TableSongs, TableArtists, TableUsers, TableTime, TableSongplays}

// IsTable reports whether name is a known output table.
func IsTable(name string) bool {
	for _, t := range AllTables {
		if t == name {
			return true
		}
	}
	return false
}

// SongRow is one row of the songs dimension. SongID is a generated
// surrogate key, dense and assigned in first-seen order within a run.
// Partitioned on write by year, then artist_id.
type SongRow struct {
	SongID   int64   `parquet:"name=song_id, type=INT64"`
	Title    string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ArtistID string  `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Year     int32   `parquet:"name=year, type=INT32"`
	Duration float64 `parquet:"name=duration, type=DOUBLE"`
}

// ArtistRow is one row of the artists dimension. ArtistID is the natural
// key from the song catalog; it is the join key for songplays and is
// never replaced by a surrogate.
type ArtistRow struct {
	ArtistID  string   `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Name      string   `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Location  string   `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude  *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// UserRow is one row of the users dimension. Level reflects the user's
// most recent event, so upgrades from free to paid show the paid tier.
type UserRow struct {
	UserID    int64  `parquet:"name=user_id, type=INT64"`
	FirstName string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender    string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Level     string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

// TimeRow is one row of the time dimension: a distinct event start time
// decomposed into calendar parts. StartTime is epoch milliseconds (UTC).
// Partitioned on write by year, then month.
type TimeRow struct {
	StartTime int64  `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Hour      int32  `parquet:"name=hour, type=INT32"`
	Day       int32  `parquet:"name=day, type=INT32"`
	Week      int32  `parquet:"name=week, type=INT32"`
	Month     int32  `parquet:"name=month, type=INT32"`
	Year      int32  `parquet:"name=year, type=INT32"`
	Weekday   string `parquet:"name=weekday, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

// SongplayRow is one row of the songplays fact table: a single NextSong
// event resolved against the dimensions. SongID and ArtistID are nil when
// the played title or artist has no exact match in the catalog; the row is
// kept either way. Year and Month are derived from StartTime and drive the
// write partitioning.
type SongplayRow struct {
	StartTime int64   `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	UserID    int64   `parquet:"name=user_id, type=INT64"`
	Level     string  `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SongID    *int64  `parquet:"name=song_id, type=INT64, repetitiontype=OPTIONAL"`
	ArtistID  *string `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SessionID int32   `parquet:"name=session_id, type=INT32"`
	Location  string  `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserAgent string  `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year      int32   `parquet:"name=year, type=INT32"`
	Month     int32   `parquet:"name=month, type=INT32"`
}
