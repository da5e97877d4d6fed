// Package config holds shared defaults and the storage credentials loader.
package config

// Input layout. Song metadata nests four directory levels deep, activity
// logs three; the globs cross exactly that depth.
const (
	DefaultSongGlob = "song_data/*/*/*/*.json"
	DefaultLogGlob  = "log_data/*/*/*.json"
)

// Default configuration values.
const (
	DefaultCredentialsFile = "dl.cfg"
	DefaultStateFile       = ".sparkify/state.db"
	DefaultEnv             = "dev"
	DefaultRegion          = "us-west-2"
	DefaultWorkers         = 4
	DefaultCompression     = "snappy"
	DefaultOutput          = "table"
)
