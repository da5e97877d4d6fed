package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("input-root", "", "")
	flags.String("output-root", "", "")
	flags.String("credentials-file", "", "")
	flags.String("region", "", "")
	flags.String("state", "", "")
	flags.String("env", "", "")
	flags.Int("workers", 0, "")
	flags.String("compression", "", "")
	flags.Bool("verbose", false, "")
	flags.String("output", "", "")
	return flags
}

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "sparkify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "input_root: s3://udacity-dend\noutput_root: lake\n")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "s3://udacity-dend", cfg.InputRoot)
	assert.Equal(t, filepath.Join(dir, "lake"), cfg.OutputRoot)
	assert.Equal(t, filepath.Join(dir, "dl.cfg"), cfg.CredentialsFile)
	assert.Equal(t, filepath.Join(dir, ".sparkify/state.db"), cfg.StatePath)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "input_root: in\noutput_root: lake\nworkers: 2\nenvironment: staging\n")

	flags := newTestFlags()
	require.NoError(t, flags.Parse([]string{"--workers", "8", "--env", "prod", "--compression", "zstd"}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "zstd", cfg.Compression)
}

func TestLoadConfig_EnvVarsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "input_root: in\noutput_root: lake\nregion: us-east-1\n")

	t.Setenv("SPARKIFY_REGION", "eu-west-1")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
}

func TestLoadConfig_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "input_root: s3://${SPARKIFY_TEST_BUCKET}/raw\noutput_root: lake\n")

	t.Setenv("SPARKIFY_TEST_BUCKET", "my-bucket")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "s3://my-bucket/raw", cfg.InputRoot)
}

func TestLoadConfig_StateFlagMapsToStatePath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "input_root: in\noutput_root: lake\n")

	flags := newTestFlags()
	require.NoError(t, flags.Parse([]string{"--state", "/tmp/custom.db"}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.StatePath)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			InputRoot:   "/data/raw",
			OutputRoot:  "s3://lake/out",
			Workers:     4,
			Compression: "snappy",
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:      "empty input root",
			mutate:    func(c *Config) { c.InputRoot = "" },
			errSubstr: "input_root is required",
		},
		{
			name:      "empty output root",
			mutate:    func(c *Config) { c.OutputRoot = "" },
			errSubstr: "output_root is required",
		},
		{
			name:      "identical roots",
			mutate:    func(c *Config) { c.OutputRoot = c.InputRoot },
			errSubstr: "must differ",
		},
		{
			name:      "bucketless s3 uri",
			mutate:    func(c *Config) { c.OutputRoot = "s3://" },
			errSubstr: "missing a bucket",
		},
		{
			name:      "unknown scheme",
			mutate:    func(c *Config) { c.OutputRoot = "gs://bucket/x" },
			errSubstr: "unsupported scheme",
		},
		{
			name:      "zero workers",
			mutate:    func(c *Config) { c.Workers = 0 },
			errSubstr: "workers must be at least 1",
		},
		{
			name:      "bad compression",
			mutate:    func(c *Config) { c.Compression = "lzo" },
			errSubstr: "unknown compression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestIsRemoteRoot(t *testing.T) {
	assert.True(t, IsRemoteRoot("s3://bucket/prefix"))
	assert.True(t, IsRemoteRoot("s3a://bucket"))
	assert.False(t, IsRemoteRoot("/data/lake"))
	assert.False(t, IsRemoteRoot("lake"))
}
