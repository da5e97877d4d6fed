package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestLocal_List(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "song_data/A/A/A/TRAAAAW128F429D538.json", "{}")
	writeFile(t, root, "song_data/A/B/C/TRABCEI128F424C983.json", "{}")
	writeFile(t, root, "song_data/A/B/checksum.txt", "x")
	writeFile(t, root, "log_data/2018/11/2018-11-12-events.json", "{}")

	fs := NewLocal(root)

	songs, err := fs.List(context.Background(), "song_data/*/*/*/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"song_data/A/A/A/TRAAAAW128F429D538.json",
		"song_data/A/B/C/TRABCEI128F424C983.json",
	}, songs)

	logs, err := fs.List(context.Background(), "log_data/*/*/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"log_data/2018/11/2018-11-12-events.json"}, logs)
}

func TestLocal_List_MissingRoot(t *testing.T) {
	fs := NewLocal(filepath.Join(t.TempDir(), "missing"))
	_, err := fs.List(context.Background(), "*.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accessible")
}

func TestLocal_CreateOpenRoundTrip(t *testing.T) {
	fs := NewLocal(t.TempDir())
	ctx := context.Background()

	w, err := fs.Create(ctx, "songs/year=2000/artist_id=A1/part-1.parquet")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := fs.Open(ctx, "songs/year=2000/artist_id=A1/part-1.parquet")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestParseRoot(t *testing.T) {
	fs, err := ParseRoot(context.Background(), t.TempDir(), S3Options{})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, fs)

	_, err = ParseRoot(context.Background(), "gs://bucket/x", S3Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage scheme")
}

func TestSplitS3Root(t *testing.T) {
	tests := []struct {
		root       string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{root: "s3://udacity-dend", wantBucket: "udacity-dend"},
		{root: "s3://udacity-dend/raw/v1", wantBucket: "udacity-dend", wantPrefix: "raw/v1"},
		{root: "s3a://udacity-dend/", wantBucket: "udacity-dend"},
		{root: "s3://", wantErr: true},
	}

	for _, tt := range tests {
		bucket, prefix, err := splitS3Root(tt.root)
		if tt.wantErr {
			assert.Error(t, err, tt.root)
			continue
		}
		require.NoError(t, err, tt.root)
		assert.Equal(t, tt.wantBucket, bucket, tt.root)
		assert.Equal(t, tt.wantPrefix, prefix, tt.root)
	}
}
