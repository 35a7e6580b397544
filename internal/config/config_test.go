package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSONDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "romsync.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir":"/var/lib/romsync"}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/romsync/catalog.db", cfg.DBFile)
	assert.Equal(t, "/var/lib/romsync/hashdb", cfg.HashDBDir)
	assert.Equal(t, defaultHashCacheSize, cfg.HashCacheSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/var/lib/romsync/sync.lock", cfg.LockFile())
	assert.False(t, cfg.S3.Enabled())
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "romsync.toml")
	content := `data_dir = "/data"
hash_cache_size = 4

[log]
level = "debug"
console = true

[s3]
host = "http://127.0.0.1:9000"
force_path_style = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.HashCacheSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Console)
	assert.True(t, cfg.S3.Enabled())
	assert.True(t, cfg.S3.ForcePathStyle)
}

func TestValidateRejects(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{DataDir: "/d", HashCacheSize: -1}).Validate())
}

func TestLoadFirstSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir":"/d"}`), 0o644))

	cfg, err := LoadFirst("", filepath.Join(dir, "a.json"), path)
	require.NoError(t, err)
	assert.Equal(t, "/d", cfg.DataDir)

	_, err = LoadFirst(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o644))
	_, err = LoadFirst(bad, path)
	assert.Error(t, err)
}
