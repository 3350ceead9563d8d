package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refc/internal/store"
)

func runCacheCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCacheCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seedCache compiles the given modules into a fresh cache and returns its
// path.
func seedCache(t *testing.T, modules ...string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "cache.db")
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(append(modules, "-o", t.TempDir(), "--cache", db))
	require.NoError(t, cmd.Execute())
	return db
}

func TestCacheListAndStats(t *testing.T) {
	db := seedCache(t, libModule, appModule)

	out, err := runCacheCommand(t, "text", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "lib  2/2 native")
	assert.Contains(t, out, "app  2/2 native")

	out, err = runCacheCommand(t, "text", "list", "app", "--db", db)
	require.NoError(t, err)
	assert.NotContains(t, out, "lib")

	out, err = runCacheCommand(t, "text", "list", "other", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No builds recorded.\n", out)

	out, err = runCacheCommand(t, "text", "stats", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "2 build(s)")
	assert.Contains(t, out, "uncompressed")

	out, err = runCacheCommand(t, "json", "stats", "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data store.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Data.Builds)
	assert.Positive(t, resp.Data.Artifacts)
}

func TestCachePrune(t *testing.T) {
	db := seedCache(t, sampleModule)

	out, err := runCacheCommand(t, "text", "prune", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Removed 0 build(s) and 0 artifact(s)\n", out)

	out, err = runCacheCommand(t, "text", "prune", "--keep", "0", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 build(s)")

	out, err = runCacheCommand(t, "text", "list", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No builds recorded.\n", out)

	_, err = runCacheCommand(t, "text", "prune", "--keep", "-1", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--keep must be non-negative")
}

func TestCacheExportImport(t *testing.T) {
	db := seedCache(t, sampleModule)
	bundle := filepath.Join(t.TempDir(), "sample.bundle")

	_, err := runCacheCommand(t, "text", "export", "sample", "-o", bundle, "--db", db)
	require.NoError(t, err)
	require.FileExists(t, bundle)

	target := filepath.Join(t.TempDir(), "target.db")
	st, err := store.Open(target)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := runCacheCommand(t, "text", "import", bundle, "--db", target)
	require.NoError(t, err)
	assert.Contains(t, out, "of sample")

	src, err := runCacheCommand(t, "json", "list", "--db", db)
	require.NoError(t, err)
	dst, err := runCacheCommand(t, "json", "list", "--db", target)
	require.NoError(t, err)

	var before, after struct {
		Data []store.Build `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(src), &before))
	require.NoError(t, json.Unmarshal([]byte(dst), &after))
	require.Len(t, after.Data, 1)
	assert.Equal(t, before.Data[0].ID, after.Data[0].ID)
	assert.Equal(t, before.Data[0].Functions, after.Data[0].Functions)
}

func TestCacheExportUnknown(t *testing.T) {
	db := seedCache(t, sampleModule)

	_, err := runCacheCommand(t, "text", "export", "nope", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no build nope")
}

func TestCacheMissingDatabase(t *testing.T) {
	_, err := runCacheCommand(t, "text", "list", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cache not found")

	_, err = runCacheCommand(t, "text", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}
