package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/refc/internal/testutil"
)

// createTestStore creates a new store in a temporary directory with
// deterministic build ids.
func createTestStore(t *testing.T, ids ...string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewFixedGenerator(ids...)))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBuild creates a build with one compiled and one excluded function.
func createTestBuild(module, source string) Build {
	return Build{
		Module:      module,
		SourceHash:  source,
		Fingerprint: "fp-" + module,
		ABIVersion:  1,
		APIVersion:  2,
		Functions: []FunctionEntry{
			{Name: "add", Compiled: true, Signature: module + ".add(int, int) -> int", IRHash: "ir-" + source},
			{Name: "uses_dict", Reason: "unsupported dict display"},
		},
	}
}
