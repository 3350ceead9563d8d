package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"builds", "build_functions", "artifacts"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.want); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open() accepted a newer schema")
	}
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("uuid.Parse(%q): %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Errorf("version = %d, want 7", parsed.Version())
	}
	if other := (UUIDv7Generator{}).Generate(); other == id {
		t.Error("generated the same id twice")
	}
}

func TestStats(t *testing.T) {
	s := createTestStore(t, "b1")
	ctx := context.Background()

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st != (Stats{}) {
		t.Errorf("empty store stats = %+v", st)
	}

	if _, err := s.RecordBuild(ctx, createTestBuild("m", "src")); err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 4096)
	if _, err := s.PutArtifact(ctx, "k", KindIR, data); err != nil {
		t.Fatal(err)
	}
	st, err = s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Builds != 1 || st.Artifacts != 1 || st.RawBytes != 4096 {
		t.Errorf("stats = %+v", st)
	}
	if st.StoredBytes >= st.RawBytes {
		t.Errorf("zeros stored uncompressed: %d bytes", st.StoredBytes)
	}
}

func TestErrNotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.Build(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Build() error = %v, want ErrNotFound", err)
	}
	if _, err := s.LatestBuild(ctx, "m"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestBuild() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Artifact(ctx, "k", KindC); !errors.Is(err, ErrNotFound) {
		t.Errorf("Artifact() error = %v, want ErrNotFound", err)
	}
}
