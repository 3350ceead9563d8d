package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Build is one recorded compilation of a module.
type Build struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	Module      string          `json:"module"`
	SourceHash  string          `json:"source_hash"`
	Fingerprint string          `json:"fingerprint"`
	ABIVersion  int             `json:"abi_version"`
	APIVersion  int             `json:"api_version"`
	CKey        string          `json:"c_key,omitempty"`
	Functions   []FunctionEntry `json:"functions"`
}

// FunctionEntry is the outcome for one function of a build.
type FunctionEntry struct {
	Name      string `json:"name"`
	Compiled  bool   `json:"compiled"`
	Signature string `json:"signature,omitempty"`
	IRHash    string `json:"ir_hash,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Compiled returns the number of natively compiled functions.
func (b Build) Compiled() int {
	n := 0
	for _, f := range b.Functions {
		if f.Compiled {
			n++
		}
	}
	return n
}

// RecordBuild assigns b an id and the next sequence number and writes it
// with its function entries in one transaction.
func (s *Store) RecordBuild(ctx context.Context, b Build) (Build, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return b, fmt.Errorf("record build: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if b.ID == "" {
		b.ID = s.ids.Generate()
	}
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM builds`).Scan(&b.Seq); err != nil {
		return b, fmt.Errorf("record build: next seq: %w", err)
	}
	if err := insertBuild(ctx, tx, b); err != nil {
		return b, err
	}
	if err := tx.Commit(); err != nil {
		return b, fmt.Errorf("record build: commit: %w", err)
	}
	return b, nil
}

func insertBuild(ctx context.Context, tx *sql.Tx, b Build) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO builds
		(id, seq, module, source_hash, fingerprint, abi_version, api_version, c_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Seq, b.Module, b.SourceHash, b.Fingerprint, b.ABIVersion, b.APIVersion, b.CKey)
	if err != nil {
		return fmt.Errorf("record build %s: %w", b.ID, err)
	}
	for i, f := range b.Functions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO build_functions
			(build_id, position, name, compiled, signature, ir_hash, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, b.ID, i, f.Name, f.Compiled, f.Signature, f.IRHash, f.Reason)
		if err != nil {
			return fmt.Errorf("record build %s: function %s: %w", b.ID, f.Name, err)
		}
	}
	return nil
}

const buildColumns = `id, seq, module, source_hash, fingerprint, abi_version, api_version, c_key`

func scanBuild(row interface{ Scan(...any) error }) (Build, error) {
	var b Build
	err := row.Scan(&b.ID, &b.Seq, &b.Module, &b.SourceHash, &b.Fingerprint, &b.ABIVersion, &b.APIVersion, &b.CKey)
	return b, err
}

// Build returns the build with the given id.
func (s *Store) Build(ctx context.Context, id string) (Build, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	return s.finishBuild(ctx, row, "build "+id)
}

// LatestBuild returns the most recent build of module.
func (s *Store) LatestBuild(ctx context.Context, module string) (Build, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+buildColumns+` FROM builds
		WHERE module = ?
		ORDER BY seq DESC
		LIMIT 1
	`, module)
	return s.finishBuild(ctx, row, "latest build of "+module)
}

// BuildForSource returns the most recent build of the given source
// fingerprint, the cache hit for an unchanged module.
func (s *Store) BuildForSource(ctx context.Context, sourceHash string) (Build, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+buildColumns+` FROM builds
		WHERE source_hash = ?
		ORDER BY seq DESC
		LIMIT 1
	`, sourceHash)
	return s.finishBuild(ctx, row, "build for source "+sourceHash)
}

func (s *Store) finishBuild(ctx context.Context, row *sql.Row, what string) (Build, error) {
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return Build{}, fmt.Errorf("%s: %w", what, err)
	}
	if b.Functions, err = s.buildFunctions(ctx, b.ID); err != nil {
		return Build{}, err
	}
	return b, nil
}

func (s *Store) buildFunctions(ctx context.Context, id string) ([]FunctionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, compiled, signature, ir_hash, reason
		FROM build_functions
		WHERE build_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query build functions: %w", err)
	}
	defer rows.Close()

	fns := []FunctionEntry{}
	for rows.Next() {
		var f FunctionEntry
		if err := rows.Scan(&f.Name, &f.Compiled, &f.Signature, &f.IRHash, &f.Reason); err != nil {
			return nil, fmt.Errorf("scan build function: %w", err)
		}
		fns = append(fns, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build functions: %w", err)
	}
	return fns, nil
}

// Builds returns every build of module, oldest first. An empty module
// returns the builds of all modules.
func (s *Store) Builds(ctx context.Context, module string) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+buildColumns+` FROM builds
		WHERE ? = '' OR module = ?
		ORDER BY seq ASC
	`, module, module)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}

	// Rows are closed first: the store holds a single connection.
	for i := range builds {
		if builds[i].Functions, err = s.buildFunctions(ctx, builds[i].ID); err != nil {
			return nil, err
		}
	}
	if builds == nil {
		builds = []Build{}
	}
	return builds, nil
}

// Prune keeps the newest keep builds of each module and deletes the rest,
// along with artifacts no remaining build refers to. It returns the number
// of builds and artifacts removed.
func (s *Store) Prune(ctx context.Context, keep int) (builds, artifacts int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("prune: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		DELETE FROM builds WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY module ORDER BY seq DESC) AS n
				FROM builds
			) WHERE n > ?
		)
	`, keep)
	if err != nil {
		return 0, 0, fmt.Errorf("prune builds: %w", err)
	}
	if builds, err = res.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("prune builds: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM artifacts
		WHERE (kind = 'ir' AND key NOT IN (SELECT ir_hash FROM build_functions))
		   OR (kind = 'c' AND key NOT IN (SELECT c_key FROM builds))
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("prune artifacts: %w", err)
	}
	if artifacts, err = res.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("prune artifacts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("prune: commit: %w", err)
	}
	return builds, artifacts, nil
}
