package store

import (
	"context"
	"fmt"

	"github.com/roach88/refc/internal/compiler"
)

// SaveResult records a compilation: the build row, the refcounted IR of
// every compiled function and, when present, the emitted C.
func (s *Store) SaveResult(ctx context.Context, res *compiler.Result, sourceHash string) (Build, error) {
	caps := res.Module.Capsule
	b := Build{
		Module:      res.Module.Name,
		SourceHash:  sourceHash,
		Fingerprint: caps.Fingerprint,
		ABIVersion:  caps.ABIVersion,
		APIVersion:  caps.APIVersion,
	}
	for _, f := range res.Functions {
		e := FunctionEntry{Name: f.Name, Compiled: f.Compiled, Signature: f.Signature, Reason: f.Reason}
		if f.Compiled {
			e.IRHash = f.IRHash
			if _, err := s.PutArtifact(ctx, f.IRHash, KindIR, []byte(f.IR)); err != nil {
				return Build{}, fmt.Errorf("save %s: %w", res.Module.Name, err)
			}
		}
		b.Functions = append(b.Functions, e)
	}
	if res.C != nil {
		b.CKey = sourceHash
		if _, err := s.PutArtifact(ctx, sourceHash, KindC, res.C); err != nil {
			return Build{}, fmt.Errorf("save %s: %w", res.Module.Name, err)
		}
	}
	return s.RecordBuild(ctx, b)
}
