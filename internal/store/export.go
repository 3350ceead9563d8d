package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Bundle is a build together with its artifacts, the unit of export.
type Bundle struct {
	Build     Build            `json:"build"`
	Artifacts []BundleArtifact `json:"artifacts"`
}

// BundleArtifact is one exported artifact, uncompressed.
type BundleArtifact struct {
	Key  string `json:"key"`
	Kind Kind   `json:"kind"`
	Data []byte `json:"data"`
}

// Bundle collects the build with the given id and every artifact it refers to.
func (s *Store) Bundle(ctx context.Context, id string) (*Bundle, error) {
	b, err := s.Build(ctx, id)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Build: b}
	add := func(key string, kind Kind) error {
		data, err := s.Artifact(ctx, key, kind)
		if err != nil {
			return err
		}
		bundle.Artifacts = append(bundle.Artifacts, BundleArtifact{Key: key, Kind: kind, Data: data})
		return nil
	}
	for _, f := range b.Functions {
		if f.IRHash != "" {
			if err := add(f.IRHash, KindIR); err != nil {
				return nil, err
			}
		}
	}
	if b.CKey != "" {
		if err := add(b.CKey, KindC); err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

// Export writes the build with the given id as an xz-compressed JSON bundle.
func (s *Store) Export(ctx context.Context, w io.Writer, id string) error {
	bundle, err := s.Bundle(ctx, id)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("export: xz: %w", err)
	}
	if err := json.NewEncoder(xw).Encode(bundle); err != nil {
		xw.Close()
		return fmt.Errorf("export: encode: %w", err)
	}
	if err := xw.Close(); err != nil {
		return fmt.Errorf("export: xz: %w", err)
	}
	return nil
}

// ReadBundle decodes an xz-compressed bundle written by Export.
func ReadBundle(r io.Reader) (*Bundle, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: xz: %w", err)
	}
	var bundle Bundle
	if err := json.NewDecoder(xr).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("read bundle: decode: %w", err)
	}
	return &bundle, nil
}

// Import records the bundle's artifacts and its build under a fresh sequence
// number. The build id is kept, so importing the same bundle twice fails.
func (s *Store) Import(ctx context.Context, r io.Reader) (Build, error) {
	bundle, err := ReadBundle(r)
	if err != nil {
		return Build{}, err
	}
	for _, a := range bundle.Artifacts {
		if _, err := s.PutArtifact(ctx, a.Key, a.Kind, a.Data); err != nil {
			return Build{}, fmt.Errorf("import: %w", err)
		}
	}
	b, err := s.RecordBuild(ctx, bundle.Build)
	if err != nil {
		return Build{}, fmt.Errorf("import: %w", err)
	}
	return b, nil
}
