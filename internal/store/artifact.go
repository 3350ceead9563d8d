package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Kind is the type of an artifact payload.
type Kind string

const (
	KindIR Kind = "ir" // refcounted IR text of one function
	KindC  Kind = "c"  // emitted C source of one module
)

// Payload codecs.
const (
	CodecNone = "none"
	CodecLZ4  = "lz4"
)

// ArtifactInfo describes a stored artifact without its payload.
type ArtifactInfo struct {
	Key    string
	Kind   Kind
	Codec  string
	Size   int64 // uncompressed
	Stored int64
}

// PutArtifact stores data under (key, kind). Artifacts are content
// addressed, so an existing entry is left untouched and inserted is false.
func (s *Store) PutArtifact(ctx context.Context, key string, kind Kind, data []byte) (inserted bool, err error) {
	if data == nil {
		data = []byte{}
	}
	payload, codec, err := encode(data)
	if err != nil {
		return false, fmt.Errorf("put artifact %s/%s: %w", kind, key, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (key, kind, codec, size, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key, kind) DO NOTHING
	`, key, string(kind), codec, len(data), payload)
	if err != nil {
		return false, fmt.Errorf("put artifact %s/%s: %w", kind, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put artifact %s/%s: %w", kind, key, err)
	}
	return n > 0, nil
}

// Artifact returns the decompressed payload stored under (key, kind).
func (s *Store) Artifact(ctx context.Context, key string, kind Kind) ([]byte, error) {
	var (
		codec   string
		size    int64
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT codec, size, payload FROM artifacts WHERE key = ? AND kind = ?
	`, key, string(kind)).Scan(&codec, &size, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s/%s: %w", kind, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("artifact %s/%s: %w", kind, key, err)
	}
	data, err := decode(codec, payload)
	if err != nil {
		return nil, fmt.Errorf("artifact %s/%s: %w", kind, key, err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("artifact %s/%s: decoded %d bytes, recorded %d", kind, key, len(data), size)
	}
	return data, nil
}

// ArtifactInfo returns the metadata of an artifact.
func (s *Store) ArtifactInfo(ctx context.Context, key string, kind Kind) (ArtifactInfo, error) {
	info := ArtifactInfo{Key: key, Kind: kind}
	err := s.db.QueryRowContext(ctx, `
		SELECT codec, size, LENGTH(payload) FROM artifacts WHERE key = ? AND kind = ?
	`, key, string(kind)).Scan(&info.Codec, &info.Size, &info.Stored)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("artifact %s/%s: %w", kind, key, ErrNotFound)
	}
	if err != nil {
		return info, fmt.Errorf("artifact %s/%s: %w", kind, key, err)
	}
	return info, nil
}

// encode compresses data with lz4 unless that does not make it smaller.
func encode(data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, "", fmt.Errorf("lz4: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("lz4: %w", err)
	}
	if buf.Len() >= len(data) {
		return data, CodecNone, nil
	}
	return buf.Bytes(), CodecLZ4, nil
}

func decode(codec string, payload []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecLZ4:
		data, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("unknown codec %q", codec)
}
