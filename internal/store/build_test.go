package store

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refc/internal/compiler"
	"github.com/roach88/refc/internal/ir"
	tu "github.com/roach88/refc/internal/testutil"
)

func TestRecordBuild_SequenceAndRoundTrip(t *testing.T) {
	s := createTestStore(t, "b1", "b2", "b3")
	ctx := context.Background()

	first, err := s.RecordBuild(ctx, createTestBuild("m", "src-1"))
	require.NoError(t, err)
	assert.Equal(t, "b1", first.ID)
	assert.Equal(t, int64(1), first.Seq)

	_, err = s.RecordBuild(ctx, createTestBuild("other", "src-x"))
	require.NoError(t, err)
	second, err := s.RecordBuild(ctx, createTestBuild("m", "src-2"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.Seq)

	got, err := s.Build(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Equal(t, 1, got.Compiled())

	latest, err := s.LatestBuild(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, "b3", latest.ID)

	hit, err := s.BuildForSource(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, "b1", hit.ID)

	ms, err := s.Builds(ctx, "m")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, []string{"b1", "b3"}, []string{ms[0].ID, ms[1].ID})
	assert.Len(t, ms[1].Functions, 2)

	all, err := s.Builds(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.Builds(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestRecordBuild_DuplicateID(t *testing.T) {
	s := createTestStore(t, "same", "same")
	ctx := context.Background()

	_, err := s.RecordBuild(ctx, createTestBuild("m", "a"))
	require.NoError(t, err)
	_, err = s.RecordBuild(ctx, createTestBuild("m", "b"))
	require.Error(t, err)

	// The failed transaction left nothing behind.
	builds, err := s.Builds(ctx, "m")
	require.NoError(t, err)
	assert.Len(t, builds, 1)
}

func TestArtifacts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		data  []byte
		codec string
	}{
		{"compressible", []byte(strings.Repeat("dec_ref r1\n", 200)), CodecLZ4},
		{"tiny", []byte("x"), CodecNone},
		{"empty", nil, CodecNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inserted, err := s.PutArtifact(ctx, tt.name, KindIR, tt.data)
			require.NoError(t, err)
			assert.True(t, inserted)

			inserted, err = s.PutArtifact(ctx, tt.name, KindIR, []byte("different"))
			require.NoError(t, err)
			assert.False(t, inserted, "content addressed entries are never replaced")

			got, err := s.Artifact(ctx, tt.name, KindIR)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(got))
			assert.True(t, bytes.Equal(tt.data, got))

			info, err := s.ArtifactInfo(ctx, tt.name, KindIR)
			require.NoError(t, err)
			assert.Equal(t, tt.codec, info.Codec)
			assert.Equal(t, int64(len(tt.data)), info.Size)
		})
	}

	// Kinds are separate namespaces.
	_, err := s.Artifact(ctx, "tiny", KindC)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveResult(t *testing.T) {
	s := createTestStore(t, "build-1", "build-2")
	ctx := context.Background()

	res, err := compiler.Compile(tu.SampleModule(), compiler.NewOptions(compiler.WithC()))
	require.NoError(t, err)
	src := ir.SourceFingerprint([]byte("sample"), "c")

	b, err := s.SaveResult(ctx, res, src)
	require.NoError(t, err)
	assert.Equal(t, "build-1", b.ID)
	assert.Equal(t, "sample", b.Module)
	assert.Equal(t, res.Module.Capsule.Fingerprint, b.Fingerprint)
	assert.Equal(t, 7, b.Compiled())
	require.Len(t, b.Functions, 8)
	assert.Equal(t, "uses_dict", b.Functions[6].Name)
	assert.Contains(t, b.Functions[6].Reason, "dict display")

	fill, _ := res.Report("fill")
	irText, err := s.Artifact(ctx, fill.IRHash, KindIR)
	require.NoError(t, err)
	assert.Equal(t, fill.IR, string(irText))

	c, err := s.Artifact(ctx, src, KindC)
	require.NoError(t, err)
	assert.Equal(t, res.C, c)

	// Recompiling unchanged source stores no new artifacts.
	before, err := s.Stats(ctx)
	require.NoError(t, err)
	_, err = s.SaveResult(ctx, res, src)
	require.NoError(t, err)
	after, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Artifacts, after.Artifacts)
	assert.Equal(t, before.Builds+1, after.Builds)
}

func TestPrune(t *testing.T) {
	s := createTestStore(t, "b1", "b2", "b3", "b4")
	ctx := context.Background()

	for _, src := range []string{"s1", "s2", "s3"} {
		b := createTestBuild("m", src)
		b.CKey = "c-" + src
		_, err := s.PutArtifact(ctx, "ir-"+src, KindIR, []byte(src))
		require.NoError(t, err)
		_, err = s.PutArtifact(ctx, b.CKey, KindC, []byte(src))
		require.NoError(t, err)
		_, err = s.RecordBuild(ctx, b)
		require.NoError(t, err)
	}
	_, err := s.RecordBuild(ctx, createTestBuild("other", "s1"))
	require.NoError(t, err)

	builds, artifacts, err := s.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), builds)
	// ir-s1 is still referenced by the other module's build.
	assert.Equal(t, int64(3), artifacts)

	remaining, err := s.Builds(ctx, "")
	require.NoError(t, err)
	ids := make([]string, len(remaining))
	for i, b := range remaining {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"b3", "b4"}, ids)

	_, err = s.Artifact(ctx, "ir-s1", KindIR)
	assert.NoError(t, err)
	_, err = s.Artifact(ctx, "c-s2", KindC)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM build_functions WHERE build_id IN ('b1', 'b2')`).Scan(&orphans))
	assert.Zero(t, orphans, "function rows cascade with their build")
}

func TestExportImport(t *testing.T) {
	src := createTestStore(t, "b1")
	ctx := context.Background()

	b := createTestBuild("m", "s1")
	b.CKey = "c-s1"
	_, err := src.PutArtifact(ctx, "ir-s1", KindIR, []byte(strings.Repeat("r1 = x + y\n", 50)))
	require.NoError(t, err)
	_, err = src.PutArtifact(ctx, "c-s1", KindC, []byte("word_t m__add_native(...);"))
	require.NoError(t, err)
	_, err = src.RecordBuild(ctx, b)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, &buf, "b1"))

	bundle, err := ReadBundle(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "b1", bundle.Build.ID)
	assert.Len(t, bundle.Artifacts, 2)

	dst := createTestStore(t, "unused")
	got, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, int64(1), got.Seq)

	c, err := dst.Artifact(ctx, "c-s1", KindC)
	require.NoError(t, err)
	assert.Equal(t, "word_t m__add_native(...);", string(c))

	_, err = dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	assert.Error(t, err, "same build id twice")

	err = src.Export(ctx, &buf, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ReadBundle(strings.NewReader("not xz"))
	assert.Error(t, err)
}
