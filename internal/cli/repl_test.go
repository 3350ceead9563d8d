package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refc/internal/harness"
)

// scriptedReader replays lines, then returns err.
type scriptedReader struct {
	lines []string
	err   error
}

func (s *scriptedReader) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", s.err
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func newTestRepl(t *testing.T, entry harness.Entry) *repl {
	t.Helper()
	mods, errs := loadModules([]string{libModule, appModule})
	require.Empty(t, errs)
	r, err := newRepl(mods, entry)
	require.NoError(t, err)
	return r
}

func TestReplEval(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"inc [41]", "42\n"},
		{"lib.add [1, 2]", "3\n"},
		{"lib.push [[1], 2]", "[1, 2]\n"},
		{"grow [2]", "[0, 1]\n"},
		{"", ""},
		{"nope [1]", "error: module app has no function \"nope\"\n"},
		{"other.f []", "error: unknown module \"other\"\n"},
		{"inc {", "error: arguments must be a JSON array"},
		{"lib.add [1, [2]]", "raise TypeError"},
		{":what", "unknown command :what\n"},
	}
	for _, entry := range []harness.Entry{harness.EntryInterp, harness.EntryBoundary} {
		r := newTestRepl(t, entry)
		for _, tt := range tests {
			t.Run(string(entry)+"/"+tt.line, func(t *testing.T) {
				buf := &bytes.Buffer{}
				assert.False(t, r.eval(tt.line, buf))
				if tt.want == "" {
					assert.Empty(t, buf.String())
					return
				}
				assert.Contains(t, buf.String(), tt.want)
				assert.NotContains(t, buf.String(), "leaked")
			})
		}
	}
}

func TestReplNativeEntry(t *testing.T) {
	r := newTestRepl(t, harness.EntryNative)

	buf := &bytes.Buffer{}
	r.eval("inc [1]", buf)
	assert.Equal(t, "2\n", buf.String())

	buf.Reset()
	r.eval("inc [[1]]", buf)
	assert.Contains(t, buf.String(), "error: arguments do not match app.inc(int) -> int")
}

func TestReplCommands(t *testing.T) {
	r := newTestRepl(t, harness.EntryBoundary)

	buf := &bytes.Buffer{}
	r.eval(":funcs", buf)
	assert.Contains(t, buf.String(), "✓ lib.add(int, int) -> int")
	assert.Contains(t, buf.String(), "✓ app.grow(int) -> list[int]")

	buf.Reset()
	r.eval(":heap", buf)
	assert.Regexp(t, `^\d+ live, \d+ cells, \d+ allocations\n$`, buf.String())

	buf.Reset()
	r.eval(":ir inc", buf)
	assert.Contains(t, buf.String(), "lib.add(x, ")

	buf.Reset()
	r.eval(":ir lib.nope", buf)
	assert.Equal(t, "error: module lib has no function \"nope\"\n", buf.String())

	buf.Reset()
	r.eval(":ir other.f", buf)
	assert.Equal(t, "error: unknown module \"other\"\n", buf.String())

	assert.True(t, r.eval(":quit", io.Discard))
	assert.True(t, r.eval(":q", io.Discard))
}

func TestReplInterpretedIR(t *testing.T) {
	mods, errs := loadModules([]string{sampleModule})
	require.Empty(t, errs)
	r, err := newRepl(mods, harness.EntryBoundary)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	r.eval(":ir uses_dict", buf)
	assert.Contains(t, buf.String(), "uses_dict is interpreted: ")
}

func TestReplLoop(t *testing.T) {
	r := newTestRepl(t, harness.EntryBoundary)

	t.Run("eof", func(t *testing.T) {
		buf := &bytes.Buffer{}
		in := &scriptedReader{lines: []string{"inc [1]", "inc [2]"}, err: io.EOF}
		require.NoError(t, r.loop(in, buf))
		assert.Equal(t, "2\n3\n", buf.String())
	})

	t.Run("quit", func(t *testing.T) {
		buf := &bytes.Buffer{}
		in := &scriptedReader{lines: []string{":quit", "inc [1]"}, err: io.EOF}
		require.NoError(t, r.loop(in, buf))
		assert.Empty(t, buf.String())
	})

	t.Run("interrupt", func(t *testing.T) {
		in := &scriptedReader{err: readline.ErrInterrupt}
		require.NoError(t, r.loop(in, io.Discard))
	})

	t.Run("read error", func(t *testing.T) {
		in := &scriptedReader{err: assert.AnError}
		assert.ErrorIs(t, r.loop(in, io.Discard), assert.AnError)
	})
}

func TestReplInvalidEntry(t *testing.T) {
	mods, errs := loadModules([]string{libModule})
	require.Empty(t, errs)
	_, err := newRepl(mods, harness.Entry("jit"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown entry "jit"`)
}
