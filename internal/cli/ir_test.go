package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runIRCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewIRCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestIRDump(t *testing.T) {
	out, err := runIRCommand(t, sampleModule, "--func", "fill")
	require.NoError(t, err)
	assert.Contains(t, out, "# sample.fill ")
	assert.Contains(t, out, "dec_ref l")
	assert.NotContains(t, out, "(raw)")
	assert.NotContains(t, out, "# sample.add")
}

func TestIRDumpRaw(t *testing.T) {
	out, err := runIRCommand(t, sampleModule, "--func", "fill", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "# sample.fill (raw)")

	_, rest, ok := strings.Cut(out, "# sample.fill (raw)\n")
	require.True(t, ok)
	raw, refcounted, ok := strings.Cut(rest, "# sample.fill ")
	require.True(t, ok)
	assert.NotContains(t, raw, "dec_ref")
	assert.Contains(t, refcounted, "dec_ref l")
}

func TestIRCrossModuleBinding(t *testing.T) {
	// Compiled after lib, app calls lib.add natively.
	out, err := runIRCommand(t, libModule, appModule, "--func", "inc")
	require.NoError(t, err)
	assert.Contains(t, out, "= lib.add(")
	assert.NotContains(t, out, "host_call")

	// Alone, the call goes through the host namespace.
	out, err = runIRCommand(t, appModule, "--func", "inc")
	require.NoError(t, err)
	assert.Contains(t, out, "host_call lib.add(")
}

func TestIRUnknownFunction(t *testing.T) {
	out, err := runIRCommand(t, sampleModule, "--func", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `no function "nope"`)
}

func TestIRInterpretedFunction(t *testing.T) {
	out, err := runIRCommand(t, sampleModule, "--func", "uses_dict")
	require.NoError(t, err)
	assert.Empty(t, out)
}
