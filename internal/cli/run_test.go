package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRunCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunEntries(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"fact", []string{sampleModule, "fact", "--args", "[20]"}, "2432902008176640000"},
		{"fact promotes", []string{sampleModule, "fact", "--args", "[25]"}, "15511210043330985984000000"},
		{"list argument", []string{sampleModule, "total", "--args", "[[1, 2, 3]]"}, "6"},
		{"list result", []string{sampleModule, "pick", "--args", "[false]"}, "[7, 7, 7]"},
		{"big argument", []string{sampleModule, "add", "--args", "[4611686018427387903, 1]"}, "4611686018427387904"},
		{"cross module", []string{appModule, "grow", "--import", libModule, "--args", "[3]"}, "[0, 1, 2]"},
	}
	for _, tt := range tests {
		for _, entry := range []string{"interp", "boundary", "native"} {
			t.Run(tt.name+"/"+entry, func(t *testing.T) {
				out, err := runRunCommand(t, "text", append(tt.args, "--entry", entry)...)
				require.NoError(t, err)
				assert.Equal(t, tt.want+"\n", out)
			})
		}
	}
}

func TestRunRaises(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"index error", []string{sampleModule, "swap_first", "--args", "[[]]"}, "raise IndexError"},
		{"type error at boundary", []string{sampleModule, "fact", "--args", "[[1]]"}, "raise TypeError"},
		{"recursion limit", []string{sampleModule, "fact", "--args", "[50]", "--max-depth", "10"}, "raise RecursionError"},
		{"cell limit", []string{sampleModule, "fill", "--args", "[100]", "--max-cells", "8"}, "raise MemoryError: cell limit of 8 reached"},
		{"interpreter fallback", []string{sampleModule, "uses_dict", "--args", "[1]"}, "raise NotImplementedError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runRunCommand(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRunCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"unknown entry", []string{sampleModule, "fact", "--entry", "jit"}, `unknown entry "jit"`},
		{"object args", []string{sampleModule, "fact", "--args", `{"n": 1}`}, "invalid --args"},
		{"trailing args", []string{sampleModule, "fact", "--args", "[1] [2]"}, "trailing data"},
		{"float arg", []string{sampleModule, "fact", "--args", "[1.5]"}, "argument 0"},
		{"unknown function", []string{sampleModule, "nope"}, `no function "nope"`},
		{"no native entry", []string{sampleModule, "uses_dict", "--args", "[1]", "--entry", "native"}, "has no native entry"},
		{"native type mismatch", []string{sampleModule, "fact", "--args", "[[1]]", "--entry", "native"}, "arguments do not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runRunCommand(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRunJSON(t *testing.T) {
	out, err := runRunCommand(t, "json", sampleModule, "fill", "--args", "[10]")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   CallResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "10", resp.Data.Result)
	assert.Equal(t, "boundary", resp.Data.Entry)
	assert.Zero(t, resp.Data.Heap.Leaked)
	assert.Zero(t, resp.Data.Heap.Cells)
	assert.Positive(t, resp.Data.Heap.Allocations)
}

func TestRunJSONRaise(t *testing.T) {
	out, err := runRunCommand(t, "json", sampleModule, "swap_first", "--args", "[[]]")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "IndexError", resp.Error.Code)
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = parseArgs(`[1, true, null, [2]]`)
	require.NoError(t, err)
	require.Len(t, args, 4)
	assert.Equal(t, json.Number("1"), args[0])
	assert.Equal(t, true, args[1])
	assert.Nil(t, args[2])
	assert.Equal(t, []any{json.Number("2")}, args[3])
}
