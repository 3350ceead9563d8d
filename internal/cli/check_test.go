package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCheckCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{sampleModule})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "sample (testdata/modules/sample.cue): 7 native, 1 interpreted")
	assert.Contains(t, output, "✓ sample.calls_dict(int) -> int")
	assert.Contains(t, output, "✗ uses_dict (interpreted): ")
	assert.Contains(t, output, "dict display")
}

func TestCheckStrict(t *testing.T) {
	tests := []struct {
		name    string
		module  string
		wantErr bool
	}{
		{"all native", libModule, false},
		{"one interpreted", sampleModule, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCheckCommand(&RootOptions{Format: "text"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs([]string{tt.module, "--strict"})

			err := cmd.Execute()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, err.Error(), "1 function(s) excluded")
		})
	}
}

func TestCheckJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCheckCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{sampleModule})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Data []ModuleReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	rep := resp.Data[0]
	assert.Empty(t, rep.Output)

	var excluded []FunctionStatus
	for _, f := range rep.Functions {
		if !f.Compiled {
			excluded = append(excluded, f)
		}
	}
	require.Len(t, excluded, 1)
	assert.Equal(t, "uses_dict", excluded[0].Name)
	assert.Contains(t, excluded[0].Pos, "sample.cue:")
}
