package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type stopResult struct {
	Target string `json:"target" yaml:"target"`
	Code   string `json:"completion_code" yaml:"completion_code"`
}

func (r stopResult) Text() string {
	return "Completion Code: " + r.Code + "\n"
}

func TestFormatter_Output(t *testing.T) {
	result := stopResult{Target: "blade 1", Code: "Success"}

	tests := []struct {
		name   string
		format Format
		check  func(t *testing.T, out []byte)
	}{
		{"text uses Texter", FormatText, func(t *testing.T, out []byte) {
			assert.Equal(t, "Completion Code: Success\n", string(out))
		}},
		{"json", FormatJSON, func(t *testing.T, out []byte) {
			var got map[string]string
			require.NoError(t, json.Unmarshal(out, &got))
			assert.Equal(t, "blade 1", got["target"])
			assert.Equal(t, "Success", got["completion_code"])
		}},
		{"yaml", FormatYAML, func(t *testing.T, out []byte) {
			var got map[string]string
			require.NoError(t, yaml.Unmarshal(out, &got))
			assert.Equal(t, "Success", got["completion_code"])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := New(tt.format)
			f.SetWriter(&buf)
			require.NoError(t, f.Output(result))
			tt.check(t, buf.Bytes())
		})
	}
}

func TestFormatter_TextFallback(t *testing.T) {
	var buf bytes.Buffer
	f := New(FormatText)
	f.SetWriter(&buf)
	require.NoError(t, f.Output([]string{"/dev/ttyS0", "/dev/ttyS1"}))
	assert.Equal(t, "[/dev/ttyS0 /dev/ttyS1]\n", buf.String())
	assert.True(t, f.IsText())
}

func TestFormatter_UnsupportedFormat(t *testing.T) {
	f := New(Format("xml"))
	f.SetWriter(&bytes.Buffer{})
	assert.Error(t, f.Output("x"))
}

func TestGetFormatFromCmd(t *testing.T) {
	tests := []struct {
		arg     string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", FormatText, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			cmd := &cobra.Command{}
			AddFormatFlag(cmd)
			require.NoError(t, cmd.Flags().Set("output", tt.arg))

			got, err := GetFormatFromCmd(cmd)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestFromCmdWritesToCommandOutput(t *testing.T) {
	cmd := &cobra.Command{}
	AddFormatFlag(cmd)
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	f, err := FromCmd(cmd)
	require.NoError(t, err)
	require.NoError(t, f.Output(stopResult{Code: "Failure"}))
	assert.Equal(t, "Completion Code: Failure\n", buf.String())
}
