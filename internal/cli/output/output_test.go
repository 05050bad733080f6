package output

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cycleReport mirrors the shape bench uses: one row per collection cycle.
type cycleReport []struct {
	Cycle     int `json:"cycle" yaml:"cycle"`
	Destroyed int `json:"destroyed" yaml:"destroyed"`
}

func (r cycleReport) Headers() []string {
	return []string{"CYCLE", "DESTROYED"}
}

func (r cycleReport) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, c := range r {
		rows = append(rows, []string{
			strconv.Itoa(c.Cycle),
			strconv.Itoa(c.Destroyed),
		})
	}
	return rows
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "table", want: FormatTable},
		{input: "", want: FormatTable},
		{input: "json", want: FormatJSON},
		{input: "JSON", want: FormatJSON},
		{input: "yaml", want: FormatYAML},
		{input: "yml", want: FormatYAML},
		{input: "  table  ", want: FormatTable},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatTable, cycleReport{{Cycle: 1, Destroyed: 7}}))

	out := buf.String()
	assert.Contains(t, out, "CYCLE")
	assert.Contains(t, out, "DESTROYED")
	assert.Contains(t, out, "7")
}

func TestRenderTableFallsBackToJSON(t *testing.T) {
	// A value with no tabular shape still renders rather than erroring.
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatTable, map[string]int{"destroyed": 3}))
	assert.Contains(t, buf.String(), `"destroyed": 3`)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, cycleReport{{Cycle: 2, Destroyed: 5}}))

	out := buf.String()
	assert.Contains(t, out, `"cycle": 2`)
	assert.Contains(t, out, `"destroyed": 5`)
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatYAML, cycleReport{{Cycle: 2, Destroyed: 5}}))

	out := buf.String()
	assert.Contains(t, out, "- cycle: 2")
	assert.Contains(t, out, "destroyed: 5")
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, Format("xml"), cycleReport{}))
}
