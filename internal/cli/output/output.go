// Package output renders collector reports for CLI commands in table, JSON,
// or YAML form.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat maps a --output flag value onto a Format. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Report is implemented by result sets that know their tabular shape, such
// as a per-cycle benchmark report.
type Report interface {
	Headers() []string
	Rows() [][]string
}

// Render writes data to w in the requested format. Table format needs a
// Report; anything else degrades to JSON rather than failing the command.
func Render(w io.Writer, f Format, data any) error {
	switch f {
	case FormatTable:
		if r, ok := data.(Report); ok {
			renderTable(w, r)
			return nil
		}
		return PrintJSON(w, data)
	case FormatJSON:
		return PrintJSON(w, data)
	case FormatYAML:
		return PrintYAML(w, data)
	default:
		return fmt.Errorf("unknown format: %s", f)
	}
}

// renderTable writes a borderless left-aligned table, the same shape the
// run loop's periodic stats use.
func renderTable(w io.Writer, r Report) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader(r.Headers())
	tbl.SetBorder(false)
	tbl.SetHeaderLine(false)
	tbl.SetAutoWrapText(false)
	tbl.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tbl.SetAlignment(tablewriter.ALIGN_LEFT)
	tbl.SetCenterSeparator("")
	tbl.SetColumnSeparator("")
	tbl.SetRowSeparator("")
	tbl.SetTablePadding("  ")
	tbl.SetNoWhiteSpace(true)
	tbl.AppendBulk(r.Rows())
	tbl.Render()
}

// PrintJSON writes data as indented JSON.
func PrintJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintYAML writes data as YAML.
func PrintYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(data)
}
