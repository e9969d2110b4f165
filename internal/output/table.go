package output

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table is a header with rows, renderable in every Format.
type Table struct {
	Header []string
	Rows   [][]string
	Footer string
}

// Render writes t to w. JSON and YAML emit one record per row keyed by the
// snake_cased header.
func (t Table) Render(w io.Writer, format Format) error {
	switch format {
	case FormatJSON, FormatYAML:
		return Encode(w, format, t.records())
	case FormatMarkdown:
		t.writer(w).RenderMarkdown()
		return nil
	default:
		t.writer(w).Render()
		return nil
	}
}

func (t Table) writer(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(t.Header))
	for _, row := range t.Rows {
		tw.AppendRow(toRow(row))
	}
	if t.Footer != "" {
		footer := make(table.Row, len(t.Header))
		for i := range footer {
			footer[i] = ""
		}
		if len(footer) > 0 {
			footer[len(footer)-1] = t.Footer
		}
		tw.AppendFooter(footer)
	}
	return tw
}

func (t Table) records() []map[string]string {
	keys := make([]string, len(t.Header))
	for i, h := range t.Header {
		keys[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
	}

	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]string, len(keys))
		for i, key := range keys {
			if i < len(row) {
				record[key] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
