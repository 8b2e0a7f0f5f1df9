package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table renders rows under a header.
type Table struct {
	out     *Output
	meta    Meta
	headers []string
	rows    [][]string
}

func (t *Table) AddRow(values ...string) *Table {
	t.rows = append(t.rows, values)
	return t
}

// Cursor records where a paged listing continues.
func (t *Table) Cursor(c string) *Table {
	t.meta.Cursor = c
	return t
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Render() error { return t.out.Render(t) }

func (t *Table) Meta() Meta { return t.meta }

func (t *Table) RenderText(w io.Writer) error {
	if len(t.rows) == 0 {
		_, err := io.WriteString(w, "(none)\n")
		return err
	}
	tw := t.writer()
	tw.SetStyle(table.StyleLight)
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

func (t *Table) RenderMarkdown(w io.Writer) error {
	_, err := io.WriteString(w, t.writer().RenderMarkdown()+"\n")
	return err
}

// Data returns one object per row keyed by header.
func (t *Table) Data() any {
	out := make([]map[string]string, 0, len(t.rows))
	for _, row := range t.rows {
		obj := make(map[string]string, len(t.headers))
		for i, h := range t.headers {
			if i < len(row) {
				obj[fieldKey(h)] = row[i]
			}
		}
		out = append(out, obj)
	}
	return out
}

func (t *Table) writer() table.Writer {
	tw := table.NewWriter()
	header := make(table.Row, len(t.headers))
	for i, h := range t.headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range t.rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}
	return tw
}
