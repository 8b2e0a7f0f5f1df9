package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/gezibash/arc-registrar/pkg/client"
)

// Receipt renders a committed operation and the events it emitted.
type Receipt struct {
	out  *Output
	meta Meta
	rc   *client.Receipt
	note map[string]any
}

// Receipt creates a renderer for rc. extra fields, such as a sealed bid
// hash, print above the events.
func (o *Output) Receipt(rc *client.Receipt, extra map[string]any) *Receipt {
	if extra == nil {
		extra = map[string]any{}
	}
	return &Receipt{out: o, meta: o.meta("receipt"), rc: rc, note: extra}
}

func (r *Receipt) Render() error { return r.out.Render(r) }

func (r *Receipt) Meta() Meta { return r.meta }

func (r *Receipt) RenderText(w io.Writer) error {
	if r.rc == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "%s committed %s (%s)\n", r.rc.Op, r.rc.ID, r.rc.Duration.Round(time.Microsecond)); err != nil {
		return err
	}
	for _, k := range sortedKeys(r.note) {
		if _, err := fmt.Fprintf(w, "  %s: %v\n", k, r.note[k]); err != nil {
			return err
		}
	}
	if len(r.rc.Events) == 0 {
		return nil
	}
	tw := eventTable(r.rc.Events)
	tw.SetStyle(table.StyleLight)
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

func (r *Receipt) RenderMarkdown(w io.Writer) error {
	if r.rc == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "**%s** `%s`\n\n", r.rc.Op, r.rc.ID); err != nil {
		return err
	}
	for _, k := range sortedKeys(r.note) {
		if _, err := fmt.Fprintf(w, "- **%s:** %s\n", k, markdownValue(r.note[k])); err != nil {
			return err
		}
	}
	if len(r.rc.Events) == 0 {
		return nil
	}
	_, err := io.WriteString(w, "\n"+eventTable(r.rc.Events).RenderMarkdown()+"\n")
	return err
}

func (r *Receipt) Data() any {
	out := map[string]any{"receipt": r.rc}
	for k, v := range r.note {
		out[fieldKey(k)] = jsonValue(v)
	}
	return out
}

// Events renders an event listing; cursor is where the next page starts.
func (o *Output) Events(evs []client.Event, cursor uint64) *Table {
	t := o.Table("events", "Seq", "Time", "Contract", "Name", "Attrs")
	for _, e := range evs {
		t.AddRow(strconv.FormatUint(e.Seq, 10), e.Time.Format(time.RFC3339), short(e.Contract.Hex()), e.Name, attrString(e.Attrs))
	}
	if len(evs) > 0 && cursor > 0 {
		t.Cursor(strconv.FormatUint(cursor, 10))
	}
	return t
}

func eventTable(evs []client.Event) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Seq", "Contract", "Event", "Attrs"})
	for _, e := range evs {
		tw.AppendRow(table.Row{e.Seq, short(e.Contract.Hex()), e.Name, attrString(e.Attrs)})
	}
	return tw
}

func attrString(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + short(attrs[k])
	}
	return strings.Join(parts, " ")
}

// short elides the middle of long hex strings.
func short(s string) string {
	if strings.HasPrefix(s, "0x") && len(s) > 18 {
		return s[:10] + ".." + s[len(s)-6:]
	}
	return s
}
