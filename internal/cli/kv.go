package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// KV renders ordered key/value pairs.
type KV struct {
	out   *Output
	meta  Meta
	pairs []pair
}

type pair struct {
	key   string
	value any
}

func (k *KV) Set(key string, value any) *KV {
	k.pairs = append(k.pairs, pair{key, value})
	return k
}

// SetIf adds the pair only when cond holds.
func (k *KV) SetIf(cond bool, key string, value any) *KV {
	if cond {
		k.Set(key, value)
	}
	return k
}

func (k *KV) Render() error { return k.out.Render(k) }

func (k *KV) Meta() Meta { return k.meta }

func (k *KV) RenderText(w io.Writer) error {
	if len(k.pairs) == 0 {
		return nil
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	opts := &tw.Style().Options
	opts.DrawBorder = false
	opts.SeparateColumns = false
	opts.SeparateHeader = false
	opts.SeparateRows = false
	for _, p := range k.pairs {
		tw.AppendRow(table.Row{p.key + ":", fmt.Sprint(p.value)})
	}
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

func (k *KV) RenderMarkdown(w io.Writer) error {
	for _, p := range k.pairs {
		if _, err := fmt.Fprintf(w, "- **%s:** %s\n", p.key, markdownValue(p.value)); err != nil {
			return err
		}
	}
	return nil
}

func (k *KV) Data() any {
	out := make(map[string]any, len(k.pairs))
	for _, p := range k.pairs {
		out[fieldKey(p.key)] = jsonValue(p.value)
	}
	return out
}

// jsonValue renders Stringers as strings so addresses and amounts encode
// the way they print.
func jsonValue(v any) any {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return v
}
