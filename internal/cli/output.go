// Package cli holds the plumbing shared by registrar commands: output
// rendering, key and name resolution, and node sessions.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat parses a format name, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "markdown", "md":
		return FormatMarkdown
	default:
		return FormatText
	}
}

// Meta describes a rendered document.
type Meta struct {
	Type      string    `json:"type" yaml:"type"`
	Generated time.Time `json:"generated" yaml:"generated"`
	Node      string    `json:"node,omitempty" yaml:"node,omitempty"`
	Cursor    string    `json:"cursor,omitempty" yaml:"cursor,omitempty"`
}

func newMeta(kind string) Meta {
	return Meta{Type: "registrar." + kind, Generated: time.Now().UTC()}
}

// Renderable is anything Output can print.
type Renderable interface {
	Meta() Meta
	RenderText(w io.Writer) error
	RenderMarkdown(w io.Writer) error
	Data() any
}

// Output renders documents in one format.
type Output struct {
	format Format
	w      io.Writer
	node   string
}

func NewOutput(format Format, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// ForNode stamps documents with the node address they came from.
func (o *Output) ForNode(addr string) *Output {
	c := *o
	c.node = addr
	return &c
}

func (o *Output) Format() Format { return o.format }

func (o *Output) Writer() io.Writer { return o.w }

func (o *Output) Table(kind string, headers ...string) *Table {
	return &Table{out: o, meta: o.meta(kind), headers: headers}
}

func (o *Output) KV(kind string) *KV {
	return &KV{out: o, meta: o.meta(kind)}
}

func (o *Output) Result(kind, message string) *Result {
	return &Result{out: o, meta: o.meta(kind), message: message, details: map[string]any{}}
}

func (o *Output) meta(kind string) Meta {
	m := newMeta(kind)
	m.Node = o.node
	return m
}

// Render writes r in the configured format. JSON and YAML wrap the data
// with its metadata; markdown leads with YAML front matter.
func (o *Output) Render(r Renderable) error {
	switch o.format {
	case FormatJSON:
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(document{Meta: r.Meta(), Data: r.Data()})
	case FormatYAML:
		return encodeYAML(o.w, document{Meta: r.Meta(), Data: r.Data()})
	case FormatMarkdown:
		if _, err := fmt.Fprintln(o.w, "---"); err != nil {
			return err
		}
		if err := encodeYAML(o.w, r.Meta()); err != nil {
			return err
		}
		if _, err := fmt.Fprint(o.w, "---\n\n"); err != nil {
			return err
		}
		return r.RenderMarkdown(o.w)
	default:
		if err := r.RenderText(o.w); err != nil {
			return err
		}
		if c := r.Meta().Cursor; c != "" {
			_, err := fmt.Fprintf(o.w, "\nnext: --after=%s\n", c)
			return err
		}
		return nil
	}
}

type document struct {
	Meta Meta `json:"meta" yaml:"meta"`
	Data any  `json:"data" yaml:"data"`
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// fieldKey turns a display label into a data key: "Highest Bid" becomes
// "highest_bid".
func fieldKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// markdownValue quotes hex values and escapes table pipes.
func markdownValue(v any) string {
	s := fmt.Sprint(v)
	if strings.HasPrefix(s, "0x") && len(s) > 10 {
		return "`" + s + "`"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
