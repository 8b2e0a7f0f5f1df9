package cli

import (
	"fmt"
	"io"
)

// Result is a one-line outcome with optional details, printed in key
// order.
type Result struct {
	out     *Output
	meta    Meta
	message string
	details map[string]any
}

func (r *Result) With(key string, value any) *Result {
	r.details[key] = value
	return r
}

func (r *Result) Render() error { return r.out.Render(r) }

func (r *Result) Meta() Meta { return r.meta }

func (r *Result) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, r.message); err != nil {
		return err
	}
	width := 0
	for k := range r.details {
		width = max(width, len(k))
	}
	for _, k := range sortedKeys(r.details) {
		if _, err := fmt.Fprintf(w, "  %-*s  %v\n", width+1, k+":", r.details[k]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Result) RenderMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "**%s**\n\n", r.message); err != nil {
		return err
	}
	for _, k := range sortedKeys(r.details) {
		if _, err := fmt.Fprintf(w, "- **%s:** %s\n", k, markdownValue(r.details[k])); err != nil {
			return err
		}
	}
	return nil
}

func (r *Result) Data() any {
	out := make(map[string]any, len(r.details)+1)
	out["message"] = r.message
	for k, v := range r.details {
		out[fieldKey(k)] = jsonValue(v)
	}
	return out
}
