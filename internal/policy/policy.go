// Package policy evaluates the name policy: a CEL expression over a raw
// label that reports whether the label is forbidden.
package policy

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Default forbids labels shorter than seven characters.
const Default = `length < 7`

// Policy is a compiled name policy.
type Policy struct {
	expr    string
	program cel.Program
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Policy{}
)

// Compile parses expr. The expression sees two variables: label (the raw
// label string) and length (its length in characters). It must yield a bool.
func Compile(expr string) (*Policy, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if p, ok := cache[expr]; ok {
		return p, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("label", cel.StringType),
		cel.Variable("length", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("cel compile: policy yields %s, want bool", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	p := &Policy{expr: expr, program: prog}
	cache[expr] = p
	return p, nil
}

// String returns the source expression.
func (p *Policy) String() string { return p.expr }

// Forbidden reports whether label violates the policy.
func (p *Policy) Forbidden(label string) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"label":  label,
		"length": int64(utf8.RuneCountInString(label)),
	})
	if err != nil {
		return false, fmt.Errorf("cel eval: %w", err)
	}
	if out.Type() != types.BoolType {
		return false, fmt.Errorf("cel eval: policy yields %s", out.Type())
	}
	b, _ := out.Value().(bool)
	return b, nil
}
