// Package eventfilter evaluates boolean expressions against channel events,
// e.g. `type == "monitor.update" && payload.in_stock`.
package eventfilter

import (
	"encoding/json"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
)

// compileEnv declares the variables a filter may reference.
var compileEnv = map[string]any{
	"type":    "",
	"payload": map[string]any{},
}

// Filter is a compiled expression. The zero value and a nil *Filter match
// every event.
type Filter struct {
	src     string
	program *vm.Program
}

// Compile parses src. An empty src yields a filter that matches everything.
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &Filter{}, nil
	}
	program, err := expr.Compile(src, expr.Env(compileEnv), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(err, "compile filter %q", src)
	}
	return &Filter{src: src, program: program}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

// Match evaluates the filter with `type` bound to typ and `payload` bound to
// the decoded JSON payload.
func (f *Filter) Match(typ string, payload json.RawMessage) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}
	var decoded any = map[string]any{}
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return false, errors.Wrap(err, "decode payload")
		}
	}
	out, err := expr.Run(f.program, map[string]any{
		"type":    typ,
		"payload": decoded,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate filter %q", f.src)
	}
	ok, _ := out.(bool)
	return ok, nil
}
