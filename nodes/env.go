package nodes

import (
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/warriorguo/flowexec/types"
)

// newEnv exposes the front results at the top level plus "input",
// "trigger" and "nodes" (saved node contexts) to expressions.
func newEnv(ed *types.ExecutionData, frontResults types.Data) map[string]any {
	env := make(map[string]any, len(frontResults)+3)
	for k, v := range frontResults {
		env[k] = v
	}
	nodes := make(map[string]any)
	for id, d := range ed.NodeContextMap() {
		nodes[id] = map[string]any(d)
	}
	env["input"] = map[string]any(frontResults)
	env["trigger"] = map[string]any(ed.TriggerData)
	env["nodes"] = nodes
	return env
}

func compile(code string, env map[string]any, asBool bool) (*vm.Program, error) {
	options := []expr.Option{expr.Env(env), expr.AllowUndefinedVariables()}
	if asBool {
		options = append(options, expr.AsBool())
	}
	program, err := expr.Compile(code, options...)
	return program, errors.Annotatef(err, "compile %q", code)
}

func evalBool(code string, env map[string]any) (bool, error) {
	program, err := compile(code, env, true)
	if err != nil {
		return false, errors.Trace(err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, errors.Annotatef(err, "eval %q", code)
	}
	b, _ := out.(bool)
	return b, nil
}

func evalAny(code string, env map[string]any) (any, error) {
	program, err := compile(code, env, false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	out, err := expr.Run(program, env)
	return out, errors.Annotatef(err, "eval %q", code)
}

var placeholder = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// interpolate replaces every {{ expression }} in raw with its value.
func interpolate(raw string, env map[string]any) (string, error) {
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(raw, func(m string) string {
		code := strings.TrimSpace(placeholder.FindStringSubmatch(m)[1])
		v, err := evalAny(code, env)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		if v == nil {
			return ""
		}
		return cast.ToString(v)
	})
	return out, errors.Trace(firstErr)
}
