package receiver

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// celFilter wraps a compiled CEL program evaluated per message. A nil
// filter admits everything.
type celFilter struct {
	prog cel.Program
}

// newCELFilter compiles expr, returning nil for an empty expression.
func newCELFilter(expr string) (*celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("stream", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload for field filtering; null when the
		// payload is not JSON.
		cel.Variable("json", cel.DynType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &celFilter{prog: prog}, nil
}

// Eval evaluates the expression against m. Evaluation errors reject the
// message.
func (f *celFilter) Eval(m Message) bool {
	var jsonObj any
	_ = json.Unmarshal(m.Payload, &jsonObj)
	headers := m.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"stream":  m.Stream,
		"id":      m.ID,
		"size":    int64(len(m.Payload)),
		"text":    string(m.Payload),
		"json":    jsonObj,
		"headers": headers,
		"now_ms":  time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
