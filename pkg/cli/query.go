package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
)

// Query is a compiled jq expression.
type Query struct {
	expr string
	code *gojq.Code
}

// ParseQuery parses and compiles expr. An empty expr yields nil.
func ParseQuery(expr string) (*Query, error) {
	if expr == "" {
		return nil, nil
	}
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile jq expression %q: %w", expr, err)
	}
	return &Query{expr: expr, code: code}, nil
}

// String returns the expression text.
func (q *Query) String() string { return q.expr }

// Apply runs the query on v, which is first converted to its JSON form.
// A single output is returned as is; several are returned as a slice.
func (q *Query) Apply(ctx context.Context, v any) (any, error) {
	in, err := toJQValue(v)
	if err != nil {
		return nil, err
	}
	var out []any
	iter := q.code.RunWithContext(ctx, in)
	for {
		r, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := r.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq error: %w", err)
		}
		out = append(out, r)
	}
	switch len(out) {
	case 0:
		return nil, fmt.Errorf("jq expression %q returned no result", q.expr)
	case 1:
		return out[0], nil
	}
	return out, nil
}

// toJQValue converts v to the map/slice/float64 values gojq operates on.
func toJQValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jq input: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal jq input: %w", err)
	}
	return out, nil
}
