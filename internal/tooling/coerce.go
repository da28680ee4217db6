package tooling

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// coerceArgs converts string-valued entries of rawArgs to the types
// params declares, fills in defaults for missing optional parameters, and
// fails if a required parameter is absent or a value can't be coerced.
// Non-string values (already-typed JSON numbers/bools/objects decoded
// from a request body) pass through unchanged.
func coerceArgs(params []Param, rawArgs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	byName := make(map[string]Param, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}

	for name, raw := range rawArgs {
		p, known := byName[name]
		if !known {
			out[name] = raw
			continue
		}
		v, err := coerceValue(p.TypeName, raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		out[name] = v
	}

	for _, p := range params {
		if _, ok := out[p.Name]; ok {
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("missing required argument %q", p.Name)
		}
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}

	return out, nil
}

func coerceValue(typeName ParamType, raw any) (any, error) {
	s, isString := raw.(string)
	if !isString {
		return raw, nil
	}

	switch typeName {
	case ParamInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", s)
		}
		return n, nil
	case ParamFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("not a float: %q", s)
		}
		return f, nil
	case ParamBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("not a bool: %q", s)
		}
		return b, nil
	case ParamJSON:
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("not valid JSON: %q", s)
		}
		return v, nil
	default: // ParamString and anything unrecognized pass through as-is
		return s, nil
	}
}
