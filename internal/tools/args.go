package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/gzhole/shopbot/internal/protocol"
)

// identityKeys are argument names a model might use to point a user-scoped
// tool at someone else's records.
var identityKeys = []string{"user_id", "userId", "basket_id", "basketId", "email", "username", "uid"}

// ParseCall decodes the model's tool call into a Request. Empty arguments
// decode to an empty map.
func ParseCall(call protocol.ToolCall) (Request, error) {
	req := Request{Name: call.Name, Arguments: map[string]any{}}
	raw := strings.TrimSpace(call.Arguments)
	if raw == "" {
		return req, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&req.Arguments); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformedArguments, err)
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}
	return req, nil
}

// validate checks required presence and primitive types against the tool declaration.
func (s *Spec) validate(args map[string]any) error {
	for _, p := range s.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return fmt.Errorf("%w: %s", ErrMissingArgument, p.Name)
			}
			continue
		}
		switch p.Type {
		case TypeString:
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: %s must be a string", ErrInvalidArgument, p.Name)
			}
			if p.Required && strings.TrimSpace(str) == "" {
				return fmt.Errorf("%w: %s", ErrMissingArgument, p.Name)
			}
		case TypeInteger:
			if _, ok := toInt(v); !ok {
				return fmt.Errorf("%w: %s must be an integer", ErrInvalidArgument, p.Name)
			}
		}
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, name string, def int) int {
	if n, ok := toInt(args[name]); ok {
		return n
	}
	return def
}

// stripIdentity returns a copy of args without identity-like keys, plus the
// keys that were removed.
func stripIdentity(args map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	var removed []string
	for _, k := range identityKeys {
		if _, ok := out[k]; ok {
			removed = append(removed, k)
			delete(out, k)
		}
	}
	return out, removed
}
