package nodes

import (
	"fmt"
	"strconv"
)

// String returns config[key] when it is a string.
func String(config map[string]any, key string) (string, bool) {
	s, ok := config[key].(string)

	return s, ok
}

// RequiredString returns a non-empty string field or a ConfigError.
func RequiredString(config map[string]any, key string) (string, error) {
	s, ok := String(config, key)
	if !ok || s == "" {
		return "", Required(key)
	}

	return s, nil
}

// StringMap reads a map of strings, formatting scalar values.
func StringMap(config map[string]any, key string) (map[string]string, error) {
	out := make(map[string]string)

	switch raw := config[key].(type) {
	case nil:
	case map[string]string:
		for k, v := range raw {
			out[k] = v
		}
	case map[string]any:
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				out[k] = val
			case float64, int, int64, bool:
				out[k] = fmt.Sprint(val)
			default:
				return nil, &ConfigError{Field: key + "." + k, Message: "must be a scalar"}
			}
		}
	default:
		return nil, &ConfigError{Field: key, Message: "must be an object"}
	}

	return out, nil
}

// Number reads a numeric field that may arrive as a JSON number, Go integer or numeric string.
func Number(config map[string]any, key string) (float64, bool) {
	switch n := config[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
