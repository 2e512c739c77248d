package meta

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// MaybeSerialize converts a meta value to its stored text form.
// Scalars are stored as plain text; composites are stored as JSON. A string
// that already looks serialized is encoded once more so it reads back as the
// same string instead of being decoded.
func MaybeSerialize(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return serializeString(val)
	case []byte:
		return serializeString(string(val))
	case bool:
		if val {
			return "1", nil
		}
		return "", nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case json.Number:
		return val.String(), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func serializeString(s string) (string, error) {
	if !IsSerialized(s) {
		return s, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MaybeUnserialize converts stored text back to a meta value.
// JSON objects, arrays and string literals are decoded; anything else is
// returned as the string it is.
func MaybeUnserialize(s string) interface{} {
	if !IsSerialized(s) {
		return s
	}
	var out interface{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s
	}
	return out
}

// IsSerialized reports whether s is a JSON object, array or string literal
func IsSerialized(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	switch {
	case first == '{' && last == '}':
	case first == '[' && last == ']':
	case first == '"' && last == '"':
	default:
		return false
	}
	return json.Valid([]byte(s))
}

// ValuesEqual reports whether two meta values are stored identically.
// nil only equals nil, since nil marks a value that was never loaded.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	sa, errA := MaybeSerialize(a)
	sb, errB := MaybeSerialize(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return sa == sb
}
