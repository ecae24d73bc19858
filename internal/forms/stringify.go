package forms

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rendis/caseflow/pkg/schema"
)

// StringifyLeaves rewrites a JSON object so every scalar leaf is a string.
// Objects are walked recursively; array elements recurse when they are
// objects and are rendered as strings otherwise. The search index maps leaf
// fields as text.
func StringifyLeaves(doc string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return "", schema.NewError(schema.ErrCodeValidation, "parse document for indexing").WithCause(err)
	}
	stringifyObject(root)
	out, err := json.Marshal(root)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeValidation, "render document for indexing").WithCause(err)
	}
	return string(out), nil
}

func stringifyObject(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			stringifyObject(val)
		case []any:
			for i, el := range val {
				if obj, ok := el.(map[string]any); ok {
					stringifyObject(obj)
					continue
				}
				val[i] = scalarString(el)
			}
		default:
			m[k] = scalarString(v)
		}
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return "null"
	default:
		raw, _ := json.Marshal(val)
		return string(raw)
	}
}
