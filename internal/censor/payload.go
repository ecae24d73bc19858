package censor

import (
	"bytes"
	"encoding/json"

	"github.com/rendis/caseflow/pkg/schema"
)

// variableTransform mutates one variable in place (seal or open).
type variableTransform func(*schema.Variable) error

// rewriteVariablesUnder parses body as a JSON object, applies fn to every
// variable under key, and re-marshals. All sibling fields survive the round
// trip untouched. A missing or null key passes the body through unchanged.
func rewriteVariablesUnder(body []byte, key string, fn variableTransform) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "body is not a JSON object").WithCause(err)
	}
	raw, ok := doc[key]
	if !ok || isNull(raw) {
		return body, nil
	}
	rewritten, err := rewriteVariableMap(raw, fn)
	if err != nil {
		return nil, err
	}
	doc[key] = rewritten
	return json.Marshal(doc)
}

// rewriteVariableMap applies fn to every entry of a {name: variable} map.
func rewriteVariableMap(body []byte, fn variableTransform) ([]byte, error) {
	var vars map[string]*schema.Variable
	if err := json.Unmarshal(body, &vars); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "variables are not a name/value map").WithCause(err)
	}
	for name, v := range vars {
		if v == nil {
			continue
		}
		if err := fn(v); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeCrypto, "variable %q: %s", name, err.Error()).WithCause(err)
		}
	}
	return json.Marshal(vars)
}

// rewriteSingleVariable applies fn to a body that is one variable DTO.
func rewriteSingleVariable(body []byte, fn variableTransform) ([]byte, error) {
	var v schema.Variable
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "body is not a variable").WithCause(err)
	}
	if err := fn(&v); err != nil {
		return nil, err
	}
	return json.Marshal(&v)
}

// rewriteInstanceList applies fn to each element of a variable-instance
// list. Instances carry the variable fields at the top level next to ids
// and scope fields, so only type/value/valueInfo are rewritten and every
// other field is preserved verbatim.
func rewriteInstanceList(body []byte, fn variableTransform) ([]byte, error) {
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "body is not an instance list").WithCause(err)
	}
	for _, obj := range list {
		if err := rewriteInstanceObject(obj, fn); err != nil {
			return nil, err
		}
	}
	return json.Marshal(list)
}

// rewriteSingleInstance applies fn to one variable-instance object.
func rewriteSingleInstance(body []byte, fn variableTransform) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "body is not a variable instance").WithCause(err)
	}
	if err := rewriteInstanceObject(obj, fn); err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

func rewriteInstanceObject(obj map[string]json.RawMessage, fn variableTransform) error {
	var v schema.Variable
	if raw, ok := obj["type"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &v.Type); err != nil {
			return schema.NewError(schema.ErrCodeValidation, "instance type is not a string").WithCause(err)
		}
	}
	if raw, ok := obj["value"]; ok {
		if err := json.Unmarshal(raw, &v.Value); err != nil {
			return schema.NewError(schema.ErrCodeValidation, "instance value is not valid JSON").WithCause(err)
		}
	}
	if raw, ok := obj["valueInfo"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &v.ValueInfo); err != nil {
			return schema.NewError(schema.ErrCodeValidation, "instance valueInfo is not a map").WithCause(err)
		}
	}
	if err := fn(&v); err != nil {
		return err
	}
	obj["type"], _ = json.Marshal(v.Type)
	obj["value"], _ = json.Marshal(v.Value)
	obj["valueInfo"], _ = json.Marshal(v.ValueInfo)
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
