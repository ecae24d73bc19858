// Package forms decomposes committed variable payloads into independent form
// submissions and derives their content-addressing keys.
package forms

import (
	"encoding/json"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/caseflow/pkg/schema"
)

// Splitter extracts the independent form-submission documents embedded in a
// variable payload. A payload is either one submission, or a wizard-style
// composite whose top-level sections each hold a submission.
type Splitter struct {
	accept *vm.Program
}

// NewSplitter creates a splitter. acceptExpr optionally overrides the
// recognition predicate; it is evaluated against each candidate document
// (the default recognizes documents with a "form" object).
func NewSplitter(acceptExpr string) (*Splitter, error) {
	s := &Splitter{}
	if acceptExpr != "" {
		prg, err := expr.Compile(acceptExpr,
			expr.Env(map[string]any{}),
			expr.AllowUndefinedVariables(),
			expr.AsBool(),
		)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"accept expression %q: %s", acceptExpr, err.Error()).WithCause(err)
		}
		s.accept = prg
	}
	return s, nil
}

// Split returns the submissions found in payload, in document order.
// Payloads that are not JSON objects, or contain no recognizable form
// structure, yield an empty slice: absence of forms is a normal outcome.
func (s *Splitter) Split(payload string) []string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil || doc == nil {
		return nil
	}
	if s.accepts(doc) {
		return []string{payload}
	}
	fields, err := topLevelFields(payload)
	if err != nil {
		return nil
	}
	var out []string
	for _, f := range fields {
		var section map[string]any
		if err := json.Unmarshal(f.raw, &section); err != nil || section == nil {
			continue
		}
		if s.accepts(section) {
			out = append(out, string(f.raw))
		}
	}
	return out
}

func (s *Splitter) accepts(doc map[string]any) bool {
	if s.accept != nil {
		res, err := expr.Run(s.accept, doc)
		ok, isBool := res.(bool)
		return err == nil && isBool && ok
	}
	form, ok := doc["form"].(map[string]any)
	return ok && form != nil
}

type field struct {
	name string
	raw  json.RawMessage
}

// topLevelFields walks the payload with a decoder so the original key order
// and raw text of each section are preserved (maps would lose both).
func topLevelFields(payload string) ([]field, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil
	}
	var fields []field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, field{name: key, raw: raw})
	}
	return fields, nil
}
