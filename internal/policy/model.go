package policy

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
)

// Property is a single engine extension property attached to a process model.
type Property struct {
	Name  string
	Value string
}

// Model holds the extension properties of a parsed process model, in
// document order. It is cheap to rebuild and carries no lifecycle: callers
// re-parse per filtered request.
type Model struct {
	props []Property
}

// ParseModel extracts extension properties from BPMN XML. Only elements
// local-named "property" with name/value attributes are considered, which
// covers the engine's vendor-namespaced extension elements. A malformed
// model yields an empty property set, never an error: policy resolution
// failures must default to "no policy applies".
func ParseModel(raw []byte) *Model {
	m := &Model{}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return m
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "property" {
			continue
		}
		var p Property
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "name":
				p.Name = attr.Value
			case "value":
				p.Value = attr.Value
			}
		}
		if p.Name != "" {
			m.props = append(m.props, p)
		}
	}
}

// Attribute looks up the first property matching key (case-insensitively)
// and converts it, or returns def when the property is absent or the
// conversion fails.
func Attribute[TO any](m *Model, key string, conv func(string) (TO, error), def TO) TO {
	if m == nil {
		return def
	}
	for _, p := range m.props {
		if strings.EqualFold(p.Name, key) {
			v, err := conv(p.Value)
			if err != nil {
				return def
			}
			return v
		}
	}
	return def
}

// StringAttribute returns the raw value of the first property matching key,
// or def when absent.
func StringAttribute(m *Model, key, def string) string {
	return Attribute(m, key, func(s string) (string, error) { return s, nil }, def)
}

// BoolAttribute parses the first property matching key as a boolean,
// or returns def when absent or malformed.
func BoolAttribute(m *Model, key string, def bool) bool {
	return Attribute(m, key, strconv.ParseBool, def)
}
