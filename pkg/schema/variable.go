package schema

import "strings"

// Variable value types as they appear on the engine REST API.
const (
	VariableTypeJSON   = "Json"
	VariableTypeObject = "Object"
)

// Keys of the serialization metadata carried in a variable's valueInfo map.
// Encrypt and decrypt must agree on these exact strings.
const (
	ValueInfoObjectTypeName          = "objectTypeName"
	ValueInfoSerializationDataFormat = "serializationDataFormat"
)

// Marker values identifying a sealed envelope. A variable whose valueInfo
// objectTypeName equals SealedEnvelopeTypeName carries ciphertext, not JSON.
const (
	SealedEnvelopeTypeName   = "SealedEnvelope"
	SealedEnvelopeDataFormat = "application/x-sealed+base64"
	JSONDataFormat           = "application/json"
)

// Variable is the typed key/value payload attached to process instances and
// tasks, as exchanged on the engine REST API. Value is the raw JSON value;
// ValueInfo carries the serialization metadata needed to reverse encryption.
type Variable struct {
	Type      string         `json:"type,omitempty"`
	Value     any            `json:"value"`
	ValueInfo map[string]any `json:"valueInfo,omitempty"`
}

// IsJSON reports whether the variable's declared type is Json.
// The engine accepts the type name case-insensitively.
func (v *Variable) IsJSON() bool {
	return strings.EqualFold(v.Type, VariableTypeJSON)
}

// IsSealed reports whether the variable carries a sealed envelope.
func (v *Variable) IsSealed() bool {
	if v == nil || v.ValueInfo == nil {
		return false
	}
	name, _ := v.ValueInfo[ValueInfoObjectTypeName].(string)
	return name == SealedEnvelopeTypeName
}
