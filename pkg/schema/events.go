package schema

import "strings"

// History event types emitted by the engine on variable state changes.
const (
	VariableEventCreate = "create"
	VariableEventUpdate = "update"
)

// SerializerJSON is the serializer name of JSON-typed history variables.
// Only variables serialized as JSON are candidates for form persistence.
const SerializerJSON = "json"

// HistoryVariableEvent is the immutable fact the engine emits when a process
// variable is created or updated. ByteValue holds the serialized value as the
// engine recorded it.
type HistoryVariableEvent struct {
	ProcessInstanceID   string `json:"processInstanceId"`
	ProcessDefinitionID string `json:"processDefinitionId"`
	ExecutionID         string `json:"executionId"`
	SerializerName      string `json:"serializerName"`
	ByteValue           []byte `json:"byteValue"`
	EventType           string `json:"eventType"`
}

// EligibleForPersistence reports whether this event can carry form
// submissions: a JSON-serialized variable create or update.
func (e *HistoryVariableEvent) EligibleForPersistence() bool {
	if e == nil {
		return false
	}
	if !strings.EqualFold(e.SerializerName, SerializerJSON) {
		return false
	}
	return e.EventType == VariableEventCreate || e.EventType == VariableEventUpdate
}
