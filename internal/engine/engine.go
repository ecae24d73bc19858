// Package engine defines the read-only contracts caseflow has with the
// process engine, plus its REST client adapter. BPMN execution, task
// lifecycle and history live in the engine itself; caseflow only resolves
// definitions, instances and tasks, fetches process models, and reports
// incidents.
package engine

import "context"

// ProcessDefinition is a versioned description of an executable workflow.
type ProcessDefinition struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Version int    `json:"version"`
}

// ProcessInstance is one running execution of a process definition.
type ProcessInstance struct {
	ID                  string `json:"id"`
	BusinessKey         string `json:"businessKey"`
	ProcessDefinitionID string `json:"definitionId"`
}

// Task is a user task belonging to a process instance.
type Task struct {
	ID                  string `json:"id"`
	ProcessInstanceID   string `json:"processInstanceId"`
	ProcessDefinitionID string `json:"processDefinitionId"`
}

// Incident is an engine-native fault record surfaced to operators when an
// automated step cannot complete.
type Incident struct {
	Type        string
	ExecutionID string
	Message     string
	Detail      string
}

// Services is the engine surface caseflow depends on.
type Services interface {
	DefinitionByID(ctx context.Context, id string) (*ProcessDefinition, error)
	LatestDefinitionByKey(ctx context.Context, key string) (*ProcessDefinition, error)
	InstanceByID(ctx context.Context, id string) (*ProcessInstance, error)
	TaskByID(ctx context.Context, id string) (*Task, error)
	// ProcessModel returns the raw BPMN XML of a deployed definition.
	ProcessModel(ctx context.Context, definitionID string) ([]byte, error)
	CreateIncident(ctx context.Context, inc Incident) error
}
