package store

import "time"

// Object is one stored submission document. Namespace mirrors the bucket
// name used by remote object storage so keys stay portable between backends.
type Object struct {
	Namespace   string
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// DeadLetter records a submission whose persistence failed after retries.
// The sweeper replays these until they succeed or an operator removes them.
type DeadLetter struct {
	ID                  string
	Bucket              string
	Form                string
	BusinessKey         string
	ProcessInstanceID   string
	ProcessDefinitionID string
	ExecutionID         string
	Attempts            int
	LastError           string
	CreatedAt           time.Time
	LastAttemptAt       *time.Time
}
