// Package persist moves committed form submissions into durable storage and
// the search index, isolating failures per submission.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/caseflow/internal/engine"
	"github.com/rendis/caseflow/internal/forms"
	"github.com/rendis/caseflow/internal/logging"
	"github.com/rendis/caseflow/internal/objectstore"
	"github.com/rendis/caseflow/internal/search"
	"github.com/rendis/caseflow/internal/store"
	"github.com/rendis/caseflow/pkg/schema"
)

// IncidentTypePersistFailure marks engine incidents raised when a submission
// could not be persisted.
const IncidentTypePersistFailure = "FAILED_TO_PERSIST_FORM_DATA"

// IncidentReporter raises an incident on an execution in the engine.
type IncidentReporter interface {
	CreateIncident(ctx context.Context, inc engine.Incident) error
}

// SaveRequest is one submission to persist.
type SaveRequest struct {
	Form                string
	Bucket              string
	BusinessKey         string
	ProcessInstanceID   string
	ProcessDefinitionID string
	ExecutionID         string
}

// indexDoc is the summary written to the search index. Data carries the
// submission with its scalar leaves stringified.
type indexDoc struct {
	BusinessKey    string `json:"businessKey"`
	SubmissionDate string `json:"submissionDate"`
	SubmittedBy    string `json:"submittedBy"`
	FormName       string `json:"formName"`
	Data           string `json:"data"`
}

// Orchestrator drives the two-step persistence of a submission: object
// write first, index write second. An existing object short-circuits both
// steps, which makes replays of the same commit idempotent.
type Orchestrator struct {
	objects   objectstore.Store
	index     search.Index
	incidents IncidentReporter
	journal   store.Store
	retry     RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator wires the persistence pipeline. journal may be nil when no
// dead-letter replay is wanted.
func NewOrchestrator(objects objectstore.Store, index search.Index, incidents IncidentReporter, journal store.Store, retry RetryPolicy, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		objects:   objects,
		index:     index,
		incidents: incidents,
		journal:   journal,
		retry:     retry,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Save persists one submission. Documents that do not look like submissions
// are skipped without error: the commit stream carries plenty of variables
// that are not forms.
func (o *Orchestrator) Save(ctx context.Context, req *SaveRequest) error {
	if err := forms.ValidateSubmission(req.Form); err != nil {
		o.logger.DebugContext(ctx, "skipping non-submission payload",
			slog.String("process_instance_id", req.ProcessInstanceID),
			slog.String("reason", err.Error()))
		formsSkipped.Inc()
		return nil
	}
	sub, err := forms.ParseSubmission(req.Form)
	if err != nil {
		return err
	}
	ctx = logging.WithFormName(ctx, sub.FormName)
	submitted, err := forms.ParseSubmissionDate(sub.SubmissionDate)
	if err != nil {
		return err
	}
	key := forms.ContentKey(req.BusinessKey, sub.FormName, sub.SubmittedBy, submitted)

	exists, err := o.objects.Exists(ctx, req.Bucket, key)
	if err != nil {
		return err
	}
	if exists {
		o.logger.InfoContext(ctx, "submission already stored",
			slog.String("bucket", req.Bucket),
			slog.String("key", key))
		formsSkipped.Inc()
		return nil
	}

	meta := objectstore.Metadata{
		"processinstanceid":   req.ProcessInstanceID,
		"processdefinitionid": req.ProcessDefinitionID,
		"formversionid":       sub.FormVersionID,
		"name":                sub.FormName,
		"title":               sub.Title,
		"submittedby":         sub.SubmittedBy,
		"submissiondate":      sub.SubmissionDate,
	}
	var receipt string
	err = o.retry.Do(ctx, "store submission", func(ctx context.Context) error {
		var putErr error
		receipt, putErr = o.objects.Put(ctx, req.Bucket, key, []byte(req.Form), meta)
		if putErr != nil {
			writeRetries.Inc()
		}
		return putErr
	})
	if err != nil {
		return err
	}

	indexed, err := forms.StringifyLeaves(req.Form)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(indexDoc{
		BusinessKey:    req.BusinessKey,
		SubmissionDate: forms.KeyTimestamp(submitted),
		SubmittedBy:    sub.SubmittedBy,
		FormName:       sub.FormName,
		Data:           indexed,
	})
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "marshal index document").WithCause(err)
	}
	indexName := search.IndexName(req.BusinessKey, o.now())
	err = o.retry.Do(ctx, "index submission", func(ctx context.Context) error {
		idxErr := o.index.Index(ctx, indexName, key, doc)
		if idxErr != nil {
			writeRetries.Inc()
		}
		return idxErr
	})
	if err != nil {
		return err
	}

	o.logger.InfoContext(ctx, "submission persisted",
		slog.String("bucket", req.Bucket),
		slog.String("key", key),
		slog.String("index", indexName),
		slog.String("receipt", receipt))
	formsPersisted.Inc()
	return nil
}

// SaveAll persists a batch of submissions. A failed submission raises an
// incident on its execution and lands in the dead-letter journal, then the
// loop moves on: one broken form must not sink its siblings.
func (o *Orchestrator) SaveAll(ctx context.Context, reqs []*SaveRequest) {
	for _, req := range reqs {
		if err := o.Save(ctx, req); err != nil {
			o.reportFailure(ctx, req, err)
		}
	}
}

func (o *Orchestrator) reportFailure(ctx context.Context, req *SaveRequest, cause error) {
	formName := formNameOrUnknown(req.Form)
	o.logger.ErrorContext(ctx, "failed to persist submission",
		slog.String("form_name", formName),
		slog.String("process_instance_id", req.ProcessInstanceID),
		slog.String("error", cause.Error()))
	incidentsRaised.Inc()

	if o.incidents != nil {
		incErr := o.incidents.CreateIncident(ctx, engine.Incident{
			Type:        IncidentTypePersistFailure,
			ExecutionID: req.ExecutionID,
			Message:     "failed to persist form data for " + formName,
			Detail:      rootCause(cause).Error(),
		})
		if incErr != nil {
			o.logger.ErrorContext(ctx, "failed to raise incident",
				slog.String("execution_id", req.ExecutionID),
				slog.String("error", incErr.Error()))
		}
	}

	if o.journal != nil {
		dl := &store.DeadLetter{
			ID:                  uuid.NewString(),
			Bucket:              req.Bucket,
			Form:                req.Form,
			BusinessKey:         req.BusinessKey,
			ProcessInstanceID:   req.ProcessInstanceID,
			ProcessDefinitionID: req.ProcessDefinitionID,
			ExecutionID:         req.ExecutionID,
			LastError:           cause.Error(),
		}
		if jErr := o.journal.EnqueueDeadLetter(ctx, dl); jErr != nil {
			o.logger.ErrorContext(ctx, "failed to journal dead letter",
				slog.String("process_instance_id", req.ProcessInstanceID),
				slog.String("error", jErr.Error()))
		}
	}
}

func formNameOrUnknown(form string) string {
	if sub, err := forms.ParseSubmission(form); err == nil {
		return sub.FormName
	}
	return "unknown"
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
