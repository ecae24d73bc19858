package persist

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rendis/caseflow/internal/engine"
	"github.com/rendis/caseflow/internal/forms"
	"github.com/rendis/caseflow/internal/logging"
	"github.com/rendis/caseflow/internal/policy"
	"github.com/rendis/caseflow/pkg/schema"
)

// Listener watches history variable events and schedules submission
// persistence for after the surrounding batch commits. Rolled-back batches
// persist nothing.
type Listener struct {
	engine   engine.Services
	resolver *policy.Resolver
	orch     *Orchestrator
	splitter *forms.Splitter
	logger   *slog.Logger
}

// NewListener wires the commit-time persistence listener.
func NewListener(eng engine.Services, resolver *policy.Resolver, orch *Orchestrator, splitter *forms.Splitter, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{engine: eng, resolver: resolver, orch: orch, splitter: splitter, logger: logger}
}

// HandleEvent registers persistence of one variable event with the unit of
// work. The bucket is resolved up front so a model lookup failure surfaces
// while the batch is still open; the writes themselves wait for the commit.
func (l *Listener) HandleEvent(ctx context.Context, ev *schema.HistoryVariableEvent, hook CommitHook) error {
	if !ev.EligibleForPersistence() {
		return nil
	}
	bucket := l.resolveBucket(ctx, ev.ProcessDefinitionID)
	hook.OnCompletion(func(outcome Outcome) {
		if outcome != Committed {
			l.logger.DebugContext(ctx, "batch rolled back, dropping variable event",
				slog.String("process_instance_id", ev.ProcessInstanceID))
			return
		}
		l.persist(ctx, ev, bucket)
	})
	return nil
}

// resolveBucket reads the product extension property from the process model.
// A missing or unreadable model falls back to the case bucket rather than
// blocking the commit.
func (l *Listener) resolveBucket(ctx context.Context, definitionID string) string {
	raw, err := l.engine.ProcessModel(ctx, definitionID)
	if err != nil {
		l.logger.WarnContext(ctx, "process model unavailable, using fallback bucket",
			slog.String("process_definition_id", definitionID),
			slog.String("error", err.Error()))
		return l.resolver.BucketName(policy.ParseModel(nil))
	}
	return l.resolver.BucketName(policy.ParseModel(raw))
}

func (l *Listener) persist(ctx context.Context, ev *schema.HistoryVariableEvent, bucket string) {
	ctx = logging.WithProcessInstanceID(ctx, ev.ProcessInstanceID)
	ctx = logging.WithProcessDefinitionID(ctx, ev.ProcessDefinitionID)

	payload := decodePayload(ev.ByteValue)
	if payload == "" {
		l.logger.DebugContext(ctx, "variable event carries no usable payload")
		return
	}

	inst, err := l.engine.InstanceByID(ctx, ev.ProcessInstanceID)
	if err != nil {
		l.logger.ErrorContext(ctx, "cannot resolve process instance for committed variable",
			slog.String("error", err.Error()))
		return
	}

	docs := l.splitter.Split(payload)
	if len(docs) == 0 {
		l.logger.DebugContext(ctx, "no form submissions in committed variable")
		return
	}

	reqs := make([]*SaveRequest, 0, len(docs))
	for _, doc := range docs {
		reqs = append(reqs, &SaveRequest{
			Form:                doc,
			Bucket:              bucket,
			BusinessKey:         inst.BusinessKey,
			ProcessInstanceID:   ev.ProcessInstanceID,
			ProcessDefinitionID: ev.ProcessDefinitionID,
			ExecutionID:         ev.ExecutionID,
		})
	}
	l.orch.SaveAll(ctx, reqs)
}

// decodePayload turns the committed byte value into a JSON document string.
// Non-UTF-8 bytes and JSON nulls yield "", meaning nothing to persist.
func decodePayload(b []byte) string {
	if len(b) == 0 || !utf8.Valid(b) {
		return ""
	}
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return ""
	}
	if !json.Valid([]byte(s)) {
		return ""
	}
	return s
}
