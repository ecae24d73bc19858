package persist

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rendis/caseflow/pkg/schema"
)

// Handler receives history variable event batches over HTTP. Each batch is
// one unit of work: persistence callbacks registered by the listener fire
// only once the whole batch has been accepted.
type Handler struct {
	listener *Listener
	logger   *slog.Logger
}

// NewHandler wires the event intake endpoint.
func NewHandler(listener *Listener, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{listener: listener, logger: logger}
}

// ServeHTTP handles POST with a JSON array of variable events.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var events []*schema.HistoryVariableEvent
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		h.writeError(w, schema.NewError(schema.ErrCodeValidation, "malformed event batch").WithCause(err))
		return
	}

	uow := &UnitOfWork{}
	for _, ev := range events {
		if err := h.listener.HandleEvent(r.Context(), ev, uow); err != nil {
			uow.Rollback()
			h.writeError(w, err)
			return
		}
	}
	uow.Commit()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) && flowErr.Code == schema.ErrCodeValidation {
		status = http.StatusBadRequest
	}
	h.logger.Error("event batch rejected", slog.String("error", err.Error()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if flowErr != nil {
		_ = json.NewEncoder(w).Encode(flowErr)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
