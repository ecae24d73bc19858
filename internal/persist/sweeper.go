package persist

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/caseflow/internal/store"
)

// sweepBatchSize bounds how many dead letters one sweep replays.
const sweepBatchSize = 100

// Sweeper periodically replays dead-lettered submissions through the
// orchestrator. Successful replays leave the journal; failures stay with an
// updated attempt count.
type Sweeper struct {
	journal  store.Store
	orch     *Orchestrator
	schedule cron.Schedule
	logger   *slog.Logger
}

// NewSweeper parses a standard five-field cron schedule.
func NewSweeper(journal store.Store, orch *Orchestrator, schedule string, logger *slog.Logger) (*Sweeper, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{journal: journal, orch: orch, schedule: sched, logger: logger}, nil
}

// Run blocks, sweeping on schedule until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep replays one batch of dead letters.
func (s *Sweeper) Sweep(ctx context.Context) {
	letters, err := s.journal.ListDeadLetters(ctx, sweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "cannot list dead letters", slog.String("error", err.Error()))
		return
	}
	if len(letters) == 0 {
		return
	}
	s.logger.InfoContext(ctx, "replaying dead letters", slog.Int("count", len(letters)))

	removed := 0
	for _, dl := range letters {
		if ctx.Err() != nil {
			return
		}
		err := s.orch.Save(ctx, &SaveRequest{
			Form:                dl.Form,
			Bucket:              dl.Bucket,
			BusinessKey:         dl.BusinessKey,
			ProcessInstanceID:   dl.ProcessInstanceID,
			ProcessDefinitionID: dl.ProcessDefinitionID,
			ExecutionID:         dl.ExecutionID,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "dead letter replay failed",
				slog.String("dead_letter_id", dl.ID),
				slog.Int("attempts", dl.Attempts+1),
				slog.String("error", err.Error()))
			if mErr := s.journal.MarkDeadLetterAttempt(ctx, dl.ID, err.Error()); mErr != nil {
				s.logger.ErrorContext(ctx, "cannot record replay attempt",
					slog.String("dead_letter_id", dl.ID),
					slog.String("error", mErr.Error()))
			}
			continue
		}
		if dErr := s.journal.DeleteDeadLetter(ctx, dl.ID); dErr != nil {
			s.logger.ErrorContext(ctx, "cannot remove replayed dead letter",
				slog.String("dead_letter_id", dl.ID),
				slog.String("error", dErr.Error()))
			continue
		}
		removed++
	}

	// Reclaim journal space once replayed letters are gone.
	if removed > 0 {
		if vErr := s.journal.Vacuum(ctx); vErr != nil {
			s.logger.WarnContext(ctx, "journal vacuum failed", slog.String("error", vErr.Error()))
		}
	}
}
