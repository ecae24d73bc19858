package persist

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/caseflow/internal/store"
	"github.com/rendis/caseflow/pkg/schema"
)

type fakeJournal struct {
	mu       sync.Mutex
	letters  map[string]*store.DeadLetter
	vacuumed int
}

func newFakeJournal() *fakeJournal { return &fakeJournal{letters: map[string]*store.DeadLetter{}} }

func (f *fakeJournal) PutObject(context.Context, *store.Object) error { return nil }
func (f *fakeJournal) ObjectExists(context.Context, string, string) (bool, error) {
	return false, nil
}
func (f *fakeJournal) EnqueueDeadLetter(_ context.Context, dl *store.DeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.letters[dl.ID] = dl
	return nil
}

func (f *fakeJournal) ListDeadLetters(context.Context, int) ([]*store.DeadLetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.DeadLetter
	for _, dl := range f.letters {
		out = append(out, dl)
	}
	return out, nil
}

func (f *fakeJournal) MarkDeadLetterAttempt(_ context.Context, id string, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dl, ok := f.letters[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "dead_letter %q not found", id)
	}
	dl.Attempts++
	dl.LastError = lastError
	return nil
}

func (f *fakeJournal) DeleteDeadLetter(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.letters, id)
	return nil
}

func (f *fakeJournal) Migrate(context.Context) error { return nil }

func (f *fakeJournal) Vacuum(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vacuumed++
	return nil
}

func (f *fakeJournal) Close() error { return nil }

func deadLetterFor(form string) *store.DeadLetter {
	return &store.DeadLetter{
		ID:                "dl-1",
		Bucket:            "case-data",
		Form:              form,
		BusinessKey:       "CASE-claims-001",
		ProcessInstanceID: "pi-1",
		ExecutionID:       "ex-1",
	}
}

func TestSweepReplaysAndClears(t *testing.T) {
	journal := newFakeJournal()
	require.NoError(t, journal.EnqueueDeadLetter(context.Background(), deadLetterFor(testForm)))

	objects := newFakeObjects()
	index := newFakeIndex()
	orch := NewOrchestrator(objects, index, &fakeIncidents{}, journal, RetryPolicy{Attempts: 1}, nil)
	sweeper, err := NewSweeper(journal, orch, "*/5 * * * *", nil)
	require.NoError(t, err)

	sweeper.Sweep(context.Background())

	assert.Empty(t, journal.letters, "replayed dead letter is removed")
	assert.Len(t, objects.puts, 1)
	assert.Equal(t, 1, journal.vacuumed, "journal is compacted after removals")
}

func TestSweepKeepsFailingLetters(t *testing.T) {
	journal := newFakeJournal()
	require.NoError(t, journal.EnqueueDeadLetter(context.Background(), deadLetterFor(testForm)))

	objects := newFakeObjects()
	objects.putErr = schema.NewError(schema.ErrCodeStore, "still down")
	index := newFakeIndex()
	orch := NewOrchestrator(objects, index, &fakeIncidents{}, journal, RetryPolicy{Attempts: 1}, nil)
	sweeper, err := NewSweeper(journal, orch, "*/5 * * * *", nil)
	require.NoError(t, err)

	sweeper.Sweep(context.Background())

	require.Len(t, journal.letters, 1)
	dl := journal.letters["dl-1"]
	assert.Equal(t, 1, dl.Attempts)
	assert.Contains(t, dl.LastError, "still down")
	assert.Zero(t, journal.vacuumed, "nothing removed, nothing to compact")
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(newFakeJournal(), nil, "not a schedule", nil)
	require.Error(t, err)
}
