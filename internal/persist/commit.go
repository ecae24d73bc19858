package persist

import "sync"

// Outcome is the terminal state of a unit of work.
type Outcome int

const (
	// Committed means every event in the batch was accepted.
	Committed Outcome = iota
	// RolledBack means the batch failed and its effects must not persist.
	RolledBack
)

// CommitHook lets callers defer side effects until the surrounding unit of
// work settles. Callbacks run synchronously, in registration order, exactly
// once.
type CommitHook interface {
	OnCompletion(fn func(Outcome))
}

// UnitOfWork collects completion callbacks for one event batch and fires
// them on Commit or Rollback. The zero value is ready to use.
type UnitOfWork struct {
	mu      sync.Mutex
	hooks   []func(Outcome)
	settled bool
}

func (u *UnitOfWork) OnCompletion(fn func(Outcome)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hooks = append(u.hooks, fn)
}

// Commit settles the unit as Committed. Calls after the first settle are
// ignored.
func (u *UnitOfWork) Commit() { u.settle(Committed) }

// Rollback settles the unit as RolledBack. Calls after the first settle are
// ignored.
func (u *UnitOfWork) Rollback() { u.settle(RolledBack) }

func (u *UnitOfWork) settle(outcome Outcome) {
	u.mu.Lock()
	if u.settled {
		u.mu.Unlock()
		return
	}
	u.settled = true
	hooks := u.hooks
	u.hooks = nil
	u.mu.Unlock()

	for _, fn := range hooks {
		fn(outcome)
	}
}

var _ CommitHook = (*UnitOfWork)(nil)
