package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitOfWorkCommit(t *testing.T) {
	uow := &UnitOfWork{}
	var got []Outcome
	uow.OnCompletion(func(o Outcome) { got = append(got, o) })
	uow.OnCompletion(func(o Outcome) { got = append(got, o) })

	uow.Commit()
	assert.Equal(t, []Outcome{Committed, Committed}, got)
}

func TestUnitOfWorkRollback(t *testing.T) {
	uow := &UnitOfWork{}
	var got []Outcome
	uow.OnCompletion(func(o Outcome) { got = append(got, o) })

	uow.Rollback()
	assert.Equal(t, []Outcome{RolledBack}, got)
}

func TestUnitOfWorkSettlesOnce(t *testing.T) {
	uow := &UnitOfWork{}
	calls := 0
	uow.OnCompletion(func(Outcome) { calls++ })

	uow.Commit()
	uow.Commit()
	uow.Rollback()
	assert.Equal(t, 1, calls)
}

func TestUnitOfWorkHooksRunInOrder(t *testing.T) {
	uow := &UnitOfWork{}
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		uow.OnCompletion(func(Outcome) { order = append(order, i) })
	}
	uow.Commit()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestUnitOfWorkLateHookIgnored(t *testing.T) {
	uow := &UnitOfWork{}
	uow.Commit()

	called := false
	uow.OnCompletion(func(Outcome) { called = true })
	uow.Commit()
	assert.False(t, called)
}
