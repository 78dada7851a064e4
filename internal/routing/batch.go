package routing

import (
	"sync"

	"github.com/lanemap/lanemap/internal/compose"
)

// batch serializes result delivery so Completed increases by one per message.
type batch struct {
	mu        sync.Mutex
	out       chan<- BatchResult
	total     int
	completed int
	failed    int
}

func newBatch(out chan<- BatchResult, total int) *batch {
	return &batch{out: out, total: total}
}

func (b *batch) report(unitID string, path *ResolvedPath, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.completed++
	res := BatchResult{
		UnitID:    unitID,
		State:     stateFor(err),
		Path:      path,
		Err:       err,
		Completed: b.completed,
		Total:     b.total,
	}
	if err != nil {
		res.Path = nil
		res.Error = err.Error()
		if res.State == StateResolveFailed {
			b.failed++
		}
	}
	// out is buffered for every unit, so this never blocks
	b.out <- res
}

// abandon reports units that were never started.
func (b *batch) abandon(units []compose.TripUnit, err error) {
	for _, u := range units {
		b.report(u.ID, nil, err)
	}
}
