package listener

import (
	"context"
	"sync"

	"github.com/opentip/funnelhub/ledger"
)

// settlementQueue buffers settlement notifications between the per-invoice
// subscription tasks and the forwarding workers.
type settlementQueue struct {
	settlements chan *ledger.SettlementEvent
	mu          sync.RWMutex
	closed      bool
}

func newSettlementQueue(bufferSize int) *settlementQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &settlementQueue{
		settlements: make(chan *ledger.SettlementEvent, bufferSize),
	}
}

// Enqueue adds a settlement without blocking and reports whether it was
// accepted. Callers retry when the queue is full.
func (q *settlementQueue) Enqueue(settlement *ledger.SettlementEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.settlements <- settlement:
		return true
	default:
		return false
	}
}

// Next blocks until the next settlement is available or the context is cancelled.
func (q *settlementQueue) Next(ctx context.Context) (*ledger.SettlementEvent, error) {
	select {
	case settlement, ok := <-q.settlements:
		if !ok {
			return nil, context.Canceled
		}
		return settlement, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetAndClearPending returns all buffered settlements without blocking.
func (q *settlementQueue) GetAndClearPending() []*ledger.SettlementEvent {
	settlements := []*ledger.SettlementEvent{}
	for {
		select {
		case settlement, ok := <-q.settlements:
			if !ok {
				return settlements
			}
			settlements = append(settlements, settlement)
		default:
			return settlements
		}
	}
}

func (q *settlementQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.settlements)
	}
}
