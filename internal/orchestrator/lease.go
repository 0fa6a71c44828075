package orchestrator

import (
	"context"
	"sync"
)

// accountLease is a fair (FIFO) mutual-exclusion lock for one account_id.
// Unlike sync.Mutex, waiters are served in the order they queued, which is
// what spec §5's "alerts for the same account are totally ordered by
// receipt timestamp" requires once alerts are queued in receipt order.
type accountLease struct {
	mu    sync.Mutex
	held  bool
	queue []chan struct{}
}

// Acquire blocks until the lease is held or ctx is done. A canceled
// acquire that was waiting in line removes itself from the queue without
// disturbing FIFO order for the remaining waiters.
func (l *accountLease) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	wait := make(chan struct{})
	l.queue = append(l.queue, wait)
	l.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.queue {
			if w == wait {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// We were already handed the lease between ctx.Done firing and
		// acquiring l.mu; release it immediately since the caller isn't
		// going to use it.
		l.Release()
		return ctx.Err()
	}
}

// Release hands the lease to the next queued waiter, or marks it free.
func (l *accountLease) Release() {
	l.mu.Lock()
	if len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		close(next)
		return
	}
	l.held = false
	l.mu.Unlock()
}

// leaseTable hands out one accountLease per account_id, creating it
// lazily on first use.
type leaseTable struct {
	mu     sync.Mutex
	leases map[string]*accountLease
}

func newLeaseTable() *leaseTable {
	return &leaseTable{leases: make(map[string]*accountLease)}
}

func (t *leaseTable) get(accountID string) *accountLease {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.leases[accountID]
	if !ok {
		l = &accountLease{}
		t.leases[accountID] = l
	}
	return l
}
