package lock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/yanun0323/errors"
	"golang.org/x/sync/semaphore"
)

// Resource names one of the process-wide critical sections.
type Resource uint8

const (
	AccountMutation Resource = iota
	AccountLookup
	TransactionLog
	AuditLog
	Transfer
	PersonalLog

	resourceCount
)

// Lock wait metrics are sized by obs.LockResources.
var _ = [1]struct{}{}[resourceCount-obs.LockResources]

func (r Resource) String() string {
	switch r {
	case AccountMutation:
		return "account-mutation"
	case AccountLookup:
		return "account-lookup"
	case TransactionLog:
		return "transaction-log"
	case AuditLog:
		return "audit-log"
	case Transfer:
		return "transfer"
	case PersonalLog:
		return "personal-log"
	default:
		return "unknown"
	}
}

// Resources lists every named lock in declaration order.
func Resources() []Resource {
	out := make([]Resource, 0, resourceCount)
	for r := Resource(0); r < resourceCount; r++ {
		out = append(out, r)
	}
	return out
}

// Manager owns one binary semaphore per Resource.
type Manager struct {
	sems    [resourceCount]*semaphore.Weighted
	metrics *obs.Metrics
	closed  uint32
}

// NewManager creates the full set of locks. metrics may be nil.
func NewManager(metrics *obs.Metrics) *Manager {
	m := &Manager{metrics: metrics}
	for i := range m.sems {
		m.sems[i] = semaphore.NewWeighted(1)
	}
	return m
}

// Acquire blocks until res is free or ctx is done. The returned release
// must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, res Resource) (func(), error) {
	if m == nil {
		return nil, exception.ErrNilInstance
	}
	if res >= resourceCount {
		return nil, errors.Wrapf(exception.ErrUnknownResource, "resource: %d", res)
	}
	if atomic.LoadUint32(&m.closed) != 0 {
		return nil, exception.ErrLockManagerClosed
	}

	sem := m.sems[res]
	start := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrapf(err, "acquire %s", res)
	}
	m.metrics.ObserveLockWait(int(res), time.Since(start))

	var released uint32
	return func() {
		if atomic.CompareAndSwapUint32(&released, 0, 1) {
			sem.Release(1)
		}
	}, nil
}

// Do runs fn while holding res. The lock is released on every exit path,
// including a panic inside fn.
func (m *Manager) Do(ctx context.Context, res Resource, fn func() error) error {
	release, err := m.Acquire(ctx, res)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Close tears the set down. Holders keep their locks until they release;
// new acquisitions fail with ErrLockManagerClosed.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	atomic.StoreUint32(&m.closed, 1)
}
