package buffer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/n0ct4/secure-bank-final/internal/account"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/yanun0323/errors"
	"golang.org/x/sync/semaphore"
)

const DefaultCapacity = 10

// Entry is an account snapshot waiting to be persisted.
type Entry struct {
	Account    account.Account
	EnqueuedAt time.Time
}

// Buffer is a bounded FIFO ring between the operation handlers and the
// record file. Producers block while it is full; nothing is dropped.
type Buffer struct {
	capacity int
	metrics  *obs.Metrics

	// empty counts free slots, filled counts occupied ones.
	empty  *semaphore.Weighted
	filled *semaphore.Weighted

	mu    sync.Mutex
	slots []Entry
	head  int
	tail  int
	count int

	closed uint32
}

// New allocates a buffer. capacity <= 0 selects DefaultCapacity.
func New(capacity int, metrics *obs.Metrics) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		capacity: capacity,
		metrics:  metrics,
		empty:    semaphore.NewWeighted(int64(capacity)),
		filled:   semaphore.NewWeighted(int64(capacity)),
		slots:    make([]Entry, capacity),
	}
	// filled starts with no permits available.
	_ = b.filled.Acquire(context.Background(), int64(capacity))
	return b
}

// Enqueue blocks until a slot is free, then appends e at the tail.
func (b *Buffer) Enqueue(ctx context.Context, e Entry) error {
	return b.EnqueueBatch(ctx, e)
}

// EnqueueBatch reserves one slot per entry in a single step and appends
// them in order, so a batch is either fully queued or not queued at all.
func (b *Buffer) EnqueueBatch(ctx context.Context, entries ...Entry) error {
	n := len(entries)
	if n == 0 {
		return nil
	}
	if n > b.capacity {
		return errors.Wrapf(exception.ErrInvalidArgument, "batch of %d exceeds capacity %d", n, b.capacity)
	}
	if atomic.LoadUint32(&b.closed) != 0 {
		return exception.ErrBufferClosed
	}
	if err := b.empty.Acquire(ctx, int64(n)); err != nil {
		return errors.Wrap(err, "wait for free slot")
	}

	now := time.Now()
	b.mu.Lock()
	if atomic.LoadUint32(&b.closed) != 0 {
		b.mu.Unlock()
		b.empty.Release(int64(n))
		return exception.ErrBufferClosed
	}
	for _, e := range entries {
		if e.EnqueuedAt.IsZero() {
			e.EnqueuedAt = now
		}
		b.slots[b.tail] = e
		b.tail = (b.tail + 1) % b.capacity
		b.count++
	}
	b.filled.Release(int64(n))
	b.mu.Unlock()

	for range entries {
		b.metrics.IncEnqueued()
	}
	return nil
}

// Dequeue blocks until an entry is available and removes the oldest one.
// Only the drainer and the shutdown drain call it.
func (b *Buffer) Dequeue(ctx context.Context) (Entry, error) {
	if err := b.filled.Acquire(ctx, 1); err != nil {
		return Entry{}, errors.Wrap(err, "wait for entry")
	}
	return b.pop(), nil
}

// TryDequeue removes the oldest entry without blocking.
func (b *Buffer) TryDequeue() (Entry, bool) {
	if !b.filled.TryAcquire(1) {
		return Entry{}, false
	}
	return b.pop(), true
}

func (b *Buffer) pop() Entry {
	b.mu.Lock()
	e := b.slots[b.head]
	b.slots[b.head] = Entry{}
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.mu.Unlock()

	b.empty.Release(1)
	return e
}

// Close stops the buffer from accepting entries. Buffered entries stay
// available to Dequeue and Drain, and every enqueue that succeeded before
// Close returned is among them.
func (b *Buffer) Close() {
	b.mu.Lock()
	atomic.StoreUint32(&b.closed, 1)
	b.mu.Unlock()
}

func (b *Buffer) Closed() bool {
	return atomic.LoadUint32(&b.closed) != 0
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Buffer) Cap() int {
	return b.capacity
}

// Drain synchronously persists every buffered entry in FIFO order. A failed
// entry does not stop the drain; the first error is returned.
func (b *Buffer) Drain(p Persister) (int, error) {
	var (
		persisted int
		firstErr  error
	)
	for {
		e, ok := b.TryDequeue()
		if !ok {
			return persisted, firstErr
		}
		start := time.Now()
		if err := p.Persist(e.Account); err != nil {
			b.metrics.IncPersistFailure()
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "drain account %d", e.Account.Number)
			}
			continue
		}
		b.metrics.ObservePersist(time.Since(start))
		persisted++
	}
}
