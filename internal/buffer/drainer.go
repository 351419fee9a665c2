package buffer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/n0ct4/secure-bank-final/internal/account"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
)

// Persister writes an account snapshot to durable storage.
type Persister interface {
	Persist(account.Account) error
}

// FailureFunc is told about every snapshot the drainer failed to persist.
type FailureFunc func(Entry, error)

// Drainer is the single consumer of a Buffer.
type Drainer struct {
	buf       *Buffer
	persister Persister
	onFailure FailureFunc
	metrics   *obs.Metrics

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started uint32
}

// NewDrainer binds a drainer to buf. onFailure and metrics may be nil.
func NewDrainer(buf *Buffer, persister Persister, onFailure FailureFunc, metrics *obs.Metrics) *Drainer {
	return &Drainer{
		buf:       buf,
		persister: persister,
		onFailure: onFailure,
		metrics:   metrics,
	}
}

// Start runs the drain loop in a new goroutine until Stop or ctx is done.
func (d *Drainer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&d.started, 0, 1) {
		return exception.ErrDrainerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
	return nil
}

// Stop cancels the loop and waits for the entry in hand to be persisted.
// Entries still buffered are left for Buffer.Drain.
func (d *Drainer) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Drainer) run(ctx context.Context) {
	for {
		e, err := d.buf.Dequeue(ctx)
		if err != nil {
			return
		}
		start := time.Now()
		if err := d.persister.Persist(e.Account); err != nil {
			d.metrics.IncPersistFailure()
			if d.onFailure != nil {
				d.onFailure(e, err)
			}
			continue
		}
		d.metrics.ObservePersist(time.Since(start))
	}
}
