package obs

import (
	"sync/atomic"
	"time"
)

// Op identifies a counted bank operation.
type Op uint8

const (
	OpUnknown Op = iota
	OpDeposit
	OpWithdrawal
	OpTransfer
	OpQuery
	OpLogin
)

const maxOp = int(OpLogin)

// LockResources is the number of named locks whose wait time is tracked.
// The lock package fails to compile when its resource set disagrees.
const LockResources = 6

func (o Op) String() string {
	switch o {
	case OpDeposit:
		return "deposit"
	case OpWithdrawal:
		return "withdrawal"
	case OpTransfer:
		return "transfer"
	case OpQuery:
		return "query"
	case OpLogin:
		return "login"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	opCounts     [maxOp + 1]uint64
	rejectCounts [maxOp + 1]uint64

	bufferEnqueued  uint64
	bufferPersisted uint64
	persistFailures uint64
	journalFailures uint64
	alerts          uint64

	lockWait       [LockResources]LatencyStats
	persistLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Ops             map[Op]uint64
	Rejections      map[Op]uint64
	BufferEnqueued  uint64
	BufferPersisted uint64
	PersistFailures uint64
	JournalFailures uint64
	Alerts          uint64
	LockWait        map[int]LatencySnapshot
	PersistLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncOp counts a completed operation.
func (m *Metrics) IncOp(op Op) {
	if m == nil {
		return
	}
	if idx := int(op); idx < len(m.opCounts) {
		atomic.AddUint64(&m.opCounts[idx], 1)
	}
}

// IncRejected counts an operation refused by validation.
func (m *Metrics) IncRejected(op Op) {
	if m == nil {
		return
	}
	if idx := int(op); idx < len(m.rejectCounts) {
		atomic.AddUint64(&m.rejectCounts[idx], 1)
	}
}

func (m *Metrics) IncEnqueued() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.bufferEnqueued, 1)
}

// ObservePersist records one persisted buffer entry and its write latency.
func (m *Metrics) ObservePersist(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.bufferPersisted, 1)
	m.persistLatency.Observe(d)
}

func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.persistFailures, 1)
}

func (m *Metrics) IncJournalFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.journalFailures, 1)
}

func (m *Metrics) IncAlert() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.alerts, 1)
}

// ObserveLockWait measures how long a caller waited for a named lock.
func (m *Metrics) ObserveLockWait(resource int, d time.Duration) {
	if m == nil {
		return
	}
	if resource >= 0 && resource < len(m.lockWait) {
		m.lockWait[resource].Observe(d)
	}
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	ops := make(map[Op]uint64)
	rejections := make(map[Op]uint64)
	for i := range m.opCounts {
		if v := atomic.LoadUint64(&m.opCounts[i]); v > 0 {
			ops[Op(i)] = v
		}
		if v := atomic.LoadUint64(&m.rejectCounts[i]); v > 0 {
			rejections[Op(i)] = v
		}
	}
	lockWait := make(map[int]LatencySnapshot)
	for i := range m.lockWait {
		if s := m.lockWait[i].Snapshot(); s.Count > 0 {
			lockWait[i] = s
		}
	}
	return Snapshot{
		Ops:             ops,
		Rejections:      rejections,
		BufferEnqueued:  atomic.LoadUint64(&m.bufferEnqueued),
		BufferPersisted: atomic.LoadUint64(&m.bufferPersisted),
		PersistFailures: atomic.LoadUint64(&m.persistFailures),
		JournalFailures: atomic.LoadUint64(&m.journalFailures),
		Alerts:          atomic.LoadUint64(&m.alerts),
		LockWait:        lockWait,
		PersistLatency:  m.persistLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
