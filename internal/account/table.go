package account

import (
	"context"
	"sync"

	"github.com/n0ct4/secure-bank-final/internal/lock"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const DefaultCapacity = 100

// CommitFunc observes snapshots while the mutation lock is still held, so
// snapshots of one account reach it in commit order. The snapshots become
// visible to readers only after it returns nil; a non-nil error discards
// them.
type CommitFunc func(ctx context.Context, snapshots []Account) error

// Table is the shared account store. Readers go through the AccountLookup
// lock and writers through AccountMutation; mu only keeps the two sections
// memory safe with respect to each other.
type Table struct {
	locks    *lock.Manager
	capacity int
	onCommit CommitFunc

	mu    sync.RWMutex
	order []int32
	index map[int32]*Account
}

// LoadReport describes what Load skipped.
type LoadReport struct {
	Loaded     int
	Invalid    int
	Duplicates int
	Overflow   int
}

// NewTable creates an empty table. capacity <= 0 selects DefaultCapacity.
func NewTable(locks *lock.Manager, capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		locks:    locks,
		capacity: capacity,
		order:    make([]int32, 0, capacity),
		index:    make(map[int32]*Account, capacity),
	}
}

// Load builds a table from the record file. Invalid records, duplicate
// numbers and records past capacity are skipped with a warning.
func Load(file *RecordFile, locks *lock.Manager, capacity int) (*Table, LoadReport, error) {
	records, err := file.ReadAll()
	if err != nil {
		return nil, LoadReport{}, err
	}

	t := NewTable(locks, capacity)
	var report LoadReport
	for _, rec := range records {
		if !rec.Valid() {
			report.Invalid++
			continue
		}
		if _, ok := t.index[rec.Number]; ok {
			report.Duplicates++
			logs.Warnf("account file %s: duplicate account %d skipped", file.Path(), rec.Number)
			continue
		}
		if len(t.order) >= t.capacity {
			report.Overflow++
			continue
		}
		t.put(FromRecord(rec))
		report.Loaded++
	}
	if report.Overflow > 0 {
		logs.Warnf("account file %s: %d records past capacity %d ignored", file.Path(), report.Overflow, t.capacity)
	}
	return t, report, nil
}

// OnCommit installs the commit observer. It must be called before the
// table is shared.
func (t *Table) OnCommit(fn CommitFunc) {
	t.onCommit = fn
}

func (t *Table) put(a Account) {
	cp := a
	t.index[a.Number] = &cp
	t.order = append(t.order, a.Number)
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

func (t *Table) Cap() int {
	return t.capacity
}

// Insert adds a new account under the mutation lock.
func (t *Table) Insert(ctx context.Context, a Account) error {
	if !a.Valid() {
		return errors.Wrapf(exception.ErrAccountInvalid, "account: %d", a.Number)
	}
	return t.locks.Do(ctx, lock.AccountMutation, func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.index[a.Number]; ok {
			return errors.Wrapf(exception.ErrAccountExists, "account: %d", a.Number)
		}
		if len(t.order) >= t.capacity {
			return errors.Wrapf(exception.ErrTableFull, "capacity: %d", t.capacity)
		}
		t.put(a)
		return nil
	})
}

// Lookup returns a copy of the account under the lookup lock.
func (t *Table) Lookup(ctx context.Context, number int32) (Account, error) {
	var out Account
	err := t.locks.Do(ctx, lock.AccountLookup, func() error {
		t.mu.RLock()
		defer t.mu.RUnlock()
		a, ok := t.index[number]
		if !ok {
			return errors.Wrapf(exception.ErrAccountNotFound, "account: %d", number)
		}
		out = *a
		return nil
	})
	return out, err
}

// Authenticate checks the PIN of an account. Unknown accounts and wrong PINs
// both report ErrAuthFailed.
func (t *Table) Authenticate(ctx context.Context, number, pin int32) (Account, error) {
	var (
		a     Account
		found bool
	)
	err := t.locks.Do(ctx, lock.AccountLookup, func() error {
		t.mu.RLock()
		defer t.mu.RUnlock()
		if p, ok := t.index[number]; ok {
			a, found = *p, true
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	if !found || a.PIN != pin {
		return Account{}, errors.Wrapf(exception.ErrAuthFailed, "account: %d", number)
	}
	if a.Locked {
		return Account{}, errors.Wrapf(exception.ErrAccountLocked, "account: %d", number)
	}
	return a, nil
}

// List returns a copy of every account in load order.
func (t *Table) List(ctx context.Context) ([]Account, error) {
	var out []Account
	err := t.locks.Do(ctx, lock.AccountLookup, func() error {
		t.mu.RLock()
		defer t.mu.RUnlock()
		out = make([]Account, 0, len(t.order))
		for _, n := range t.order {
			out = append(out, *t.index[n])
		}
		return nil
	})
	return out, err
}

// Mutate applies fn to a working copy of the account under the mutation
// lock and commits it only when fn and the commit hook return nil. It
// returns the committed snapshot.
func (t *Table) Mutate(ctx context.Context, number int32, fn func(*Account) error) (Account, error) {
	var out Account
	err := t.locks.Do(ctx, lock.AccountMutation, func() error {
		t.mu.Lock()
		a, ok := t.index[number]
		if !ok {
			t.mu.Unlock()
			return errors.Wrapf(exception.ErrAccountNotFound, "account: %d", number)
		}
		work := *a
		t.mu.Unlock()
		if err := fn(&work); err != nil {
			return err
		}
		work.Number = number

		if err := t.notify(ctx, work); err != nil {
			return err
		}
		t.mu.Lock()
		*a = work
		t.mu.Unlock()
		out = work
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

func (t *Table) notify(ctx context.Context, snapshots ...Account) error {
	if t.onCommit == nil {
		return nil
	}
	return t.onCommit(ctx, snapshots)
}

// MutatePair is the two-account form of Mutate. Both accounts commit or
// neither does.
func (t *Table) MutatePair(ctx context.Context, src, dst int32, fn func(src, dst *Account) error) (Account, Account, error) {
	if src == dst {
		return Account{}, Account{}, errors.Wrapf(exception.ErrSameAccount, "account: %d", src)
	}
	var outSrc, outDst Account
	err := t.locks.Do(ctx, lock.AccountMutation, func() error {
		t.mu.Lock()
		a, ok := t.index[src]
		if !ok {
			t.mu.Unlock()
			return errors.Wrapf(exception.ErrAccountNotFound, "account: %d", src)
		}
		b, ok := t.index[dst]
		if !ok {
			t.mu.Unlock()
			return errors.Wrapf(exception.ErrAccountNotFound, "account: %d", dst)
		}
		workSrc, workDst := *a, *b
		t.mu.Unlock()
		if err := fn(&workSrc, &workDst); err != nil {
			return err
		}
		workSrc.Number, workDst.Number = src, dst

		if err := t.notify(ctx, workSrc, workDst); err != nil {
			return err
		}
		t.mu.Lock()
		*a, *b = workSrc, workDst
		t.mu.Unlock()
		outSrc, outDst = workSrc, workDst
		return nil
	})
	if err != nil {
		return Account{}, Account{}, err
	}
	return outSrc, outDst, nil
}
