package monitor

import (
	"testing"

	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type op struct {
	number int32
	kind   journal.Kind
}

func feed(d *Detector, ops []op) []Alert {
	var out []Alert
	for _, o := range ops {
		out = append(out, d.Observe(o.number, o.kind)...)
	}
	return out
}

func repeat(o op, n int) []op {
	out := make([]op, n)
	for i := range out {
		out[i] = o
	}
	return out
}

func transfer(src, dst int32) []op {
	return []op{{src, journal.KindTransferSent}, {dst, journal.KindTransferReceived}}
}

func TestDetectorWithdrawalStreak(t *testing.T) {
	d := NewDetector(3, 0, nil)
	alerts := feed(d, repeat(op{1000, journal.KindWithdrawal}, 3))
	require.Len(t, alerts, 1)
	assert.Equal(t, Alert{Number: 1000, Rule: RuleWithdrawals, Count: 3}, alerts[0])
	assert.Equal(t, "ALERT: account 1000 made 3 consecutive withdrawals", alerts[0].String())

	assert.Empty(t, feed(d, repeat(op{1000, journal.KindWithdrawal}, 6)))

	d.Reset()
	assert.Empty(t, feed(d, repeat(op{1000, journal.KindWithdrawal}, 3)), "replay must not alert again")
}

func TestDetectorWithdrawalStreakBroken(t *testing.T) {
	d := NewDetector(3, 0, nil)
	ops := []op{
		{1000, journal.KindWithdrawal},
		{1000, journal.KindWithdrawal},
		{1001, journal.KindWithdrawal},
		{1000, journal.KindWithdrawal},
		{1000, journal.KindDeposit},
		{1000, journal.KindWithdrawal},
		{1000, journal.KindWithdrawal},
	}
	assert.Empty(t, feed(d, ops))
	assert.Len(t, feed(d, []op{{1000, journal.KindWithdrawal}}), 1)
}

func TestDetectorTransferStreak(t *testing.T) {
	d := NewDetector(0, 3, nil)
	var ops []op
	for i := 0; i < 3; i++ {
		ops = append(ops, transfer(1000, 1001)...)
	}
	alerts := feed(d, ops)
	require.Len(t, alerts, 1)
	assert.Equal(t, Alert{Number: 1000, Rule: RuleTransfers, Count: 3}, alerts[0])
}

func TestDetectorTransferStreakBrokenByOtherLines(t *testing.T) {
	d := NewDetector(0, 3, nil)
	ops := append(transfer(1000, 1001), transfer(1000, 1001)...)
	ops = append(ops, op{1002, journal.KindDeposit}, op{1002, journal.KindDeposit})
	ops = append(ops, transfer(1000, 1001)...)
	assert.Empty(t, feed(d, ops))

	ops = append(transfer(1000, 1001), transfer(1000, 1001)...)
	assert.Len(t, feed(d, ops), 1)
}

func TestDetectorDisabledRules(t *testing.T) {
	d := NewDetector(0, -1, nil)
	ops := repeat(op{1, journal.KindWithdrawal}, 10)
	for i := 0; i < 10; i++ {
		ops = append(ops, transfer(2, 3)...)
	}
	assert.Empty(t, feed(d, ops))
}

func TestDetectorThresholdOneIgnoresOtherKinds(t *testing.T) {
	d := NewDetector(1, 0, nil)
	assert.Empty(t, feed(d, []op{{5, journal.KindDeposit}}))
	assert.Len(t, feed(d, []op{{5, journal.KindWithdrawal}}), 1)
}

func TestAlertedSet(t *testing.T) {
	s := NewAlertedSet()
	assert.True(t, s.Add(3))
	assert.True(t, s.Add(1))
	assert.False(t, s.Add(3))
	assert.True(t, s.Contains(1))
	assert.False(t, s.Contains(2))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []int32{1, 3}, s.Accounts())
}
