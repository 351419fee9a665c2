package monitor

import (
	"fmt"

	"github.com/n0ct4/secure-bank-final/internal/journal"
)

// Rule names an anomaly pattern.
type Rule uint8

const (
	RuleWithdrawals Rule = iota + 1
	RuleTransfers
)

func (r Rule) String() string {
	switch r {
	case RuleWithdrawals:
		return "withdrawals"
	case RuleTransfers:
		return "transfers"
	default:
		return "unknown"
	}
}

// Alert is raised once per account for the life of the monitor.
type Alert struct {
	Number int32
	Rule   Rule
	Count  int
}

func (a Alert) String() string {
	return fmt.Sprintf("ALERT: account %d made %d consecutive %s", a.Number, a.Count, a.Rule)
}

type windowSlot struct {
	number int32
	kind   journal.Kind
}

var emptySlot = windowSlot{number: -1}

// Detector runs both rules over a stream of transaction lines using a
// window of the current line and the two before it.
type Detector struct {
	withdrawalThreshold int
	transferThreshold   int
	alerted             *AlertedSet

	prev2, prev1, cur windowSlot

	withdrawals int
	transfers   int
	gap         int
}

// NewDetector creates a detector. A threshold <= 0 disables its rule.
func NewDetector(withdrawalThreshold, transferThreshold int, alerted *AlertedSet) *Detector {
	if alerted == nil {
		alerted = NewAlertedSet()
	}
	d := &Detector{
		withdrawalThreshold: withdrawalThreshold,
		transferThreshold:   transferThreshold,
		alerted:             alerted,
	}
	d.Reset()
	return d
}

// Reset clears the window and the counters. The alerted set is kept.
func (d *Detector) Reset() {
	d.prev2, d.prev1, d.cur = emptySlot, emptySlot, emptySlot
	d.withdrawals = 1
	d.transfers = 1
	d.gap = 0
}

// Observe feeds one transaction and returns the alerts it triggers.
func (d *Detector) Observe(number int32, kind journal.Kind) []Alert {
	d.prev2, d.prev1, d.cur = d.prev1, d.cur, windowSlot{number: number, kind: kind}

	var alerts []Alert

	// Each transfer writes a sent line followed by a received line, so a
	// streak of transfers by one account repeats every second line.
	if d.prev2.kind == journal.KindTransferSent && d.cur.kind == journal.KindTransferSent && d.cur.number == d.prev2.number {
		d.transfers++
		d.gap = 0
	} else {
		if d.gap == 1 {
			d.transfers = 1
		}
		d.gap++
	}
	if d.transferThreshold > 0 && d.cur.kind == journal.KindTransferSent && d.transfers == d.transferThreshold && d.alerted.Add(number) {
		alerts = append(alerts, Alert{Number: number, Rule: RuleTransfers, Count: d.transferThreshold})
		d.transfers = 1
	}

	if d.cur.kind == journal.KindWithdrawal && d.prev1.kind == journal.KindWithdrawal && d.cur.number == d.prev1.number {
		d.withdrawals++
	} else {
		d.withdrawals = 1
	}
	if d.withdrawalThreshold > 0 && d.cur.kind == journal.KindWithdrawal && d.withdrawals == d.withdrawalThreshold && d.alerted.Add(number) {
		alerts = append(alerts, Alert{Number: number, Rule: RuleWithdrawals, Count: d.withdrawalThreshold})
		d.withdrawals = 1
	}

	return alerts
}
