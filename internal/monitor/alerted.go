package monitor

import (
	"slices"
	"sync"
)

// AlertedSet remembers every account that already raised an alert. It only
// grows and lives as long as the monitor.
type AlertedSet struct {
	mu       sync.Mutex
	accounts map[int32]struct{}
}

func NewAlertedSet() *AlertedSet {
	return &AlertedSet{accounts: make(map[int32]struct{})}
}

func (s *AlertedSet) Contains(number int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[number]
	return ok
}

// Add inserts number and reports whether it was new.
func (s *AlertedSet) Add(number int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[number]; ok {
		return false
	}
	s.accounts[number] = struct{}{}
	return true
}

func (s *AlertedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Accounts returns the members in ascending order.
func (s *AlertedSet) Accounts() []int32 {
	s.mu.Lock()
	out := make([]int32, 0, len(s.accounts))
	for n := range s.accounts {
		out = append(out, n)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}
