package alerting

import (
	"sync"
	"time"
)

// Decision is what a Streaks observation asks the caller to do.
type Decision int

const (
	// Quiet means nothing to send.
	Quiet Decision = iota
	// Alert means the failure streak crossed the threshold.
	Alert
	// Recover means a previously alerted key refreshed successfully.
	Recover
)

type streak struct {
	failures  int
	alertedAt time.Time
	alerted   bool
}

// Streaks counts consecutive failures per key and decides when to alert.
// A key alerts once it reaches threshold failures, then again only after
// cooldown while it stays failing.
type Streaks struct {
	threshold int
	cooldown  time.Duration

	mu      sync.Mutex
	streaks map[string]*streak
}

// NewStreaks constructs a tracker. threshold below one is treated as one.
func NewStreaks(threshold int, cooldown time.Duration) *Streaks {
	if threshold < 1 {
		threshold = 1
	}
	return &Streaks{threshold: threshold, cooldown: cooldown, streaks: make(map[string]*streak)}
}

// Observe records one refresh result for key at now.
func (s *Streaks) Observe(key string, failed bool, now time.Time) (Decision, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streaks[key]
	if !ok {
		st = &streak{}
		s.streaks[key] = st
	}

	if !failed {
		wasAlerted := st.alerted
		*st = streak{}
		if wasAlerted {
			return Recover, 0
		}
		return Quiet, 0
	}

	st.failures++
	if st.failures < s.threshold {
		return Quiet, st.failures
	}
	if st.alerted && now.Sub(st.alertedAt) < s.cooldown {
		return Quiet, st.failures
	}
	st.alerted = true
	st.alertedAt = now
	return Alert, st.failures
}

// Failures returns the current streak length of key.
func (s *Streaks) Failures(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streaks[key]; ok {
		return st.failures
	}
	return 0
}
