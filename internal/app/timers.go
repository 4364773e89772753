package app

import (
	"sync"
	"time"
)

type timerKey struct {
	matchID    string
	questionID string
}

// deadlineTimers holds the cancellable scheduled tasks for question and match
// deadlines, keyed by (matchID, questionID). A terminal match transition
// cancels the whole set so a stale timer can never fire into a dead aggregate.
type deadlineTimers struct {
	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

func newDeadlineTimers() *deadlineTimers {
	return &deadlineTimers{timers: make(map[timerKey]*time.Timer)}
}

// Arm schedules fn after d, replacing any timer already armed for the key.
func (t *deadlineTimers) Arm(matchID, questionID string, d time.Duration, fn func()) {
	key := timerKey{matchID: matchID, questionID: questionID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[key]; ok {
		old.Stop()
	}
	t.timers[key] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		fn()
	})
}

// Cancel stops one timer.
func (t *deadlineTimers) Cancel(matchID, questionID string) {
	key := timerKey{matchID: matchID, questionID: questionID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

// CancelMatch stops every timer belonging to a match.
func (t *deadlineTimers) CancelMatch(matchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		if key.matchID == matchID {
			timer.Stop()
			delete(t.timers, key)
		}
	}
}
