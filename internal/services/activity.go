package services

import (
	"context"
	"sync"
	"time"
)

const DefaultActiveUserWindow = 30 * time.Minute

// ActiveUsers tracks which users made a request within a sliding window.
type ActiveUsers struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time

	stop chan struct{}
	done chan struct{}
}

func NewActiveUsers(window time.Duration) *ActiveUsers {
	if window <= 0 {
		window = DefaultActiveUserWindow
	}
	return &ActiveUsers{seen: make(map[string]time.Time), window: window, now: time.Now}
}

func (a *ActiveUsers) Touch(userID string) {
	if userID == "" {
		return
	}
	a.mu.Lock()
	a.seen[userID] = a.now()
	a.mu.Unlock()
}

// Count returns the number of users seen inside the window.
func (a *ActiveUsers) Count() int {
	cutoff := a.now().Add(-a.window)
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, at := range a.seen {
		if at.After(cutoff) {
			n++
		}
	}
	return n
}

// Sweep drops users outside the window and reports how many were removed.
func (a *ActiveUsers) Sweep() int {
	cutoff := a.now().Add(-a.window)
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for id, at := range a.seen {
		if !at.After(cutoff) {
			delete(a.seen, id)
			removed++
		}
	}
	return removed
}

// Start sweeps every interval until ctx is done or Stop is called.
func (a *ActiveUsers) Start(ctx context.Context, interval time.Duration) {
	a.mu.Lock()
	if a.stop != nil {
		a.mu.Unlock()
		return
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	stop, done := a.stop, a.done
	a.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				a.Sweep()
			}
		}
	}()
}

func (a *ActiveUsers) Stop() {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop, a.done = nil, nil
	a.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
