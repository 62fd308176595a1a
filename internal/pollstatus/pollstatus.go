// Package pollstatus derives a poll's lifecycle status from its time window.
package pollstatus

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of a poll. The zero value is Upcoming and
// states are ordered so that transitions only ever increase.
type Status int

const (
	Upcoming Status = iota
	Active
	Ended
)

func (s Status) String() string {
	switch s {
	case Upcoming:
		return "upcoming"
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText lets Status appear as its name in JSON frames.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Evaluate returns the status of the window [start, end) at now.
func Evaluate(start, end, now time.Time) Status {
	switch {
	case now.Before(start):
		return Upcoming
	case now.Before(end):
		return Active
	default:
		return Ended
	}
}

// Countdown is the remaining time to the next boundary, floor-divided into units.
type Countdown struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

// NewCountdown splits d into days/hours/minutes/seconds. Negative durations are zero.
func NewCountdown(d time.Duration) Countdown {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return Countdown{
		Days:    total / 86400,
		Hours:   (total % 86400) / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}
}

// Snapshot is the status at one sample plus the countdown, if any.
type Snapshot struct {
	Status    Status     `json:"status"`
	Countdown *Countdown `json:"countdown,omitempty"`
	At        time.Time  `json:"at"`
}

// Compute evaluates the window at now. Upcoming counts down to start,
// Active to end, and Ended carries no countdown.
func Compute(start, end, now time.Time) Snapshot {
	return snapshotFor(Evaluate(start, end, now), start, end, now)
}

func snapshotFor(status Status, start, end, now time.Time) Snapshot {
	snap := Snapshot{Status: status, At: now}
	switch status {
	case Upcoming:
		c := NewCountdown(start.Sub(now))
		snap.Countdown = &c
	case Active:
		c := NewCountdown(end.Sub(now))
		snap.Countdown = &c
	}
	return snap
}

// Tracker follows one poll's status over time. Transitions are monotonic:
// once a poll is seen active it never reads upcoming again, and once ended
// it stays ended.
type Tracker struct {
	mu      sync.Mutex
	start   time.Time
	end     time.Time
	current Status
	seen    bool
}

// NewTracker creates a tracker for the window [start, end).
func NewTracker(start, end time.Time) *Tracker {
	return &Tracker{start: start, end: end}
}

// Observe samples the window at now and returns the snapshot and whether
// the status changed since the previous observation.
func (t *Tracker) Observe(now time.Time) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := Evaluate(t.start, t.end, now)
	if t.seen && next < t.current {
		next = t.current
	}
	changed := t.seen && next != t.current
	t.current = next
	t.seen = true
	return snapshotFor(next, t.start, t.end, now), changed
}

// Status returns the status at now without regressing past earlier observations.
func (t *Tracker) Status(now time.Time) Status {
	snap, _ := t.Observe(now)
	return snap.Status
}

// ForceEnded marks the poll ended ahead of its end time. It reports
// whether the status changed.
func (t *Tracker) ForceEnded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.current != Ended
	t.current = Ended
	t.seen = true
	return changed
}

// Watch samples tracker once immediately and then every interval, calling fn
// with each snapshot. Ticks never overlap: fn returns before the next sample
// is taken. Watch returns when ctx is done or after delivering the first
// Ended snapshot.
func Watch(ctx context.Context, tracker *Tracker, every time.Duration, clock func() time.Time, fn func(Snapshot)) error {
	if every <= 0 {
		every = time.Second
	}
	if clock == nil {
		clock = time.Now
	}

	emit := func() bool {
		snap, _ := tracker.Observe(clock())
		fn(snap)
		return snap.Status == Ended
	}

	if emit() {
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if emit() {
				return nil
			}
		}
	}
}
