// Package lifecycle serializes AI work per chat.
//
// A chat is either idle (no entry) or busy with exactly one request. Each
// acquisition mints a fresh RequestID; later side effects of that request are
// only allowed while the chat still maps to the same id. A forced cancel drops
// the entry without touching in-flight calls, so their results are discarded at
// the next checkpoint.
package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
)

// RequestID identifies one acquisition. Ids are strictly increasing for the
// life of the process and never reused.
type RequestID uint64

type state struct {
	id        RequestID
	startedAt time.Time
}

// Tracker holds the per-chat processing lock table.
type Tracker struct {
	mu     sync.Mutex
	states map[int64]state
	seq    atomic.Uint64
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source used for job ages.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns an empty lock table.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{states: make(map[int64]state), now: time.Now}
	for _, o := range opts {
		o(t)
	}
	// Seed from the clock so ids from a previous process run are not repeated.
	t.seq.Store(uint64(t.now().UnixNano()))
	return t
}

// TryAcquire marks chatID busy and returns a fresh id, or reports false when a
// request is already in flight for the chat. Requests are never queued.
func (t *Tracker) TryAcquire(chatID int64) (RequestID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.states[chatID]; busy {
		observability.ObserveAcquire(false)
		return 0, false
	}
	id := RequestID(t.seq.Add(1))
	t.states[chatID] = state{id: id, startedAt: t.now()}
	observability.ObserveAcquire(true)
	return id, true
}

// IsCurrent reports whether id still owns chatID.
func (t *Tracker) IsCurrent(chatID int64, id RequestID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[chatID]
	return ok && st.id == id
}

// Release clears chatID only if id still owns it. A stale release is a no-op so
// it can never clear a newer request's lock.
func (t *Tracker) Release(chatID int64, id RequestID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[chatID]
	if !ok || st.id != id {
		return false
	}
	delete(t.states, chatID)
	observability.ObserveRelease(false)
	return true
}

// ForceCancel unconditionally clears chatID and reports whether a request was
// active. The in-flight request keeps running until its next checkpoint.
func (t *Tracker) ForceCancel(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[chatID]; !ok {
		return false
	}
	delete(t.states, chatID)
	observability.ObserveRelease(true)
	return true
}

// Busy reports whether chatID has a request in flight.
func (t *Tracker) Busy(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.states[chatID]
	return ok
}

// Len returns the number of busy chats.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

// Begin acquires chatID and wraps the result in a Job.
func (t *Tracker) Begin(chatID int64) (*Job, bool) {
	id, ok := t.TryAcquire(chatID)
	if !ok {
		return nil, false
	}
	return &Job{tracker: t, ChatID: chatID, ID: id, startedAt: t.now()}, true
}

// Job is a handle on one acquired request.
type Job struct {
	tracker   *Tracker
	ChatID    int64
	ID        RequestID
	startedAt time.Time
	released  atomic.Bool
}

// Current reports whether the job still owns its chat. Call it before every
// user-visible side effect.
func (j *Job) Current() bool {
	if j.tracker.IsCurrent(j.ChatID, j.ID) {
		return true
	}
	observability.LifecycleStaleDropsTotal.Inc()
	return false
}

// Release frees the chat if the job still owns it. It is idempotent and meant
// to be deferred right after Begin.
func (j *Job) Release() {
	if j.released.CompareAndSwap(false, true) {
		j.tracker.Release(j.ChatID, j.ID)
	}
}

// Age returns how long the job has been running.
func (j *Job) Age() time.Duration { return j.tracker.now().Sub(j.startedAt) }
