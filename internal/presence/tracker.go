// Package presence tracks which stable user identities are currently
// online. An identity may hold several simultaneous connections
// (multi-tab); it only goes offline after its last connection has been
// gone for a full grace period, so reconnection churn never flaps.
package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status values broadcast on presence transitions.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type record struct {
	sockets map[string]struct{}
	offline *time.Timer
}

// Tracker maps stable user IDs to their open connection sets.
type Tracker struct {
	mu       sync.Mutex
	grace    time.Duration
	records  map[string]*record
	onChange func(userID, status string)
	logger   *zap.Logger
}

// NewTracker creates a tracker with the given offline grace period.
func NewTracker(grace time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		grace:   grace,
		records: make(map[string]*record),
		logger:  logger,
	}
}

// SetOnChange registers the callback invoked on online/offline
// transitions. The callback runs outside the tracker lock.
func (t *Tracker) SetOnChange(fn func(userID, status string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Connect registers a connection for the identity. A pending offline
// timer is cancelled; the online transition is emitted only when the
// identity was not already tracked.
func (t *Tracker) Connect(userID, connID string) {
	t.mu.Lock()
	rec, known := t.records[userID]
	if !known {
		rec = &record{sockets: make(map[string]struct{})}
		t.records[userID] = rec
	}
	if rec.offline != nil {
		rec.offline.Stop()
		rec.offline = nil
	}
	rec.sockets[connID] = struct{}{}
	notify := t.onChange
	t.mu.Unlock()

	t.logger.Debug("presence connect",
		zap.String("user_id", userID),
		zap.String("conn_id", connID),
		zap.Bool("was_known", known),
	)

	if !known && notify != nil {
		notify(userID, StatusOnline)
	}
}

// Disconnect removes a connection. When the identity's socket set
// becomes empty, a grace timer starts; only if it fires with the set
// still empty is the identity purged and the offline transition emitted.
func (t *Tracker) Disconnect(userID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if !ok {
		return
	}
	delete(rec.sockets, connID)
	if len(rec.sockets) > 0 {
		return
	}

	if rec.offline != nil {
		rec.offline.Stop()
	}
	rec.offline = time.AfterFunc(t.grace, func() {
		t.expire(userID)
	})

	t.logger.Debug("presence grace timer started",
		zap.String("user_id", userID),
		zap.Duration("grace", t.grace),
	)
}

func (t *Tracker) expire(userID string) {
	t.mu.Lock()
	rec, ok := t.records[userID]
	if !ok || len(rec.sockets) > 0 {
		// A connection re-registered while the timer was in flight.
		t.mu.Unlock()
		return
	}
	delete(t.records, userID)
	notify := t.onChange
	t.mu.Unlock()

	t.logger.Info("user went offline", zap.String("user_id", userID))

	if notify != nil {
		notify(userID, StatusOffline)
	}
}

// IsOnline reports whether the identity has open connections or is
// still within its offline grace window.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.records[userID]
	return ok
}

// Sockets returns the identity's currently open connection IDs.
func (t *Tracker) Sockets(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rec.sockets))
	for connID := range rec.sockets {
		out = append(out, connID)
	}
	return out
}

// OnlineCount returns the number of tracked identities.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
