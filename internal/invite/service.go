// Package invite implements best-effort delivery of room invitations to
// targets that may be momentarily offline. Delivery is retried a bounded
// number of times with linearly increasing backoff before reporting a
// definitive failure back to the inviter.
package invite

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skyjofree/skyjo-server-go/internal/presence"
)

// ReasonOffline is the definitive failure reason after retries are
// exhausted.
const ReasonOffline = "OFFLINE"

// Config controls the retry schedule. The first retry waits BaseDelay;
// each subsequent retry waits DelayStep longer than the previous one.
type Config struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	DelayStep    time.Duration
	DedupeWindow time.Duration
}

// DefaultConfig mirrors the protocol defaults: 3 retries, 2s base, +2s
// per retry, 5s duplicate-suppression window.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		BaseDelay:    2 * time.Second,
		DelayStep:    2 * time.Second,
		DedupeWindow: 5 * time.Second,
	}
}

// Invitation identifies one invite_friend trigger.
type Invitation struct {
	InviterID   string `json:"inviterId"`
	InviterName string `json:"inviterName"`
	TargetID    string `json:"targetId"`
	RoomCode    string `json:"roomCode"`
}

func (i Invitation) key() string {
	return i.InviterID + "|" + i.TargetID + "|" + i.RoomCode
}

// Result is the final outcome reported to the inviter.
type Result struct {
	Invitation
	Delivered   bool   `json:"delivered"`
	Connections int    `json:"connections"`
	Reason      string `json:"reason,omitempty"`
}

// Sender delivers an invitation event to one connection.
type Sender func(connID string, inv Invitation)

type attempt struct {
	inv       Invitation
	tries     int
	timer     *time.Timer
	cancelled bool
}

// Service coordinates pending invitations. Identical
// (inviter, target, room) triggers within the dedupe window collapse
// into a single delivery.
type Service struct {
	mu       sync.Mutex
	cfg      Config
	tracker  *presence.Tracker
	deliver  Sender
	onResult func(Result)
	logger   *zap.Logger
	pending  map[string]*attempt
	recent   map[string]time.Time
	now      func() time.Time
}

// NewService creates an invitation service delivering through the given
// sender.
func NewService(cfg Config, tracker *presence.Tracker, deliver Sender, logger *zap.Logger) *Service {
	return &Service{
		cfg:     cfg,
		tracker: tracker,
		deliver: deliver,
		logger:  logger,
		pending: make(map[string]*attempt),
		recent:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetOnResult registers the callback receiving final outcomes.
func (s *Service) SetOnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// Invite starts (or suppresses) a delivery attempt. It returns false
// when the trigger was collapsed into an already pending or recently
// completed identical invitation.
func (s *Service) Invite(inv Invitation) bool {
	key := inv.key()

	s.mu.Lock()
	if _, dup := s.pending[key]; dup {
		s.mu.Unlock()
		return false
	}
	if at, ok := s.recent[key]; ok {
		if s.now().Sub(at) < s.cfg.DedupeWindow {
			s.mu.Unlock()
			return false
		}
		delete(s.recent, key)
	}
	a := &attempt{inv: inv}
	s.pending[key] = a
	s.mu.Unlock()

	s.try(key, a)
	return true
}

func (s *Service) try(key string, a *attempt) {
	sockets := s.tracker.Sockets(a.inv.TargetID)
	if len(sockets) > 0 {
		s.finish(key, a, Result{Invitation: a.inv, Delivered: true, Connections: len(sockets)})
		for _, connID := range sockets {
			s.deliver(connID, a.inv)
		}
		return
	}

	s.mu.Lock()
	if a.cancelled {
		s.mu.Unlock()
		return
	}
	a.tries++
	if a.tries > s.cfg.MaxAttempts {
		s.mu.Unlock()
		s.logger.Info("invitation delivery failed",
			zap.String("target", a.inv.TargetID),
			zap.String("room", a.inv.RoomCode),
			zap.Int("retries", s.cfg.MaxAttempts),
		)
		s.finish(key, a, Result{Invitation: a.inv, Reason: ReasonOffline})
		return
	}
	delay := s.cfg.BaseDelay + time.Duration(a.tries-1)*s.cfg.DelayStep
	a.timer = time.AfterFunc(delay, func() { s.try(key, a) })
	s.mu.Unlock()
}

func (s *Service) finish(key string, a *attempt, res Result) {
	s.mu.Lock()
	delete(s.pending, key)
	s.recent[key] = s.now()
	cb := s.onResult
	s.mu.Unlock()

	if res.Delivered {
		s.logger.Debug("invitation delivered",
			zap.String("target", res.TargetID),
			zap.String("room", res.RoomCode),
			zap.Int("connections", res.Connections),
		)
	}
	if cb != nil {
		cb(res)
	}
}

// CancelAll stops every pending retry chain; used on shutdown.
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, a := range s.pending {
		a.cancelled = true
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(s.pending, key)
	}
}

// PendingCount returns the number of in-flight invitations.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
