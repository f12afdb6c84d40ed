package desk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sessions keeps one Controller per desk session and evicts idle ones.
type Sessions struct {
	backend Backend
	logger  *zap.Logger
	metrics *Metrics
	opts    Options
	ttl     time.Duration

	mu       sync.Mutex
	sessions map[string]*session

	cancel context.CancelFunc
	done   chan struct{}
}

type session struct {
	ctrl     *Controller
	lastSeen time.Time
}

// NewSessions builds an empty registry.
func NewSessions(backend Backend, logger *zap.Logger, metrics *Metrics, opts Options, ttl time.Duration) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Sessions{
		backend:  backend,
		logger:   logger,
		metrics:  metrics,
		opts:     opts.withDefaults(),
		ttl:      ttl,
		sessions: make(map[string]*session),
	}
}

// Create opens a new session and returns its id and controller.
func (s *Sessions) Create() (string, *Controller) {
	id := uuid.NewString()
	ctrl := NewController(s.backend, s.logger.With(zap.String("desk_session", id)), s.metrics, s.opts)

	s.mu.Lock()
	s.sessions[id] = &session{ctrl: ctrl, lastSeen: s.opts.Clock()}
	s.mu.Unlock()
	s.metrics.sessionsChanged(1)

	return id, ctrl
}

// Get returns the controller of a live session and marks it as used.
func (s *Sessions) Get(id string) (*Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.opts.Clock()
	return sess.ctrl, true
}

// Delete closes a session, reporting whether it existed.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.metrics.sessionsChanged(-1)
	return true
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle since before now-ttl and returns how many were removed.
func (s *Sessions) Sweep(now time.Time) int {
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.metrics.sessionsChanged(-removed)
	return removed
}

// Start launches the background sweeper.
func (s *Sessions) Start(context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(s.opts.Clock()); n > 0 {
					s.logger.Info("evicted idle desk sessions", zap.Int("count", n))
				}
			}
		}
	}()
	return nil
}

// Stop halts the sweeper.
func (s *Sessions) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

// Location is the calendar every session of the registry reports in.
func (s *Sessions) Location() *time.Location {
	return s.opts.Location
}
