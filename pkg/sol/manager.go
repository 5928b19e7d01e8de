package sol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager allows at most one relay session per process.
type Manager struct {
	opts Options

	mu      sync.Mutex
	current *Session
}

// NewManager returns a Manager whose sessions use opts.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts.withDefaults()}
}

// Start opens a session on ch relayed through surface.
//
// When a session is still running, Start fails with ErrSessionActive unless
// takeOver is set; then the running session is ended and awaited before the
// new one opens.
func (m *Manager) Start(ctx context.Context, ch Channel, surface Surface, takeOver bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.running(); cur != nil {
		if !takeOver {
			return nil, fmt.Errorf("%w on %s", ErrSessionActive, cur.Channel().Describe())
		}
		log.Info().Str("session_id", cur.ID()).Str("target", cur.Channel().Describe()).Msg("taking over console session")
		cur.terminate(Termination{Reason: ReasonTakenOver})

		// Closing waits up to StopTimeout for the receiver.
		timer := time.NewTimer(2 * m.opts.StopTimeout)
		defer timer.Stop()
		select {
		case <-cur.Done():
		case <-timer.C:
			return nil, fmt.Errorf("previous console session on %s did not stop", cur.Channel().Describe())
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s := NewSession(ch, surface, m.opts)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Current returns the running session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running()
}

func (m *Manager) running() *Session {
	if m.current == nil {
		return nil
	}
	select {
	case <-m.current.Done():
		m.current = nil
		return nil
	default:
		return m.current
	}
}

// Stop ends the running session, if any, and reports whether there was one.
func (m *Manager) Stop() bool {
	cur := m.Current()
	if cur == nil {
		return false
	}
	cur.Stop()
	return true
}
