package orchestrator

import (
	"context"
	"sync"

	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/trace"
)

// Manager runs sessions and shuts them down together.
type Manager struct {
	opts     Options
	dialer   Dialer
	registry *Registry

	mu       sync.Mutex
	sessions map[*Session]context.CancelFunc
	closing  bool
	wg       sync.WaitGroup
}

// NewManager creates a manager dialing AI legs with dialer.
func NewManager(opts Options, dialer Dialer) *Manager {
	return &Manager{
		opts:     opts,
		dialer:   dialer,
		registry: NewRegistry(),
		sessions: make(map[*Session]context.CancelFunc),
	}
}

// Registry returns the read-only call registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Serve runs a session for leg until it closes. It is called once per
// accepted telephony connection, on that connection's goroutine.
func (m *Manager) Serve(ctx context.Context, leg TelephonyLeg) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		_ = leg.Close("shutting down")
		return apperrors.New(apperrors.CodeUnavailable, "bridge is shutting down")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := NewSession(leg, m.dialer, m.registry, m.opts)
	m.sessions[s] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, s)
		m.mu.Unlock()
		cancel()
		m.wg.Done()
	}()

	return s.Run(ctx)
}

// Count returns the number of running sessions, including those not yet started.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown refuses new sessions, drains every running one and waits for
// them to close or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	for _, cancel := range m.sessions {
		cancel()
	}
	n := len(m.sessions)
	m.mu.Unlock()

	trace.Logger(ctx).Info("draining sessions", "count", n)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.CodeTimeout, "sessions still draining at shutdown deadline")
	}
}
