package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/display"
)

// Manager accepts display connections and tracks their sessions
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. Sessions it starts live until their display
// disconnects or Shutdown is called.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		logger:   logger.With().Str("component", "session-manager").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// ServeHTTP upgrades the request and serves the session until it ends
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := display.Upgrade(w, r)
	if err != nil {
		// Upgrade has already written the HTTP error
		m.logger.Warn().Err(err).Msg("Failed to upgrade display connection")
		return
	}

	s, err := New(ws, m.cfg)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to create session")
		ws.Close()
		return
	}

	m.track(s)
	defer m.untrack(s)

	if err := s.Run(m.ctx); err != nil {
		s.logger.Error().Err(err).Msg("Session failed")
	}
}

func (m *Manager) track(s *Session) {
	m.wg.Add(1)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

func (m *Manager) untrack(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	m.wg.Done()
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Get returns a live session by ID
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Shutdown ends every session and waits for them to finish or ctx to expire
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Msg("All sessions closed")
		return nil
	case <-ctx.Done():
		m.logger.Warn().Int("remaining", m.Count()).Msg("Shutdown timed out with sessions open")
		return ctx.Err()
	}
}
