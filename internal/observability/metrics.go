package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lexiqai/avatar-gateway/internal/playback"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avatar_gateway_active_sessions",
		Help: "Number of connected avatar displays",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avatar_gateway_sessions_total",
		Help: "Total number of display sessions",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avatar_gateway_session_duration_seconds",
		Help:    "Duration of display sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Playback metrics
	itemsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avatar_gateway_items_enqueued_total",
		Help: "Total number of utterances queued for playback",
	})

	itemsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_items_finished_total",
		Help: "Total number of utterances that left the player",
	}, []string{"outcome"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avatar_gateway_queue_depth",
		Help: "Utterances waiting behind the active one, summed over sessions",
	})

	gateWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avatar_gateway_gate_waiters",
		Help: "Utterances blocked on the audio unlock gesture, summed over sessions",
	})

	gateWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avatar_gateway_gate_wait_seconds",
		Help:    "Time an utterance waited for the audio unlock gesture",
		Buckets: []float64{0, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	gateUnlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_gate_unlocks_total",
		Help: "Total number of audio unlocks by gesture source",
	}, []string{"source"})

	mouthOpenness = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avatar_gateway_mouth_openness",
		Help:    "Distribution of smoothed mouth openness per animation frame",
		Buckets: prometheus.LinearBuckets(0, 0.2, 6),
	})

	// Backend metrics
	backendMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_backend_messages_total",
		Help: "Total number of backend messages",
	}, []string{"direction", "type"})

	backendReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avatar_gateway_backend_reconnects_total",
		Help: "Total number of backend reconnections",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "avatar_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Sprite metrics
	spriteRegenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_sprite_regenerations_total",
		Help: "Total number of sprite set rebuilds",
	}, []string{"status"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"format"})
)

// SessionMetrics tracks metrics for a single display session. It also
// satisfies playback.Observer.
type SessionMetrics struct {
	sessionID string
	startTime time.Time

	mu      sync.Mutex
	depth   int
	waiters int
}

var _ playback.Observer = (*SessionMetrics)(nil)

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session and releases its share of
// the queue depth and gate waiter gauges
func (m *SessionMetrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())

	m.mu.Lock()
	queueDepth.Sub(float64(m.depth))
	m.depth = 0
	gateWaiters.Sub(float64(m.waiters))
	m.waiters = 0
	m.mu.Unlock()
}

// ItemEnqueued records a new utterance and the queue depth behind it
func (m *SessionMetrics) ItemEnqueued(depth int) {
	itemsEnqueued.Inc()
	m.setDepth(depth)
}

// GateWaiters records how many utterances of this session wait on the gate
func (m *SessionMetrics) GateWaiters(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gateWaiters.Add(float64(n - m.waiters))
	m.waiters = n
}

// GateWaited records how long an utterance waited for the unlock gesture
func (m *SessionMetrics) GateWaited(d time.Duration) {
	gateWait.Observe(d.Seconds())
	m.mu.Lock()
	if m.depth > 0 {
		queueDepth.Dec()
		m.depth--
	}
	m.mu.Unlock()
}

// MouthSampled records one animation frame
func (m *SessionMetrics) MouthSampled(current float64) {
	mouthOpenness.Observe(current)
}

// ItemFinished records how an utterance left the player
func (m *SessionMetrics) ItemFinished(outcome playback.Outcome) {
	itemsFinished.WithLabelValues(string(outcome)).Inc()
}

func (m *SessionMetrics) setDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queueDepth.Add(float64(depth - m.depth))
	m.depth = depth
}

// RecordUnlock records a gesture that unlocked audio
func (m *SessionMetrics) RecordUnlock(source string) {
	gateUnlocks.WithLabelValues(source).Inc()
}

// RecordBackendMessage records a message to or from the backend
func (m *SessionMetrics) RecordBackendMessage(direction, msgType string) {
	backendMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordBackendReconnect records a successful backend reconnection
func (m *SessionMetrics) RecordBackendReconnect() {
	backendReconnects.Inc()
}

// RecordError records an error
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records compressed audio received for playback
func (m *SessionMetrics) RecordAudioBytes(format string, bytes int64) {
	audioBytesProcessed.WithLabelValues(format).Add(float64(bytes))
}

// RecordSpriteRegeneration records a sprite set rebuild
func RecordSpriteRegeneration(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	spriteRegenerations.WithLabelValues(status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
