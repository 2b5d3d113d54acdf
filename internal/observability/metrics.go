package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Live transcription session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "khutbah_transcription_sessions_active",
		Help: "Number of live transcription sessions currently open",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khutbah_transcription_sessions_total",
		Help: "Total number of live transcription sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "khutbah_transcription_session_duration_seconds",
		Help:    "Duration of live transcription sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	transcriptFragments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khutbah_transcript_fragments_total",
		Help: "Total transcript fragments received from the transcription service",
	})

	// Capture metrics
	audioChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khutbah_capture_chunks_total",
		Help: "Encoded capture chunks by outcome",
	}, []string{"outcome"}) // sent, dropped, buffered, failed

	silentFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khutbah_capture_silent_frames_total",
		Help: "Captured frames whose RMS level was below the silence threshold",
	})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khutbah_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	// Backend metrics
	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khutbah_backend_requests_total",
		Help: "Total number of backend requests",
	}, []string{"op", "status"})

	backendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "khutbah_backend_latency_seconds",
		Help:    "Backend request latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	}, []string{"op"})

	// Playback metrics
	playbackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khutbah_playback_events_total",
		Help: "Speech playback events by outcome",
	}, []string{"outcome"}) // started, ended, stopped, empty, failed

	// History metrics
	historyCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khutbah_history_commits_total",
		Help: "Transcripts committed to history",
	})

	storageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khutbah_storage_failures_total",
		Help: "History storage failures by operation",
	}, []string{"op"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khutbah_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "khutbah_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "khutbah_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single live transcription session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	open      bool
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{sessionID: sessionID}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return
	}
	m.open = true
	m.startTime = time.Now()
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Calling it twice is harmless.
func (m *SessionMetrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return
	}
	m.open = false
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordFragment records one inbound transcript fragment
func (m *SessionMetrics) RecordFragment() {
	transcriptFragments.Inc()
}

// RecordError records an error
func (m *SessionMetrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordChunk records the outcome of one encoded capture chunk.
func RecordChunk(outcome string) {
	audioChunks.WithLabelValues(outcome).Inc()
}

// RecordSilentFrame counts a captured frame below the silence threshold.
func RecordSilentFrame() {
	silentFrames.Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// ObserveBackend records one backend request. Use as
// defer observability.ObserveBackend("completion", time.Now(), &err).
func ObserveBackend(op string, start time.Time, errp *error) {
	status := "success"
	if errp != nil && *errp != nil {
		status = "error"
	}
	backendRequests.WithLabelValues(op, status).Inc()
	backendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordPlayback records a speech playback event
func RecordPlayback(outcome string) {
	playbackEvents.WithLabelValues(outcome).Inc()
}

// RecordHistoryCommit counts a transcript committed to history
func RecordHistoryCommit() {
	historyCommits.Inc()
}

// RecordStorageFailure counts a failed history read or write
func RecordStorageFailure(op string) {
	storageFailures.WithLabelValues(op).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
