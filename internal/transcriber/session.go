// Package transcriber runs live transcription sessions: microphone audio goes
// out to the transcription backend, transcript fragments come back and the
// final transcript is committed to history.
package transcriber

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/capture"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/history"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/stt"
)

// State of a Session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
)

// EventType names what an Event carries.
type EventType string

const (
	EventState      EventType = "state"
	EventTranscript EventType = "transcript"
	EventError      EventType = "error"
	EventHistory    EventType = "history"
)

// Event is a change the user should see.
type Event struct {
	Type    EventType
	State   State
	Text    string
	Message string
	Entries []string
}

// Listener receives events in order. It runs with the session locked and
// must not call back into the Session.
type Listener func(Event)

// Session owns at most one live transcription at a time.
type Session struct {
	id        string
	mic       capture.Microphone
	transport stt.Transport
	history   *history.Store
	capture   capture.Config
	listener  Listener
	logger    zerolog.Logger
	metrics   *observability.SessionMetrics

	mu         sync.Mutex
	state      State
	gen        uint64
	done       chan struct{}
	handle     stt.Handle
	stream     capture.MicStream
	pipeline   *capture.Pipeline
	transcript strings.Builder
	// failed marks a transport error for this generation; reported once it
	// has reached the listener.
	failed   bool
	reported bool
}

// NewSession creates an idle session. store may be nil to skip history.
func NewSession(mic capture.Microphone, transport stt.Transport, store *history.Store, cfg capture.Config, listener Listener) *Session {
	id := observability.NewCorrelationID()
	if listener == nil {
		listener = func(Event) {}
	}
	return &Session{
		id:        id,
		mic:       mic,
		transport: transport,
		history:   store,
		capture:   cfg,
		listener:  listener,
		logger:    observability.WithCorrelationID(id).With().Str("component", "transcriber").Logger(),
		metrics:   observability.NewSessionMetrics(id),
		state:     StateIdle,
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the text accumulated so far in the current session.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

// Start opens the microphone and then the live session. It does nothing
// unless the session is idle. A refused microphone returns an error wrapping
// failure.ErrPermissionDenied and leaves the session idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.done = make(chan struct{})
	s.transcript.Reset()
	s.failed, s.reported = false, false
	s.setState(StateConnecting)
	s.mu.Unlock()

	stream, err := s.mic.Open(ctx)
	if err != nil {
		ferr := failure.New(failure.ErrPermissionDenied, "session.start", failure.MsgPermissionDenied, err)
		s.logger.Warn().Err(err).Msg("Microphone unavailable")
		observability.RecordError("permission_denied", "transcriber")

		s.mu.Lock()
		if s.gen == gen && s.state == StateConnecting {
			s.listener(Event{Type: EventError, Message: ferr.Message})
			s.finish()
		}
		s.mu.Unlock()
		return ferr
	}

	s.mu.Lock()
	if s.gen != gen || s.state != StateConnecting {
		s.mu.Unlock()
		stream.Stop()
		return nil
	}
	s.stream = stream
	s.mu.Unlock()

	handle, err := s.transport.Open(ctx, s.callbacks(gen))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to open live session")
		observability.RecordError("transport", "transcriber")
		s.teardown(gen, err)
		return failure.New(failure.ErrTransport, "session.start", failure.MsgTransport, err)
	}

	s.mu.Lock()
	if s.gen != gen || s.state == StateIdle || s.state == StateClosing {
		s.mu.Unlock()
		// stopped while connecting
		handle.Close()
		return nil
	}
	s.handle = handle
	if s.pipeline != nil {
		s.pipeline.Attach(handle)
	}
	s.mu.Unlock()
	return nil
}

// Stop ends the session and returns once the microphone, pipeline and
// handle are released and any transcript is committed. Safe in any state.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	gen, done := s.gen, s.done
	s.mu.Unlock()

	s.teardown(gen, nil)
	<-done
}

func (s *Session) callbacks(gen uint64) stt.Callbacks {
	return stt.Callbacks{
		OnOpen:    func() { s.onOpen(gen) },
		OnMessage: func(fragment string) { s.onMessage(gen, fragment) },
		OnError: func(err error) {
			s.logger.Error().Err(err).Msg("Live session transport error")
			observability.RecordError("transport", "transcriber")
			s.markFailed(gen)
			go s.teardown(gen, err)
		},
		OnClose: func() { go s.teardown(gen, nil) },
	}
}

func (s *Session) onOpen(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateConnecting || s.stream == nil {
		return
	}

	s.pipeline = capture.NewPipeline(s.stream, s.capture, s.logger)
	if s.handle != nil {
		s.pipeline.Attach(s.handle)
	}
	s.metrics.RecordSessionStart()
	s.logger.Info().Int("native_rate", s.stream.NativeRate()).Msg("Live session open")
	s.setState(StateOpen)
}

func (s *Session) onMessage(gen uint64, fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateOpen {
		return
	}
	s.transcript.WriteString(fragment)
	s.metrics.RecordFragment()
	s.listener(Event{Type: EventTranscript, Text: s.transcript.String()})
}

// markFailed records a transport error before any teardown runs, so the
// error surfaces whichever goroutine ends up closing the session.
func (s *Session) markFailed(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.state != StateIdle {
		s.failed = true
	}
}

// reportFailure emits the transport error at most once. Callers hold mu.
func (s *Session) reportFailure() {
	if s.failed && !s.reported {
		s.reported = true
		s.listener(Event{Type: EventError, Message: failure.MsgTransport})
	}
}

// teardown runs the closing transition once per generation. Whoever moves
// the session to closing owns the resources; later callers return at once.
func (s *Session) teardown(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.state == StateIdle || s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	if cause != nil {
		s.failed = true
	}
	s.reportFailure()
	s.setState(StateClosing)

	handle, stream, pipeline := s.handle, s.stream, s.pipeline
	s.handle, s.stream, s.pipeline = nil, nil, nil
	text := strings.TrimSpace(s.transcript.String())
	s.transcript.Reset()
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Closing live session handle")
		}
	}
	if stream != nil {
		stream.Stop()
	}
	var stats capture.Stats
	if pipeline != nil {
		pipeline.Disconnect()
		pipeline.Close()
		stats = pipeline.Stats()
	}

	var entries []string
	if text != "" && s.history != nil {
		entries = s.history.Append(context.Background(), text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// an error reported while the resources were being released
	s.reportFailure()
	if entries != nil {
		s.listener(Event{Type: EventHistory, Entries: entries})
	}
	s.metrics.RecordSessionEnd()
	s.logger.Info().
		Int("transcript_length", len(text)).
		Int64("frames", stats.Frames).
		Int64("chunks_sent", stats.Sent).
		Msg("Live session closed")
	s.finish()
}

// finish moves to idle and releases Stop waiters. Callers hold mu.
func (s *Session) finish() {
	s.setState(StateIdle)
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

// setState records and announces a transition. Callers hold mu.
func (s *Session) setState(state State) {
	s.state = state
	s.logger.Debug().Str("state", string(state)).Msg("Session state changed")
	s.listener(Event{Type: EventState, State: state})
}
