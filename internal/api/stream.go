package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/capture"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/transcriber"
)

const (
	writeWait     = 10 * time.Second
	micBacklog    = 64
	defaultMicHz  = 48000
	maxFrameBytes = 1 << 20
)

// clientMessage is a control message from the browser.
type clientMessage struct {
	Event      string `json:"event"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Permission string `json:"permission,omitempty"`
}

// browserMic is the microphone on the other end of the socket. The browser
// asks for permission itself and reports the outcome in its start message.
type browserMic struct {
	mu         sync.Mutex
	rate       int
	permission string
	stream     *capture.PushStream
}

func (m *browserMic) configure(rate int, permission string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rate <= 0 {
		rate = defaultMicHz
	}
	m.rate = rate
	m.permission = permission
}

func (m *browserMic) Open(context.Context) (capture.MicStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.permission != "granted" {
		return nil, failure.New(failure.ErrPermissionDenied, "microphone.open", "",
			fmt.Errorf("browser reported permission %q", m.permission))
	}
	m.stream = capture.NewPushStream(m.rate, micBacklog)
	return m.stream, nil
}

// push hands a frame to the open stream, if any.
func (m *browserMic) push(samples []float32) bool {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return false
	}
	return stream.Push(samples)
}

// outbox serializes writes to the socket. Listeners enqueue without
// blocking; a single writer goroutine drains.
type outbox struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	mu     sync.Mutex
	queue  []map[string]any
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newOutbox(conn *websocket.Conn, logger zerolog.Logger) *outbox {
	return &outbox{
		conn:   conn,
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (o *outbox) enqueue(msg map[string]any) {
	o.mu.Lock()
	o.queue = append(o.queue, msg)
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// run writes queued messages until close is called, then flushes the rest.
func (o *outbox) run() {
	for {
		select {
		case <-o.notify:
			o.flush()
		case <-o.done:
			o.flush()
			return
		}
	}
}

func (o *outbox) flush() {
	o.mu.Lock()
	pending := o.queue
	o.queue = nil
	o.mu.Unlock()

	for _, msg := range pending {
		o.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := o.conn.WriteJSON(msg); err != nil {
			o.logger.Debug().Err(err).Msg("Dropping event for closed socket")
			return
		}
	}
}

func (o *outbox) close() {
	o.once.Do(func() { close(o.done) })
}

// sessionEvent renders a transcriber event for the browser.
func sessionEvent(ev transcriber.Event) map[string]any {
	switch ev.Type {
	case transcriber.EventState:
		return map[string]any{"event": "state", "state": string(ev.State)}
	case transcriber.EventTranscript:
		return map[string]any{"event": "transcript", "text": ev.Text}
	case transcriber.EventError:
		return map[string]any{"event": "error", "message": ev.Message}
	default:
		return map[string]any{"event": "history", "entries": nonNil(ev.Entries)}
	}
}

func (a *API) upgrader() websocket.Upgrader {
	origins := a.deps.AllowedOrigins
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, allowed := range origins {
				if strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
					return true
				}
			}
			return false
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// handleTranscribe runs one live transcription session per socket. The
// session is stopped and its transcript committed when the socket closes.
func (a *API) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	client, err := clientID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	upgrader := a.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := a.deps.History.For(ctx, client)
	out := newOutbox(conn, a.logger)
	mic := &browserMic{rate: defaultMicHz}
	session := transcriber.NewSession(mic, a.deps.Transcription, store, a.deps.Capture,
		func(ev transcriber.Event) { out.enqueue(sessionEvent(ev)) })

	logger := observability.WithCorrelationID(session.ID()).With().
		Str("component", "api.stream").
		Str("client_id", client).
		Logger()
	logger.Info().Msg("Transcription socket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		out.run()
	}()

	out.enqueue(map[string]any{"event": "state", "state": string(transcriber.StateIdle)})
	out.enqueue(map[string]any{"event": "history", "entries": nonNil(store.Entries())})

	var starts sync.WaitGroup
	defer func() {
		cancel()
		starts.Wait()
		session.Stop()
		out.close()
		<-writerDone
		logger.Info().Msg("Transcription socket closed")
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			samples, err := audio.Float32LEToSamples(data)
			if err != nil {
				logger.Debug().Err(err).Msg("Discarding malformed audio frame")
				continue
			}
			observability.RecordAudioBytes("in", int64(len(data)))
			mic.push(samples)

		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Debug().Err(err).Msg("Failed to parse control message")
				continue
			}
			switch msg.Event {
			case "start":
				mic.configure(msg.SampleRate, msg.Permission)
				starts.Add(1)
				go func() {
					defer starts.Done()
					if err := session.Start(ctx); err != nil {
						logger.Warn().Err(err).Msg("Live session did not start")
					}
				}()
			case "stop":
				go session.Stop()
			default:
				logger.Debug().Str("event", msg.Event).Msg("Unknown control event")
			}
		}
	}
}
