package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/resilience"
)

// GeminiLive transcribes through the Gemini Live API's input transcription.
type GeminiLive struct {
	client            *genai.Client
	model             string
	systemInstruction string
	breaker           *resilience.CircuitBreaker
	logger            zerolog.Logger
}

// NewGeminiLive creates a transport for model.
func NewGeminiLive(client *genai.Client, model, systemInstruction string, breaker *resilience.CircuitBreaker) *GeminiLive {
	return &GeminiLive{
		client:            client,
		model:             model,
		systemInstruction: systemInstruction,
		breaker:           breaker,
		logger:            observability.WithComponent("stt.gemini"),
	}
}

// Open connects and starts the receive loop.
func (g *GeminiLive) Open(ctx context.Context, cb Callbacks) (_ Handle, err error) {
	defer observability.ObserveBackend("live_open", time.Now(), &err)
	ctx, span := observability.StartSpan(ctx, "stt.gemini.open", attribute.String("model", g.model))
	defer func() { observability.EndSpan(span, err) }()

	cfg := &genai.LiveConnectConfig{
		ResponseModalities:      []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if g.systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(g.systemInstruction, genai.RoleUser)
	}

	var session *genai.Session
	err = g.breaker.Execute(ctx, func(ctx context.Context) error {
		s, err := g.client.Live.Connect(ctx, g.model, cfg)
		if err != nil {
			return fmt.Errorf("connect live session: %w", err)
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	h := &geminiHandle{session: session, logger: g.logger}
	go h.receive(cb)
	return h, nil
}

type geminiHandle struct {
	session   *genai.Session
	logger    zerolog.Logger
	sendMu    sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func (h *geminiHandle) receive(cb Callbacks) {
	for {
		msg, err := h.session.Receive()
		if err != nil {
			if h.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cb.close()
				return
			}
			cb.error(fmt.Errorf("receive: %w", err))
			return
		}
		if dispatchLive(msg, cb) {
			return
		}
	}
}

// dispatchLive maps one server message to callbacks. It reports true when the
// server announced it is going away.
func dispatchLive(msg *genai.LiveServerMessage, cb Callbacks) bool {
	if msg == nil {
		return false
	}
	if msg.SetupComplete != nil {
		cb.open()
	}
	if sc := msg.ServerContent; sc != nil && sc.InputTranscription != nil {
		cb.message(sc.InputTranscription.Text)
	}
	if msg.GoAway != nil {
		cb.close()
		return true
	}
	return false
}

func (h *geminiHandle) Send(chunk audio.Chunk) error {
	if h.closed.Load() {
		return ErrClosed
	}
	raw, err := chunk.PCM()
	if err != nil {
		return err
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	err = h.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: chunk.MIMEType, Data: raw},
	})
	if err != nil {
		if h.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (h *geminiHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		if cerr := h.session.Close(); cerr != nil && !errors.Is(cerr, websocket.ErrCloseSent) {
			err = cerr
			h.logger.Debug().Err(cerr).Msg("Closing live session")
		}
	})
	return err
}
