package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/resilience"
)

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the events sessions need.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	cb     Callbacks
	logger zerolog.Logger
	mu     sync.Mutex
	seen   bool
	ended  atomic.Bool
}

func newMessageCallbackHandler(cb Callbacks, logger zerolog.Logger) *messageCallbackHandler {
	return &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		cb:                     cb,
		logger:                 logger,
	}
}

func (m *messageCallbackHandler) Open(*msginterfaces.OpenResponse) error {
	m.cb.open()
	return nil
}

// Message forwards final results only; interim hypotheses would duplicate text
// in an append-only transcript.
func (m *messageCallbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	if msg == nil || !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
		return nil
	}
	text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if text == "" {
		return nil
	}

	m.mu.Lock()
	if m.seen {
		text = " " + text
	}
	m.seen = true
	m.mu.Unlock()

	m.cb.message(text)
	return nil
}

func (m *messageCallbackHandler) Close(*msginterfaces.CloseResponse) error {
	if m.ended.CompareAndSwap(false, true) {
		m.cb.close()
	}
	return nil
}

func (m *messageCallbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	m.logger.Error().Interface("response", er).Msg("Deepgram error")
	if m.ended.CompareAndSwap(false, true) {
		m.cb.error(fmt.Errorf("deepgram: %+v", er))
	}
	return nil
}

// Deepgram transcribes with Deepgram's streaming API.
type Deepgram struct {
	apiKey   string
	model    string
	language string
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// NewDeepgram creates a Deepgram transport for 16 kHz linear PCM.
func NewDeepgram(apiKey, model, language string, breaker *resilience.CircuitBreaker) *Deepgram {
	return &Deepgram{
		apiKey:   apiKey,
		model:    model,
		language: language,
		breaker:  breaker,
		logger:   observability.WithComponent("stt.deepgram"),
	}
}

func (d *Deepgram) Open(ctx context.Context, cb Callbacks) (_ Handle, err error) {
	defer observability.ObserveBackend("live_open", time.Now(), &err)
	ctx, span := observability.StartSpan(ctx, "stt.deepgram.open", attribute.String("model", d.model))
	defer func() { observability.EndSpan(span, err) }()

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       d.language,
		Punctuate:      true,
		InterimResults: false,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     audio.CaptureSampleRate,
	}
	callback := newMessageCallbackHandler(cb, d.logger)

	var client *listenClient.WSCallback
	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		c, err := listenClient.NewWSUsingCallback(ctx, d.apiKey, nil, tOptions, callback)
		if err != nil {
			return fmt.Errorf("create deepgram client: %w", err)
		}
		if !c.Connect() {
			return errors.New("deepgram connect failed")
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info().Str("model", d.model).Str("language", d.language).Msg("Deepgram session opened")
	return &deepgramHandle{client: client, callback: callback}, nil
}

type deepgramHandle struct {
	client    *listenClient.WSCallback
	callback  *messageCallbackHandler
	closed    atomic.Bool
	closeOnce sync.Once
}

func (h *deepgramHandle) Send(chunk audio.Chunk) error {
	if h.closed.Load() {
		return ErrClosed
	}
	raw, err := chunk.PCM()
	if err != nil {
		return err
	}
	if _, err := h.client.Write(raw); err != nil {
		return fmt.Errorf("send audio to deepgram: %w", err)
	}
	return nil
}

func (h *deepgramHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		// Finish may or may not raise the Close event; report it exactly once.
		h.client.Finish()
		h.callback.Close(nil)
	})
	return nil
}
