// Package provider assembles the assistant features from configuration:
// backend clients, circuit breakers, history storage and the prompt catalog.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/capture"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/chat"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/config"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/history"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/llm"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/playback"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/prompts"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/resilience"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/sermon"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/storage"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/stt"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/tts"
)

// History storage backends.
const (
	HistorySQLite = "sqlite"
	HistoryMemory = "memory"
)

const maxConversations = 256

// Stack is everything the HTTP gateway and the CLI need.
type Stack struct {
	Catalog        *prompts.Catalog
	Sermons        *sermon.Generator
	Chats          *chat.Manager
	Speech         tts.Synthesizer
	Transcription  stt.Transport
	History        *history.Registry
	Capture        capture.Config
	PlaybackFormat beep.Format

	kv       storage.KV
	breakers []*resilience.CircuitBreaker
	logger   zerolog.Logger
}

// Build wires the stack described by cfg.
func Build(ctx context.Context, cfg *config.Config) (*Stack, error) {
	logger := observability.WithComponent("provider")

	catalog := prompts.Default()
	if cfg.PromptsFile != "" {
		c, err := prompts.Load(cfg.PromptsFile)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	s := &Stack{
		Catalog: catalog,
		Capture: capture.Config{
			TargetRate:      cfg.CaptureSampleRate,
			FrameSize:       cfg.CaptureFrameSize,
			QueueSize:       cfg.CaptureQueueSize,
			Policy:          cfg.CapturePolicy,
			PendingLimit:    cfg.CapturePendingLimit,
			ResampleQuality: cfg.CaptureResampleQual,
		},
		PlaybackFormat: playback.NewFormat(cfg.PlaybackSampleRate, cfg.PlaybackChannels),
		logger:         logger,
	}

	newBreaker := func(name string) *resilience.CircuitBreaker {
		cb := resilience.NewCircuitBreaker(name, cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
		s.breakers = append(s.breakers, cb)
		return cb
	}

	var gemini *genai.Client
	if cfg.BackendProvider == config.ProviderGemini || cfg.TranscriptionProvider == config.ProviderGemini {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		gemini = c
	}

	llmBreaker := newBreaker("llm")
	ttsBreaker := newBreaker("tts")

	var (
		completer llm.Completer
		starter   llm.ChatStarter
	)
	switch cfg.BackendProvider {
	case config.ProviderGemini:
		g := llm.NewGemini(gemini, cfg.GeminiTextModel, llmBreaker)
		completer, starter = g, g
		s.Speech = tts.NewGeminiSynthesizer(gemini, cfg.GeminiTTSModel, cfg.GeminiTTSVoice, catalog.Speech.Prefix, ttsBreaker)
	case config.ProviderOpenAI:
		client := openai.NewClient(cfg.OpenAIAPIKey)
		o := llm.NewOpenAI(client, cfg.OpenAIModel, llmBreaker)
		completer, starter = o, o
		s.Speech = tts.NewOpenAISynthesizer(client, cfg.OpenAITTSModel, cfg.OpenAITTSVoice, catalog.Speech.Prefix, ttsBreaker)
	default:
		return nil, fmt.Errorf("unsupported backend provider %q", cfg.BackendProvider)
	}
	s.Sermons = sermon.NewGenerator(completer, catalog)
	s.Chats = chat.NewManager(starter, catalog, maxConversations)

	sttBreaker := newBreaker("stt")
	switch cfg.TranscriptionProvider {
	case config.ProviderGemini:
		s.Transcription = stt.NewGeminiLive(gemini, cfg.GeminiLiveModel, catalog.Transcription.SystemInstruction, sttBreaker)
	case config.ProviderDeepgram:
		s.Transcription = stt.NewDeepgram(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.DeepgramLanguage, sttBreaker)
	default:
		return nil, fmt.Errorf("unsupported transcription provider %q", cfg.TranscriptionProvider)
	}

	kv, err := OpenHistory(ctx, cfg.HistoryBackend, cfg.HistoryPath)
	if err != nil {
		return nil, err
	}
	s.kv = kv
	s.History = history.NewRegistry(kv, cfg.HistoryKey)

	logger.Info().
		Str("backend", cfg.BackendProvider).
		Str("transcription", cfg.TranscriptionProvider).
		Str("history", cfg.HistoryBackend).
		Msg("Provider stack ready")
	return s, nil
}

// OpenHistory opens the key-value store behind transcript history.
func OpenHistory(ctx context.Context, backend, path string) (storage.KV, error) {
	switch backend {
	case HistorySQLite, "":
		return storage.OpenSQLite(ctx, path)
	case HistoryMemory:
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported history backend %q", backend)
	}
}

// NewPlayer creates a speech player rendering to device.
func (s *Stack) NewPlayer(device playback.Device) *playback.Player {
	return playback.NewPlayer(s.Speech, device, s.PlaybackFormat)
}

// Checks returns the readiness checks for the stack's dependencies.
func (s *Stack) Checks() map[string]observability.HealthCheckFunc {
	checks := map[string]observability.HealthCheckFunc{}
	if s.History != nil {
		checks["history"] = s.History.Ping
	}
	for _, cb := range s.breakers {
		checks["breaker_"+cb.Name()] = cb.Healthy
	}
	return checks
}

// Close releases storage.
func (s *Stack) Close() error {
	var errs []error
	if s.kv != nil {
		if err := s.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
