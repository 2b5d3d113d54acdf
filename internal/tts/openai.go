package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/resilience"
)

// OpenAISynthesizer uses the OpenAI speech endpoint, whose pcm format is
// already 24 kHz 16-bit mono.
type OpenAISynthesizer struct {
	client  *openai.Client
	model   openai.SpeechModel
	voice   openai.SpeechVoice
	prefix  string
	breaker *resilience.CircuitBreaker
}

// NewOpenAISynthesizer creates a synthesizer.
func NewOpenAISynthesizer(client *openai.Client, model, voice, prefix string, breaker *resilience.CircuitBreaker) *OpenAISynthesizer {
	return &OpenAISynthesizer{
		client:  client,
		model:   openai.SpeechModel(model),
		voice:   openai.SpeechVoice(voice),
		prefix:  prefix,
		breaker: breaker,
	}
}

func (o *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (payload string, err error) {
	defer observability.ObserveBackend("speech", time.Now(), &err)
	ctx, span := observability.StartSpan(ctx, "tts.openai.synthesize",
		attribute.String("model", string(o.model)),
		attribute.Int("text_length", len(text)),
	)
	defer func() { observability.EndSpan(span, err) }()

	var pcm []byte
	err = o.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          o.model,
			Input:          o.prefix + text,
			Voice:          o.voice,
			ResponseFormat: openai.SpeechResponseFormatPcm,
		})
		if err != nil {
			return fmt.Errorf("create speech: %w", err)
		}
		defer resp.Close()

		pcm, err = io.ReadAll(resp)
		if err != nil {
			return fmt.Errorf("read speech: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pcm), nil
}
