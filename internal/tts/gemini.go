package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/resilience"
)

// GeminiSynthesizer uses a Gemini TTS model with a prebuilt voice.
type GeminiSynthesizer struct {
	client  *genai.Client
	model   string
	voice   string
	prefix  string
	breaker *resilience.CircuitBreaker
}

// NewGeminiSynthesizer creates a synthesizer. prefix is prepended to every
// text as a speaking instruction.
func NewGeminiSynthesizer(client *genai.Client, model, voice, prefix string, breaker *resilience.CircuitBreaker) *GeminiSynthesizer {
	return &GeminiSynthesizer{client: client, model: model, voice: voice, prefix: prefix, breaker: breaker}
}

func (g *GeminiSynthesizer) Synthesize(ctx context.Context, text string) (payload string, err error) {
	defer observability.ObserveBackend("speech", time.Now(), &err)
	ctx, span := observability.StartSpan(ctx, "tts.gemini.synthesize",
		attribute.String("model", g.model),
		attribute.Int("text_length", len(text)),
	)
	defer func() { observability.EndSpan(span, err) }()

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	}

	var resp *genai.GenerateContentResponse
	err = g.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(g.prefix+text), cfg)
		if err != nil {
			return fmt.Errorf("generate speech: %w", err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(inlineAudio(resp)), nil
}

// inlineAudio returns the first inline data part of the first candidate.
func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}
