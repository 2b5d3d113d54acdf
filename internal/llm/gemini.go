package llm

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/resilience"
)

// Gemini implements Completer and ChatStarter with google.golang.org/genai.
type Gemini struct {
	client  *genai.Client
	model   string
	breaker *resilience.CircuitBreaker
}

// NewGemini creates a Gemini backend for model.
func NewGemini(client *genai.Client, model string, breaker *resilience.CircuitBreaker) *Gemini {
	return &Gemini{client: client, model: model, breaker: breaker}
}

func (g *Gemini) GenerateCompletion(ctx context.Context, prompt string) (c Completion, err error) {
	defer observability.ObserveBackend("completion", time.Now(), &err)
	ctx, span := observability.StartSpan(ctx, "llm.gemini.completion", attribute.String("model", g.model))
	defer func() { observability.EndSpan(span, err) }()

	err = g.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			return fmt.Errorf("generate content: %w", err)
		}
		c.Text = resp.Text()
		return nil
	})
	return c, err
}

func (g *Gemini) StartChat(ctx context.Context, systemInstruction string) (Conversation, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	chat, err := g.client.Chats.Create(ctx, g.model, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &geminiConversation{chat: chat, model: g.model, breaker: g.breaker}, nil
}

type geminiConversation struct {
	chat    *genai.Chat
	model   string
	breaker *resilience.CircuitBreaker
}

func (c *geminiConversation) Send(ctx context.Context, text string) (reply string, err error) {
	defer observability.ObserveBackend("chat", time.Now(), &err)
	ctx, span := observability.StartSpan(ctx, "llm.gemini.chat", attribute.String("model", c.model))
	defer func() { observability.EndSpan(span, err) }()

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
		if err != nil {
			return fmt.Errorf("send chat message: %w", err)
		}
		reply = resp.Text()
		return nil
	})
	return reply, err
}
