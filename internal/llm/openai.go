package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/resilience"
)

var errNoChoices = errors.New("no choices in completion response")

// OpenAI implements Completer and ChatStarter with chat completions.
type OpenAI struct {
	client  *openai.Client
	model   string
	breaker *resilience.CircuitBreaker
}

// NewOpenAI creates an OpenAI backend for model.
func NewOpenAI(client *openai.Client, model string, breaker *resilience.CircuitBreaker) *OpenAI {
	return &OpenAI{client: client, model: model, breaker: breaker}
}

func (o *OpenAI) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	var text string
	err := o.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    o.model,
			Messages: messages,
		})
		if err != nil {
			return fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errNoChoices
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	return text, err
}

func (o *OpenAI) GenerateCompletion(ctx context.Context, prompt string) (c Completion, err error) {
	defer observability.ObserveBackend("completion", time.Now(), &err)
	ctx, span := observability.StartSpan(ctx, "llm.openai.completion", attribute.String("model", o.model))
	defer func() { observability.EndSpan(span, err) }()

	c.Text, err = o.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
	return c, err
}

func (o *OpenAI) StartChat(_ context.Context, systemInstruction string) (Conversation, error) {
	conv := &openaiConversation{backend: o}
	if systemInstruction != "" {
		conv.messages = append(conv.messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemInstruction,
		})
	}
	return conv, nil
}

type openaiConversation struct {
	backend  *OpenAI
	mu       sync.Mutex
	messages []openai.ChatCompletionMessage
}

func (c *openaiConversation) Send(ctx context.Context, text string) (reply string, err error) {
	defer observability.ObserveBackend("chat", time.Now(), &err)
	ctx, span := observability.StartSpan(ctx, "llm.openai.chat", attribute.String("model", c.backend.model))
	defer func() { observability.EndSpan(span, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	pending := append(append([]openai.ChatCompletionMessage(nil), c.messages...),
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	reply, err = c.backend.complete(ctx, pending)
	if err != nil {
		return "", err
	}
	c.messages = append(pending, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	return reply, nil
}
