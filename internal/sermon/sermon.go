// Package sermon drafts Friday sermons from a topic.
package sermon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/llm"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/prompts"
)

// Generator renders the sermon prompt and asks the backend for a draft.
type Generator struct {
	completer llm.Completer
	catalog   *prompts.Catalog
	logger    zerolog.Logger
}

// NewGenerator creates a generator.
func NewGenerator(completer llm.Completer, catalog *prompts.Catalog) *Generator {
	return &Generator{
		completer: completer,
		catalog:   catalog,
		logger:    observability.WithComponent("sermon"),
	}
}

// Languages lists the supported sermon languages.
func (g *Generator) Languages() []string {
	return append([]string(nil), g.catalog.Sermon.Languages...)
}

// ExampleTopics lists suggested topics.
func (g *Generator) ExampleTopics() []string {
	return append([]string(nil), g.catalog.Sermon.ExampleTopics...)
}

// Generate drafts a sermon. An empty language selects the default one.
func (g *Generator) Generate(ctx context.Context, topic, language string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", failure.New(failure.ErrValidation, "sermon.generate", failure.MsgEmptyTopic, nil)
	}
	if language == "" {
		language = g.catalog.Sermon.DefaultLanguage
	}
	if !g.catalog.SupportsLanguage(language) {
		return "", failure.New(failure.ErrValidation, "sermon.generate", failure.MsgGeneric,
			fmt.Errorf("unsupported language %q", language))
	}

	prompt, err := g.catalog.SermonPrompt(topic, language)
	if err != nil {
		return "", failure.New(failure.ErrBackendRequest, "sermon.generate", failure.MsgSermonFailed, err)
	}

	completion, err := g.completer.GenerateCompletion(ctx, prompt)
	if err == nil && strings.TrimSpace(completion.Text) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		g.logger.Error().Err(err).Str("language", language).Msg("Sermon generation failed")
		observability.RecordError("backend_request", "sermon")
		return "", failure.New(failure.ErrBackendRequest, "sermon.generate", failure.MsgSermonFailed, err)
	}

	g.logger.Info().Str("language", language).Int("length", len(completion.Text)).Msg("Sermon generated")
	return completion.Text, nil
}
