// Package prompts holds the prompt catalog used by the sermon, chat, speech
// and transcription features.
package prompts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// Catalog is the parsed prompt file.
type Catalog struct {
	Sermon struct {
		DefaultLanguage string   `yaml:"default_language"`
		Languages       []string `yaml:"languages"`
		ExampleTopics   []string `yaml:"example_topics"`
		Template        string   `yaml:"template"`
		Minutes         int      `yaml:"minutes"`
		Words           int      `yaml:"words"`
	} `yaml:"sermon"`
	Chat struct {
		SystemInstruction string `yaml:"system_instruction"`
		Greeting          string `yaml:"greeting"`
	} `yaml:"chat"`
	Speech struct {
		Prefix string `yaml:"prefix"`
	} `yaml:"speech"`
	Transcription struct {
		SystemInstruction string `yaml:"system_instruction"`
	} `yaml:"transcription"`

	sermon *template.Template
}

// SermonInput fills the sermon template.
type SermonInput struct {
	Topic    string
	Language string
	Minutes  int
	Words    int
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt catalog: %v", err))
	}
	return c
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if strings.TrimSpace(c.Sermon.Template) == "" {
		return nil, errors.New("parse prompts: sermon.template is required")
	}
	tmpl, err := template.New("sermon").Option("missingkey=error").Parse(c.Sermon.Template)
	if err != nil {
		return nil, fmt.Errorf("parse sermon template: %w", err)
	}
	c.sermon = tmpl

	if c.Sermon.DefaultLanguage == "" && len(c.Sermon.Languages) > 0 {
		c.Sermon.DefaultLanguage = c.Sermon.Languages[0]
	}
	return &c, nil
}

// SupportsLanguage reports whether lang is one of the catalog's languages.
func (c *Catalog) SupportsLanguage(lang string) bool {
	for _, l := range c.Sermon.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// SermonPrompt renders the sermon prompt.
func (c *Catalog) SermonPrompt(topic, language string) (string, error) {
	in := SermonInput{
		Topic:    topic,
		Language: language,
		Minutes:  c.Sermon.Minutes,
		Words:    c.Sermon.Words,
	}
	var buf bytes.Buffer
	if err := c.sermon.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("render sermon prompt: %w", err)
	}
	return buf.String(), nil
}
