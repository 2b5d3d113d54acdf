package config

import (
	"os"
	"testing"
)

func clearProviderEnv(t *testing.T) {
	for _, key := range []string{
		"GEMINI_API_KEY", "OPENAI_API_KEY", "DEEPGRAM_API_KEY",
		"BACKEND_PROVIDER", "TRANSCRIPTION_PROVIDER", "CAPTURE_POLICY", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	clearProviderEnv(t)

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.BackendProvider != ProviderGemini {
		t.Errorf("Expected default BackendProvider 'gemini', got '%s'", cfg.BackendProvider)
	}
	if cfg.GeminiTextModel != "gemini-2.5-flash" {
		t.Errorf("Expected default GeminiTextModel 'gemini-2.5-flash', got '%s'", cfg.GeminiTextModel)
	}
	if cfg.GeminiTTSVoice != "Kore" {
		t.Errorf("Expected default GeminiTTSVoice 'Kore', got '%s'", cfg.GeminiTTSVoice)
	}
	if cfg.CaptureSampleRate != 16000 {
		t.Errorf("Expected default CaptureSampleRate 16000, got %d", cfg.CaptureSampleRate)
	}
	if cfg.CaptureFrameSize != 4096 {
		t.Errorf("Expected default CaptureFrameSize 4096, got %d", cfg.CaptureFrameSize)
	}
	if cfg.CapturePolicy != CapturePolicyDrop {
		t.Errorf("Expected default CapturePolicy 'drop', got '%s'", cfg.CapturePolicy)
	}
	if cfg.PlaybackSampleRate != 24000 {
		t.Errorf("Expected default PlaybackSampleRate 24000, got %d", cfg.PlaybackSampleRate)
	}
	if cfg.PlaybackChannels != 1 {
		t.Errorf("Expected default PlaybackChannels 1, got %d", cfg.PlaybackChannels)
	}
	if cfg.HistoryKey != "transcriptionHistory" {
		t.Errorf("Expected default HistoryKey 'transcriptionHistory', got '%s'", cfg.HistoryKey)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}

func TestLoad_OpenAIWithDeepgram(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("BACKEND_PROVIDER", "openai")
	t.Setenv("TRANSCRIPTION_PROVIDER", "deepgram")
	t.Setenv("OPENAI_API_KEY", "test-openai-key")
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.BackendProvider != ProviderOpenAI || cfg.TranscriptionProvider != ProviderDeepgram {
		t.Errorf("Unexpected providers: %s / %s", cfg.BackendProvider, cfg.TranscriptionProvider)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		BackendProvider:       ProviderGemini,
		TranscriptionProvider: ProviderGemini,
		GeminiAPIKey:          "k",
		CapturePolicy:         CapturePolicyDrop,
		CaptureFrameSize:      4096,
		CaptureSampleRate:     16000,
		CaptureQueueSize:      8,
		PlaybackSampleRate:    24000,
		PlaybackChannels:      1,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.BackendProvider = "acme" }, true},
		{"deepgram without key", func(c *Config) { c.TranscriptionProvider = ProviderDeepgram }, true},
		{"unknown policy", func(c *Config) { c.CapturePolicy = "block" }, true},
		{"zero frame size", func(c *Config) { c.CaptureFrameSize = 0 }, true},
		{"zero playback rate", func(c *Config) { c.PlaybackSampleRate = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOrigins(t *testing.T) {
	cfg := Config{AllowedOrigins: " https://a.example , ,https://b.example"}
	origins := cfg.Origins()
	if len(origins) != 2 || origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Errorf("Unexpected origins: %v", origins)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_KEY", "test-value")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}
