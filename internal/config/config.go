package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Backend and transcription providers.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderDeepgram = "deepgram"
)

// Capture policies for audio chunks produced while no live session is attached.
const (
	CapturePolicyDrop   = "drop"
	CapturePolicyBuffer = "buffer"
)

// Config holds all configuration for the assistant gateway and CLI
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:""` // Comma separated; empty allows any origin

	// Generative backend
	BackendProvider       string `envconfig:"BACKEND_PROVIDER" default:"gemini"`       // gemini, openai
	TranscriptionProvider string `envconfig:"TRANSCRIPTION_PROVIDER" default:"gemini"` // gemini, deepgram

	// Gemini configuration
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	GeminiTextModel string `envconfig:"GEMINI_TEXT_MODEL" default:"gemini-2.5-flash"`
	GeminiTTSModel  string `envconfig:"GEMINI_TTS_MODEL" default:"gemini-2.5-flash-preview-tts"`
	GeminiTTSVoice  string `envconfig:"GEMINI_TTS_VOICE" default:"Kore"`
	GeminiLiveModel string `envconfig:"GEMINI_LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-09-2025"`

	// OpenAI configuration
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel    string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAITTSModel string `envconfig:"OPENAI_TTS_MODEL" default:"gpt-4o-mini-tts"`
	OpenAITTSVoice string `envconfig:"OPENAI_TTS_VOICE" default:"alloy"`

	// Deepgram live transcription configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"id"`

	// Audio capture configuration
	CaptureSampleRate   int    `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"`  // Encoded rate sent to the transcription service
	CaptureFrameSize    int    `envconfig:"CAPTURE_FRAME_SIZE" default:"4096"`    // Samples per encoded chunk
	CaptureQueueSize    int    `envconfig:"CAPTURE_QUEUE_SIZE" default:"64"`      // Chunks between producer and send loop
	CapturePolicy       string `envconfig:"CAPTURE_POLICY" default:"drop"`        // drop, buffer
	CapturePendingLimit int    `envconfig:"CAPTURE_PENDING_LIMIT" default:"32"`   // Chunks held by the buffer policy
	CaptureResampleQual int    `envconfig:"CAPTURE_RESAMPLE_QUALITY" default:"4"` // beep resampler quality

	// Speech playback configuration
	PlaybackSampleRate int `envconfig:"PLAYBACK_SAMPLE_RATE" default:"24000"`
	PlaybackChannels   int `envconfig:"PLAYBACK_CHANNELS" default:"1"`

	// History persistence
	HistoryBackend string `envconfig:"HISTORY_BACKEND" default:"sqlite"` // sqlite, memory
	HistoryPath    string `envconfig:"HISTORY_PATH" default:"data/history.db"`
	HistoryKey     string `envconfig:"HISTORY_KEY" default:"transcriptionHistory"`

	// Prompt catalog override (YAML); empty uses the embedded catalog
	PromptsFile string `envconfig:"PROMPTS_FILE" default:""`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""`    // Empty disables the gRPC health service
	TracingEnabled bool   `envconfig:"TRACING_ENABLED" default:"false"`
	OTLPEndpoint   string `envconfig:"OTLP_ENDPOINT" default:""` // Empty exports spans to stdout
	OTLPInsecure   bool   `envconfig:"OTLP_INSECURE" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks provider selection and the API keys it requires.
func (c *Config) Validate() error {
	switch c.BackendProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unsupported BACKEND_PROVIDER %q", c.BackendProvider)
	}

	switch c.TranscriptionProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for gemini transcription")
		}
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required")
		}
	default:
		return fmt.Errorf("unsupported TRANSCRIPTION_PROVIDER %q", c.TranscriptionProvider)
	}

	if c.CapturePolicy != CapturePolicyDrop && c.CapturePolicy != CapturePolicyBuffer {
		return fmt.Errorf("unsupported CAPTURE_POLICY %q", c.CapturePolicy)
	}
	if c.CaptureFrameSize <= 0 || c.CaptureSampleRate <= 0 || c.CaptureQueueSize <= 0 {
		return fmt.Errorf("capture frame size, sample rate and queue size must be positive")
	}
	if c.PlaybackSampleRate <= 0 || c.PlaybackChannels <= 0 {
		return fmt.Errorf("playback sample rate and channels must be positive")
	}
	return nil
}

// Origins returns the configured allowed origins.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
