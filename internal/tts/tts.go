// Package tts requests synthesized speech from a backend.
package tts

import "context"

// Synthesizer returns base64-encoded 16-bit little-endian mono PCM at
// 24000 Hz. An empty payload with a nil error means the backend produced no
// audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}
