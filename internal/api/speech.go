package api

import (
	"context"
	"errors"
	"strings"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/tts"
)

// synthesize fetches speech for text. Backend errors are reported with the
// playback failure message.
func synthesize(ctx context.Context, synth tts.Synthesizer, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", failure.New(failure.ErrValidation, "api.speech", "", errors.New("empty text"))
	}
	payload, err := synth.Synthesize(ctx, text)
	if err != nil {
		observability.RecordError("backend_request", "speech")
		return "", failure.New(failure.ErrBackendRequest, "api.speech", failure.MsgSpeechFailed, err)
	}
	return payload, nil
}
