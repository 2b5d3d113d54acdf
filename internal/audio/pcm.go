package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// CaptureSampleRate is the rate of audio sent to the transcription service.
	CaptureSampleRate = 16000

	// SpeechSampleRate is the rate of synthesized speech returned by the backend.
	SpeechSampleRate = 24000

	// SpeechChannels is the channel count of synthesized speech.
	SpeechChannels = 1

	pcm16Scale = 32768.0
	pcm16Max   = math.MaxInt16
	pcm16Min   = math.MinInt16
)

// Chunk is one encoded capture frame: base64 16-bit little-endian mono PCM
// plus the descriptor the transcription service expects.
type Chunk struct {
	Data     string
	MIMEType string
}

// MIMEType returns the descriptor for 16-bit PCM at the given rate.
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// Quantize converts one float sample in [-1, 1] to int16, rounding to the
// nearest step and clamping instead of wrapping.
func Quantize(sample float32) int16 {
	v := math.Round(float64(sample) * pcm16Scale)
	if v > pcm16Max {
		return pcm16Max
	}
	if v < pcm16Min {
		return pcm16Min
	}
	return int16(v)
}

// FloatToPCM16 packs float samples as 16-bit signed little-endian PCM.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Quantize(s)))
	}
	return out
}

// PCM16ToFloat unpacks 16-bit signed little-endian PCM into floats in [-1, 1).
func PCM16ToFloat(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d bytes", len(pcm))
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / pcm16Scale
	}
	return samples, nil
}

// EncodeFrame encodes one capture frame for the transcription service.
func EncodeFrame(samples []float32, sampleRate int) Chunk {
	return Chunk{
		Data:     base64.StdEncoding.EncodeToString(FloatToPCM16(samples)),
		MIMEType: MIMEType(sampleRate),
	}
}

// PCM returns the raw little-endian bytes carried by the chunk.
func (c Chunk) PCM() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	return raw, nil
}

// DecodeSpeech turns a base64 headerless PCM payload into normalized samples.
// Multi-channel payloads stay interleaved.
func DecodeSpeech(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode speech payload: %w", err)
	}
	return PCM16ToFloat(raw)
}

// Float32LEToSamples unpacks raw 32-bit float little-endian audio, the format
// browsers hand out from their capture graph.
func Float32LEToSamples(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("float32 data length must be a multiple of 4, got %d bytes", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

// SamplesToFloat32LE is the inverse of Float32LEToSamples.
func SamplesToFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
