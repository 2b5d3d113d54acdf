// Package playback decodes synthesized speech and plays it through a device,
// one source at a time.
package playback

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
)

// SpeechFormat is the format of synthesized speech.
var SpeechFormat = NewFormat(audio.SpeechSampleRate, audio.SpeechChannels)

// NewFormat describes 16-bit PCM at rate with the given channel count.
func NewFormat(rate, channels int) beep.Format {
	return beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: channels, Precision: 2}
}

// Decode turns a base64 PCM payload into a playable buffer in format.
func Decode(payload string, format beep.Format) (*beep.Buffer, error) {
	samples, err := audio.DecodeSpeech(payload)
	if err != nil {
		return nil, err
	}
	if format.NumChannels < 1 || len(samples)%format.NumChannels != 0 {
		return nil, fmt.Errorf("decode speech: %d samples do not fill %d channels", len(samples), format.NumChannels)
	}

	buf := beep.NewBuffer(format)
	buf.Append(sampleStreamer(samples, format.NumChannels))
	return buf, nil
}

// sampleStreamer streams interleaved samples; mono is copied to both sides.
func sampleStreamer(samples []float32, channels int) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(out [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := 0
		for n < len(out) && pos+channels <= len(samples) {
			left := float64(samples[pos])
			right := left
			if channels > 1 {
				right = float64(samples[pos+1])
			}
			out[n] = [2]float64{left, right}
			pos += channels
			n++
		}
		return n, true
	})
}

// Source is a single-use playback of one buffer. Its end callback runs
// exactly once, when the buffer drains or when Stop is called.
type Source struct {
	streamer beep.Streamer
	stopped  atomic.Bool
	endOnce  sync.Once
	onEnd    func()
}

// NewSource prepares buf for playback.
func NewSource(buf *beep.Buffer, onEnd func()) *Source {
	return &Source{streamer: buf.Streamer(0, buf.Len()), onEnd: onEnd}
}

func (s *Source) Stream(samples [][2]float64) (int, bool) {
	if s.stopped.Load() {
		return 0, false
	}
	n, ok := s.streamer.Stream(samples)
	if !ok {
		s.end()
	}
	return n, ok
}

func (s *Source) Err() error { return nil }

// Stop halts the source. Stopping a stopped or finished source is a no-op.
func (s *Source) Stop() {
	s.stopped.Store(true)
	s.end()
}

func (s *Source) end() {
	s.endOnce.Do(func() {
		if s.onEnd != nil {
			s.onEnd()
		}
	})
}
