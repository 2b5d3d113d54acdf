package playback

import (
	"context"
	"strings"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/tts"
)

// Player exposes one playback slot. While a request is being fetched or a
// source is playing, the slot counts as playing and Toggle stops it.
type Player struct {
	synth  tts.Synthesizer
	device Device
	format beep.Format
	logger zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	playing bool
	cancel  context.CancelFunc
	source  *Source
}

// NewPlayer creates an idle player for speech in format.
func NewPlayer(synth tts.Synthesizer, device Device, format beep.Format) *Player {
	return &Player{
		synth:  synth,
		device: device,
		format: format,
		logger: observability.WithComponent("playback"),
	}
}

// Playing reports whether the slot is busy.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Toggle stops the current playback if there is one; otherwise it fetches
// speech for text and starts playing it. It returns whether the slot is
// playing afterwards. No audio from the backend is not an error.
func (p *Player) Toggle(ctx context.Context, text string) (bool, error) {
	p.mu.Lock()
	if p.playing {
		p.stopLocked()
		p.mu.Unlock()
		return false, nil
	}
	if strings.TrimSpace(text) == "" {
		p.mu.Unlock()
		return false, nil
	}
	p.gen++
	gen := p.gen
	p.playing = true
	fetchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	payload, err := p.synth.Synthesize(fetchCtx, text)
	if err != nil {
		if !p.clear(gen) {
			return false, nil
		}
		p.logger.Error().Err(err).Msg("Speech synthesis failed")
		observability.RecordPlayback("failed")
		return false, failure.New(failure.ErrBackendRequest, "playback.toggle", failure.MsgSpeechFailed, err)
	}
	if payload == "" {
		p.clear(gen)
		observability.RecordPlayback("empty")
		return false, nil
	}

	buf, err := Decode(payload, p.format)
	if err != nil {
		if !p.clear(gen) {
			return false, nil
		}
		p.logger.Error().Err(err).Msg("Speech decode failed")
		observability.RecordPlayback("failed")
		return false, failure.New(failure.ErrBackendRequest, "playback.decode", failure.MsgSpeechFailed, err)
	}

	src := NewSource(buf, func() { p.ended(gen) })

	p.mu.Lock()
	if p.gen != gen || !p.playing {
		p.mu.Unlock()
		return false, nil
	}
	p.source = src
	p.cancel = nil
	p.mu.Unlock()

	if err := p.device.Play(src, p.format); err != nil {
		p.clear(gen)
		p.logger.Error().Err(err).Msg("Audio device refused playback")
		observability.RecordPlayback("failed")
		return false, failure.New(failure.ErrBackendRequest, "playback.play", failure.MsgSpeechFailed, err)
	}

	observability.RecordPlayback("started")
	p.logger.Debug().Int("samples", buf.Len()).Msg("Playback started")
	return true, nil
}

// Stop ends any playback or pending fetch.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.stopLocked()
	}
}

// stopLocked cancels the fetch and stops the source. Callers hold mu.
// The source's end callback sees a new generation and leaves state alone.
func (p *Player) stopLocked() {
	cancel, src := p.cancel, p.source
	p.gen++
	p.reset()
	if cancel != nil {
		cancel()
	}
	if src != nil {
		src.stopped.Store(true)
		go src.end()
	}
	observability.RecordPlayback("stopped")
}

// clear resets state if gen is still current and reports whether it was.
func (p *Player) clear(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return false
	}
	p.reset()
	return true
}

func (p *Player) ended(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen || p.source == nil {
		return
	}
	p.reset()
	observability.RecordPlayback("ended")
}

func (p *Player) reset() {
	p.playing = false
	p.cancel = nil
	p.source = nil
}
