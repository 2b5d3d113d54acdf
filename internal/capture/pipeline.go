package capture

import (
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
)

const silenceThreshold = 0.01

// Config sizes the capture pipeline.
type Config struct {
	TargetRate      int
	FrameSize       int
	QueueSize       int
	Policy          string
	PendingLimit    int
	ResampleQuality int
}

// DefaultConfig matches the transcription service's expectations.
func DefaultConfig() Config {
	return Config{
		TargetRate:      audio.CaptureSampleRate,
		FrameSize:       4096,
		QueueSize:       64,
		Policy:          PolicyDrop,
		PendingLimit:    32,
		ResampleQuality: 4,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.TargetRate <= 0 {
		c.TargetRate = d.TargetRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.ResampleQuality < 1 {
		c.ResampleQuality = 1
	}
	if c.ResampleQuality > 64 {
		c.ResampleQuality = 64
	}
	return c
}

// Pipeline is the capture graph for one live session: a producer goroutine
// that frames, resamples and encodes microphone audio, and an Outbound queue
// drained by a send loop.
type Pipeline struct {
	cfg    Config
	out    *Outbound
	logger zerolog.Logger

	stop           chan struct{}
	producerDone   chan struct{}
	disconnectOnce sync.Once
	closeOnce      sync.Once
	frames         atomic.Int64
}

// NewPipeline starts capturing from mic immediately.
func NewPipeline(mic MicStream, cfg Config, logger zerolog.Logger) *Pipeline {
	cfg = cfg.normalized()
	p := &Pipeline{
		cfg:          cfg,
		out:          NewOutbound(cfg.QueueSize, cfg.Policy, cfg.PendingLimit, logger),
		logger:       logger,
		stop:         make(chan struct{}),
		producerDone: make(chan struct{}),
	}

	src := newSource(mic, p.stop, cfg.TargetRate, cfg.ResampleQuality, cfg.FrameSize*2)
	go p.produce(src)
	return p
}

// Attach routes chunks to s.
func (p *Pipeline) Attach(s Sender) {
	p.out.Attach(s)
}

func (p *Pipeline) produce(src beep.Streamer) {
	defer close(p.producerDone)

	buf := make([][2]float64, p.cfg.FrameSize)
	frame := make([]float32, p.cfg.FrameSize)
	for {
		filled := 0
		for filled < len(buf) {
			n, ok := src.Stream(buf[filled:])
			filled += n
			if !ok || n == 0 {
				break
			}
		}
		if filled < len(buf) {
			// partial trailing window, discarded
			return
		}

		for i := range buf {
			frame[i] = float32(buf[i][0])
		}
		p.frames.Add(1)
		observability.RecordAudioBytes("in", int64(len(frame)*4))
		if audio.DetectSilence(frame, silenceThreshold) {
			observability.RecordSilentFrame()
		}

		// EncodeFrame copies, so frame can be reused.
		p.out.Push(audio.EncodeFrame(frame, p.cfg.TargetRate))

		select {
		case <-p.stop:
			return
		default:
		}
	}
}

// Disconnect stops the producer and detaches the sender. Idempotent.
func (p *Pipeline) Disconnect() {
	p.disconnectOnce.Do(func() {
		close(p.stop)
		<-p.producerDone
		p.out.Detach()
	})
}

// Close stops the send loop. It disconnects first if needed. Idempotent.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.Disconnect()
		p.out.Close()

		stats := p.Stats()
		p.logger.Debug().
			Int64("frames", stats.Frames).
			Int64("sent", stats.Sent).
			Int64("dropped", stats.Dropped+stats.QueueFull).
			Int64("failed", stats.Failed).
			Msg("Capture pipeline closed")
	})
}

// Stats returns the frame count and the outbound counters.
func (p *Pipeline) Stats() Stats {
	stats := p.out.Stats()
	stats.Frames = p.frames.Load()
	return stats
}
