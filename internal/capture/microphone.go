// Package capture turns live microphone audio into encoded chunks for the
// transcription service.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
)

// Microphone grants access to a live audio stream. Open returns an error
// wrapping failure.ErrPermissionDenied when access is refused.
type Microphone interface {
	Open(ctx context.Context) (MicStream, error)
}

// MicStream is an acquired microphone. Samples is closed once the stream
// stops or its source ends.
type MicStream interface {
	Samples() <-chan []float32
	NativeRate() int
	Stop()
	ActiveTracks() int
}

// PushStream is a MicStream fed by the caller, e.g. from frames arriving over
// a socket. It counts as one track until stopped.
type PushStream struct {
	rate    int
	ch      chan []float32
	mu      sync.RWMutex
	stopped bool
}

// NewPushStream creates a stream at the given native rate holding up to
// backlog unread blocks.
func NewPushStream(rate, backlog int) *PushStream {
	if backlog < 1 {
		backlog = 1
	}
	return &PushStream{rate: rate, ch: make(chan []float32, backlog)}
}

// Push offers one block without blocking. It reports false if the stream is
// stopped or its backlog is full.
func (p *PushStream) Push(samples []float32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.ch <- samples:
		return true
	default:
		observability.RecordChunk("mic_overflow")
		return false
	}
}

func (p *PushStream) Samples() <-chan []float32 { return p.ch }

func (p *PushStream) NativeRate() int { return p.rate }

// Stop releases the track. Safe to call more than once.
func (p *PushStream) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.ch)
}

func (p *PushStream) ActiveTracks() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return 0
	}
	return 1
}

// ReaderMicrophone reads raw 32-bit float little-endian mono audio from r,
// e.g. `arecord -f FLOAT_LE -c 1 -r 48000 -t raw`. It can be opened once.
type ReaderMicrophone struct {
	r         io.Reader
	rate      int
	blockSize int
	once      sync.Once
	ended     chan struct{}
}

// NewReaderMicrophone creates a microphone over r sampled at rate.
func NewReaderMicrophone(r io.Reader, rate int) *ReaderMicrophone {
	return &ReaderMicrophone{r: r, rate: rate, blockSize: 1024, ended: make(chan struct{})}
}

// Ended is closed once the input is exhausted or the stream is stopped.
func (m *ReaderMicrophone) Ended() <-chan struct{} {
	return m.ended
}

// Open starts reading in the background. A second Open is refused.
func (m *ReaderMicrophone) Open(ctx context.Context) (MicStream, error) {
	var stream *PushStream
	m.once.Do(func() {
		stream = NewPushStream(m.rate, 16)
	})
	if stream == nil {
		return nil, failure.New(failure.ErrPermissionDenied, "microphone.open", "", errors.New("input already in use"))
	}

	go m.pump(ctx, stream)
	return stream, nil
}

func (m *ReaderMicrophone) pump(ctx context.Context, stream *PushStream) {
	defer close(m.ended)
	defer stream.Stop()
	logger := observability.WithComponent("microphone")

	buf := make([]byte, m.blockSize*4)
	for ctx.Err() == nil && stream.ActiveTracks() > 0 {
		n, err := io.ReadFull(m.r, buf)
		if n >= 4 {
			samples, _ := audio.Float32LEToSamples(buf[:n-n%4])
			// Readers are not realtime, so wait for room instead of dropping.
			if !m.offer(ctx, stream, samples) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Error().Err(fmt.Errorf("read microphone: %w", err)).Msg("Microphone input failed")
			}
			return
		}
	}
}

func (m *ReaderMicrophone) offer(ctx context.Context, stream *PushStream, samples []float32) bool {
	for {
		stream.mu.RLock()
		if stream.stopped {
			stream.mu.RUnlock()
			return false
		}
		select {
		case stream.ch <- samples:
			stream.mu.RUnlock()
			return true
		case <-ctx.Done():
			stream.mu.RUnlock()
			return false
		default:
		}
		stream.mu.RUnlock()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}
