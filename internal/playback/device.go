package playback

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
)

// Device starts playing s and returns without waiting for it to finish.
type Device interface {
	Play(s beep.Streamer, format beep.Format) error
}

// WriterDevice renders audio as raw 16-bit little-endian PCM to w, e.g. a
// pipe into `aplay -f S16_LE -r 24000 -c 1`. Playbacks are rendered one
// after another.
type WriterDevice struct {
	w  io.Writer
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewWriterDevice creates a device writing to w.
func NewWriterDevice(w io.Writer) *WriterDevice {
	return &WriterDevice{w: w}
}

func (d *WriterDevice) Play(s beep.Streamer, format beep.Format) error {
	if format.NumChannels < 1 || format.NumChannels > 2 {
		return fmt.Errorf("unsupported channel count %d", format.NumChannels)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.render(s, format.NumChannels); err != nil {
			logger := observability.WithComponent("playback")
			logger.Error().Err(err).Msg("Audio output failed")
		}
	}()
	return nil
}

// Wait blocks until every started playback has been rendered.
func (d *WriterDevice) Wait() {
	d.wg.Wait()
}

func (d *WriterDevice) render(s beep.Streamer, channels int) error {
	buf := make([][2]float64, 1024)
	out := make([]byte, len(buf)*2*channels)
	for {
		n, ok := s.Stream(buf)
		if n > 0 {
			o := 0
			for i := 0; i < n; i++ {
				for ch := 0; ch < channels; ch++ {
					binary.LittleEndian.PutUint16(out[o:], uint16(audio.Quantize(float32(buf[i][ch]))))
					o += 2
				}
			}
			if _, err := d.w.Write(out[:o]); err != nil {
				// drain so the source still reports its end
				for ok {
					_, ok = s.Stream(buf)
				}
				return fmt.Errorf("write audio: %w", err)
			}
		}
		if !ok {
			return nil
		}
	}
}
