package capture

import (
	"github.com/gopxl/beep/v2"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
)

// micStreamer adapts a MicStream to beep.Streamer. Stream blocks until the
// request is filled and only comes up short once the microphone ends or stop
// is closed.
type micStreamer struct {
	src   <-chan []float32
	stop  <-chan struct{}
	ring  *audio.SampleRing
	carry []float32
	tmp   []float32
	ended bool
}

func newMicStreamer(src <-chan []float32, stop <-chan struct{}, ringSize int) *micStreamer {
	return &micStreamer{
		src:  src,
		stop: stop,
		ring: audio.NewSampleRing(ringSize),
		tmp:  make([]float32, 512),
	}
}

func (m *micStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		m.refill()
		if m.ring.IsEmpty() {
			if m.ended || !m.wait() {
				m.ended = true
				return n, n > 0
			}
			continue
		}

		want := len(samples) - n
		if want > len(m.tmp) {
			want = len(m.tmp)
		}
		read := m.ring.Read(m.tmp[:want])
		for i := 0; i < read; i++ {
			v := float64(m.tmp[i])
			samples[n+i] = [2]float64{v, v}
		}
		n += read
	}
	return n, true
}

func (m *micStreamer) Err() error { return nil }

// refill moves carried-over samples into the ring.
func (m *micStreamer) refill() {
	if len(m.carry) == 0 {
		return
	}
	written := m.ring.Write(m.carry)
	m.carry = m.carry[written:]
}

// wait blocks for the next block from the microphone. It reports false when
// the microphone ended or the streamer was stopped.
func (m *micStreamer) wait() bool {
	select {
	case <-m.stop:
		return false
	case block, ok := <-m.src:
		if !ok {
			return false
		}
		m.carry = append(m.carry, block...)
		return true
	}
}

// newSource wraps the microphone in a streamer producing targetRate audio.
func newSource(stream MicStream, stop <-chan struct{}, targetRate, quality, ringSize int) beep.Streamer {
	var s beep.Streamer = newMicStreamer(stream.Samples(), stop, ringSize)
	native := stream.NativeRate()
	if native > 0 && native != targetRate {
		s = beep.Resample(quality, beep.SampleRate(native), beep.SampleRate(targetRate), s)
	}
	return s
}
