package playback

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
)

type fakeSynth struct {
	payload string
	err     error
	block   bool
	calls   int
	mu      sync.Mutex
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.payload, f.err
}

// fakeDevice records sources without pulling samples from them.
type fakeDevice struct {
	mu      sync.Mutex
	sources []beep.Streamer
	err     error
}

func (d *fakeDevice) Play(s beep.Streamer, format beep.Format) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sources = append(d.sources, s)
	return nil
}

func (d *fakeDevice) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sources)
}

func TestPlayer_ToggleStartsAndStops(t *testing.T) {
	dev := &fakeDevice{}
	p := NewPlayer(&fakeSynth{payload: "AAABAAAC"}, dev, SpeechFormat)

	playing, err := p.Toggle(context.Background(), "Bismillah")
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if !playing || !p.Playing() {
		t.Fatal("Expected player to be playing")
	}
	if dev.count() != 1 {
		t.Fatalf("Expected 1 scheduled source, got %d", dev.count())
	}
	src := dev.sources[0].(*Source)

	playing, err = p.Toggle(context.Background(), "Bismillah")
	if err != nil {
		t.Fatalf("Second toggle failed: %v", err)
	}
	if playing || p.Playing() {
		t.Error("Expected player to be stopped after second toggle")
	}
	if n, ok := src.Stream(make([][2]float64, 4)); n != 0 || ok {
		t.Errorf("Expected stopped source to yield (0, false), got (%d, %v)", n, ok)
	}
	if dev.count() != 1 {
		t.Errorf("Expected no new source on stop, got %d", dev.count())
	}
}

func TestPlayer_EmptyPayload(t *testing.T) {
	dev := &fakeDevice{}
	p := NewPlayer(&fakeSynth{payload: ""}, dev, SpeechFormat)

	playing, err := p.Toggle(context.Background(), "teks")
	if err != nil {
		t.Fatalf("Expected no error for empty payload, got %v", err)
	}
	if playing || p.Playing() {
		t.Error("Expected player not to be playing")
	}
	if dev.count() != 0 {
		t.Errorf("Expected no source, got %d", dev.count())
	}
}

func TestPlayer_BackendFailure(t *testing.T) {
	p := NewPlayer(&fakeSynth{err: errors.New("boom")}, &fakeDevice{}, SpeechFormat)

	playing, err := p.Toggle(context.Background(), "teks")
	if !errors.Is(err, failure.ErrBackendRequest) {
		t.Fatalf("Expected backend request error, got %v", err)
	}
	if failure.UserMessage(err) != failure.MsgSpeechFailed {
		t.Errorf("Expected message %q, got %q", failure.MsgSpeechFailed, failure.UserMessage(err))
	}
	if playing || p.Playing() {
		t.Error("Expected player not to be playing")
	}
}

func TestPlayer_DecodeFailure(t *testing.T) {
	p := NewPlayer(&fakeSynth{payload: "not base64!!"}, &fakeDevice{}, SpeechFormat)

	if _, err := p.Toggle(context.Background(), "teks"); !errors.Is(err, failure.ErrBackendRequest) {
		t.Fatalf("Expected backend request error, got %v", err)
	}
	if p.Playing() {
		t.Error("Expected player not to be playing")
	}
}

func TestPlayer_DeviceFailure(t *testing.T) {
	p := NewPlayer(&fakeSynth{payload: "AAABAAAC"}, &fakeDevice{err: errors.New("no device")}, SpeechFormat)

	if _, err := p.Toggle(context.Background(), "teks"); !errors.Is(err, failure.ErrBackendRequest) {
		t.Fatalf("Expected backend request error, got %v", err)
	}
	if p.Playing() {
		t.Error("Expected player not to be playing")
	}
}

func TestPlayer_BlankTextIsNoop(t *testing.T) {
	synth := &fakeSynth{payload: "AAABAAAC"}
	p := NewPlayer(synth, &fakeDevice{}, SpeechFormat)

	playing, err := p.Toggle(context.Background(), "   ")
	if err != nil || playing {
		t.Fatalf("Expected no-op, got playing=%v err=%v", playing, err)
	}
	if synth.calls != 0 {
		t.Errorf("Expected no backend call, got %d", synth.calls)
	}
}

func TestPlayer_ToggleCancelsFetch(t *testing.T) {
	dev := &fakeDevice{}
	p := NewPlayer(&fakeSynth{block: true}, dev, SpeechFormat)

	type result struct {
		playing bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		playing, err := p.Toggle(context.Background(), "teks")
		done <- result{playing, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !p.Playing() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for fetch to start")
		}
		time.Sleep(time.Millisecond)
	}

	if playing, err := p.Toggle(context.Background(), "teks"); playing || err != nil {
		t.Fatalf("Expected stop, got playing=%v err=%v", playing, err)
	}

	select {
	case r := <-done:
		if r.playing || r.err != nil {
			t.Errorf("Expected cancelled fetch to end quietly, got playing=%v err=%v", r.playing, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch was not cancelled")
	}
	if dev.count() != 0 {
		t.Errorf("Expected no source, got %d", dev.count())
	}
}

func TestPlayer_EndClearsState(t *testing.T) {
	pcm := audio.FloatToPCM16([]float32{0.1, 0.2, 0.3})
	dev := NewWriterDevice(&bytes.Buffer{})
	p := NewPlayer(&fakeSynth{payload: base64.StdEncoding.EncodeToString(pcm)}, dev, SpeechFormat)

	if playing, err := p.Toggle(context.Background(), "teks"); !playing || err != nil {
		t.Fatalf("Expected playback to start, got playing=%v err=%v", playing, err)
	}
	dev.Wait()

	if p.Playing() {
		t.Error("Expected player to be idle once the source drained")
	}
}

func TestWriterDevice_RendersPCM(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1}
	buf, err := Decode(base64.StdEncoding.EncodeToString(audio.FloatToPCM16(samples)), SpeechFormat)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if buf.Len() != len(samples) {
		t.Fatalf("Expected %d buffered samples, got %d", len(samples), buf.Len())
	}

	var out bytes.Buffer
	ended := make(chan struct{})
	dev := NewWriterDevice(&out)
	if err := dev.Play(NewSource(buf, func() { close(ended) }), SpeechFormat); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	dev.Wait()

	select {
	case <-ended:
	default:
		t.Error("Expected end callback after rendering")
	}

	got, err := audio.PCM16ToFloat(out.Bytes())
	if err != nil {
		t.Fatalf("PCM16ToFloat failed: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	step := 4.0 / 32768.0
	for i := range samples {
		if d := float64(got[i] - samples[i]); d > step || d < -step {
			t.Errorf("Sample %d: expected ~%v, got %v", i, samples[i], got[i])
		}
	}
}

func TestSource_StopIsIdempotent(t *testing.T) {
	buf, err := Decode("AAABAAAC", SpeechFormat)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	ends := 0
	src := NewSource(buf, func() { ends++ })
	src.Stop()
	src.Stop()

	if n, ok := src.Stream(make([][2]float64, 4)); n != 0 || ok {
		t.Errorf("Expected stopped source to yield nothing, got n=%d ok=%v", n, ok)
	}
	if ends != 1 {
		t.Errorf("Expected end callback once, got %d", ends)
	}
}

func TestDecode_StereoNeedsPairs(t *testing.T) {
	if _, err := Decode("AAABAAAC", NewFormat(24000, 2)); err == nil {
		t.Error("Expected error for odd sample count in stereo")
	}
}
