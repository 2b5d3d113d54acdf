package audio

import (
	"sync"
)

// SampleRing is a thread-safe ring buffer of float audio samples. One slot is
// kept free to tell full from empty, so capacity is size-1.
type SampleRing struct {
	buffer []float32
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewSampleRing creates a ring holding up to size-1 samples.
func NewSampleRing(size int) *SampleRing {
	if size < 2 {
		size = 2
	}
	return &SampleRing{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write copies samples into the ring.
// Returns the number of samples written (may be less than len(data) if the ring is full)
func (r *SampleRing) Write(data []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	written := 0
	for _, s := range data {
		if (r.write+1)%r.size == r.read {
			break
		}
		r.buffer[r.write] = s
		r.write = (r.write + 1) % r.size
		written++
	}
	return written
}

// Read moves up to len(data) samples out of the ring.
func (r *SampleRing) Read(data []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	read := 0
	for i := range data {
		if r.read == r.write {
			break
		}
		data[i] = r.buffer[r.read]
		r.read = (r.read + 1) % r.size
		read++
	}
	return read
}

// IsEmpty returns true if the ring holds no samples
func (r *SampleRing) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.read == r.write
}
