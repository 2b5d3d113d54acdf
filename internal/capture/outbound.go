package capture

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
)

// Policies for chunks produced while no sender is attached.
const (
	PolicyDrop   = "drop"
	PolicyBuffer = "buffer"
)

// Sender delivers chunks to the live session.
type Sender interface {
	Send(chunk audio.Chunk) error
}

// Stats counts chunk outcomes over the pipeline's lifetime.
type Stats struct {
	Frames    int64 // set by Pipeline.Stats
	Sent      int64
	Failed    int64
	Dropped   int64
	QueueFull int64
	Buffered  int64
}

// Outbound is a bounded queue between the capture producer and the sender.
// Push never blocks: when the queue is full the chunk is dropped, so a slow
// transport never stalls capture.
type Outbound struct {
	queue        chan audio.Chunk
	policy       string
	pendingLimit int
	logger       zerolog.Logger

	qmu    sync.RWMutex
	closed bool
	done   chan struct{}

	// sendMu orders flushes on Attach against the send loop.
	sendMu  sync.Mutex
	mu      sync.Mutex
	sender  Sender
	pending []audio.Chunk

	sent, failed, dropped, queueFull, buffered atomic.Int64
}

// NewOutbound starts the send loop.
func NewOutbound(queueSize int, policy string, pendingLimit int, logger zerolog.Logger) *Outbound {
	if queueSize < 1 {
		queueSize = 1
	}
	if policy != PolicyBuffer {
		policy = PolicyDrop
	}
	o := &Outbound{
		queue:        make(chan audio.Chunk, queueSize),
		policy:       policy,
		pendingLimit: pendingLimit,
		logger:       logger,
		done:         make(chan struct{}),
	}
	go o.sendLoop()
	return o
}

// Push enqueues chunk without waiting. It reports false if the chunk was dropped.
func (o *Outbound) Push(chunk audio.Chunk) bool {
	o.qmu.RLock()
	defer o.qmu.RUnlock()
	if o.closed {
		return false
	}
	select {
	case o.queue <- chunk:
		return true
	default:
		o.queueFull.Add(1)
		observability.RecordChunk("queue_full")
		return false
	}
}

// Attach sets the sender. Under the buffer policy, chunks held while detached
// are flushed first, in production order.
func (o *Outbound) Attach(s Sender) {
	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	o.mu.Lock()
	o.sender = s
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()

	if len(pending) > 0 {
		o.logger.Debug().Int("chunks", len(pending)).Msg("Flushing buffered audio")
	}
	for _, chunk := range pending {
		o.send(s, chunk)
	}
}

// Detach clears the sender; later chunks follow the policy.
func (o *Outbound) Detach() {
	o.mu.Lock()
	o.sender = nil
	o.mu.Unlock()
}

// Close stops accepting chunks, drains the queue through the current policy
// and waits for the send loop. Safe to call more than once.
func (o *Outbound) Close() {
	o.qmu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.qmu.Unlock()
	<-o.done
}

// Stats returns a snapshot of the counters.
func (o *Outbound) Stats() Stats {
	return Stats{
		Sent:      o.sent.Load(),
		Failed:    o.failed.Load(),
		Dropped:   o.dropped.Load(),
		QueueFull: o.queueFull.Load(),
		Buffered:  o.buffered.Load(),
	}
}

func (o *Outbound) sendLoop() {
	defer close(o.done)
	for chunk := range o.queue {
		o.deliver(chunk)
	}
}

func (o *Outbound) deliver(chunk audio.Chunk) {
	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	o.mu.Lock()
	s := o.sender
	if s == nil {
		o.hold(chunk)
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.send(s, chunk)
}

// hold applies the detached policy. Callers hold mu.
func (o *Outbound) hold(chunk audio.Chunk) {
	if o.policy != PolicyBuffer || o.pendingLimit <= 0 {
		o.dropped.Add(1)
		observability.RecordChunk("dropped")
		return
	}
	if len(o.pending) >= o.pendingLimit {
		o.pending = o.pending[1:]
		o.dropped.Add(1)
		observability.RecordChunk("dropped")
	}
	o.pending = append(o.pending, chunk)
	o.buffered.Add(1)
	observability.RecordChunk("buffered")
}

func (o *Outbound) send(s Sender, chunk audio.Chunk) {
	if err := s.Send(chunk); err != nil {
		o.failed.Add(1)
		observability.RecordChunk("failed")
		o.logger.Debug().Err(err).Msg("Audio chunk not delivered")
		return
	}
	o.sent.Add(1)
	observability.RecordChunk("sent")
	observability.RecordAudioBytes("out", int64(len(chunk.Data)))
}
