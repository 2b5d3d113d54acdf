// Package stt opens live transcription sessions against a speech backend.
package stt

import (
	"context"
	"errors"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/audio"
)

// ErrClosed is returned by Send after the handle was closed.
var ErrClosed = errors.New("stt: session closed")

// Callbacks receive session events. Implementations invoke them from a single
// goroutine, in the order the backend produced them; OnOpen may fire before
// Open returns.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(fragment string)
	OnError   func(err error)
	OnClose   func()
}

func (c Callbacks) open() {
	if c.OnOpen != nil {
		c.OnOpen()
	}
}

func (c Callbacks) message(fragment string) {
	if c.OnMessage != nil && fragment != "" {
		c.OnMessage(fragment)
	}
}

func (c Callbacks) error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

func (c Callbacks) close() {
	if c.OnClose != nil {
		c.OnClose()
	}
}

// Handle is an open live session.
type Handle interface {
	Send(chunk audio.Chunk) error
	// Close ends the session. Safe to call more than once.
	Close() error
}

// Transport opens live sessions.
type Transport interface {
	Open(ctx context.Context, cb Callbacks) (Handle, error)
}
