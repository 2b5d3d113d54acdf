// Package failure defines the error taxonomy shared by the assistant features
// and the localized messages shown to users.
package failure

import (
	"errors"
)

// Error kinds. Every user-visible error wraps exactly one of these.
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrTransport        = errors.New("live session transport error")
	ErrBackendRequest   = errors.New("backend request failed")
	ErrStorage          = errors.New("storage failure")
	ErrValidation       = errors.New("invalid input")
)

// Localized user messages.
const (
	MsgPermissionDenied = "Tidak dapat mengakses mikrofon. Pastikan Anda telah memberikan izin."
	MsgTransport        = "Terjadi kesalahan koneksi."
	MsgGeneric          = "Terjadi kesalahan."
	MsgSermonFailed     = "Gagal membuat khutbah. Silakan coba lagi."
	MsgSpeechFailed     = "Gagal memutar audio."
	MsgChatFailed       = "Maaf, terjadi kesalahan. Coba lagi nanti."
	MsgEmptyTopic       = "Topik tidak boleh kosong."
)

// Error carries an error kind, the underlying cause and the message a user sees.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

// New builds an *Error. msg may be empty, in which case the kind's default
// message is used.
func New(kind error, op, msg string, cause error) *Error {
	if msg == "" {
		msg = defaultMessage(kind)
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns the localized message for err. Errors outside the
// taxonomy map to a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	for _, kind := range []error{ErrPermissionDenied, ErrTransport, ErrBackendRequest, ErrValidation} {
		if errors.Is(err, kind) {
			return defaultMessage(kind)
		}
	}
	return MsgGeneric
}

func defaultMessage(kind error) string {
	switch kind {
	case ErrPermissionDenied:
		return MsgPermissionDenied
	case ErrTransport:
		return MsgTransport
	default:
		return MsgGeneric
	}
}
