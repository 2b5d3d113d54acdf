// Package api is the HTTP and WebSocket surface the browser assistant talks to.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/capture"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/chat"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/history"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/sermon"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/stt"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/tts"
)

// Deps are the features served by the API.
type Deps struct {
	Sermons        *sermon.Generator
	Chats          *chat.Manager
	Speech         tts.Synthesizer
	History        *history.Registry
	Transcription  stt.Transport
	Capture        capture.Config
	SpeechRate     int
	SpeechChannels int
	AllowedOrigins []string
}

// API holds the handlers.
type API struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates the API.
func New(deps Deps) *API {
	return &API{deps: deps, logger: observability.WithComponent("api")}
}

// Register mounts every route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sermons", a.handleSermon)
	mux.HandleFunc("GET /api/sermons/topics", a.handleTopics)
	mux.HandleFunc("POST /api/chats", a.handleChatStart)
	mux.HandleFunc("GET /api/chats/{id}/messages", a.handleChatMessages)
	mux.HandleFunc("POST /api/chats/{id}/messages", a.handleChatSend)
	mux.HandleFunc("POST /api/speech", a.handleSpeech)
	mux.HandleFunc("GET /api/history", a.handleHistory)
	mux.HandleFunc("DELETE /api/history", a.handleHistoryClear)
	mux.HandleFunc("GET /streams/transcribe", a.handleTranscribe)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and the user's localized message.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, failure.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, chat.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, chat.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, failure.ErrBackendRequest):
		code = http.StatusBadGateway
	}
	writeJSON(w, code, errorResponse{Error: failure.UserMessage(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return failure.New(failure.ErrValidation, "api.decode", "", err)
	}
	return nil
}

// clientID reads the optional browser client id from the query string.
func clientID(r *http.Request) (string, error) {
	id := r.URL.Query().Get("client")
	if id != "" && !history.ValidClientID(id) {
		return "", failure.New(failure.ErrValidation, "api.client", "", errors.New("invalid client id"))
	}
	return id, nil
}
