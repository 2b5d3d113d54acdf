package api

import (
	"net/http"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/chat"
)

type sermonRequest struct {
	Topic    string `json:"topic"`
	Language string `json:"language"`
}

type sermonResponse struct {
	Text string `json:"text"`
}

type topicsResponse struct {
	Topics    []string `json:"topics"`
	Languages []string `json:"languages"`
}

type chatResponse struct {
	ID       string         `json:"id,omitempty"`
	Messages []chat.Message `json:"messages"`
}

type chatRequest struct {
	Text string `json:"text"`
}

type speechRequest struct {
	Text string `json:"text"`
}

type speechResponse struct {
	Audio      *string `json:"audio"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
}

type historyResponse struct {
	Entries []string `json:"entries"`
}

func (a *API) handleSermon(w http.ResponseWriter, r *http.Request) {
	var req sermonRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	text, err := a.deps.Sermons.Generate(r.Context(), req.Topic, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sermonResponse{Text: text})
}

func (a *API) handleTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, topicsResponse{
		Topics:    a.deps.Sermons.ExampleTopics(),
		Languages: a.deps.Sermons.Languages(),
	})
}

func (a *API) handleChatStart(w http.ResponseWriter, r *http.Request) {
	id, messages, err := a.deps.Chats.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chatResponse{ID: id, Messages: messages})
}

func (a *API) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.deps.Chats.Messages(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Messages: messages})
}

func (a *API) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	messages, err := a.deps.Chats.Send(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Messages: messages})
}

// handleSpeech returns synthesized audio for the browser to play. Playback
// state lives in the browser; the server only fetches.
func (a *API) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	payload, err := synthesize(r.Context(), a.deps.Speech, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := speechResponse{SampleRate: a.deps.SpeechRate, Channels: a.deps.SpeechChannels}
	if payload != "" {
		resp.Audio = &payload
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	client, err := clientID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries := a.deps.History.For(r.Context(), client).Entries()
	writeJSON(w, http.StatusOK, historyResponse{Entries: nonNil(entries)})
}

func (a *API) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	client, err := clientID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries := a.deps.History.For(r.Context(), client).Clear(r.Context())
	writeJSON(w, http.StatusOK, historyResponse{Entries: nonNil(entries)})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
