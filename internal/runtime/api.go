package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/voxgen/internal/audio"
	"github.com/loqalabs/voxgen/internal/errkind"
	"github.com/loqalabs/voxgen/internal/history"
	"github.com/loqalabs/voxgen/internal/preset"
	"github.com/loqalabs/voxgen/internal/speech"
	"github.com/loqalabs/voxgen/internal/store"
	"github.com/loqalabs/voxgen/internal/workspace"
)

const defaultTimelineLimit = 100

// Timeline reads the recorded generation events of a session.
type Timeline interface {
	ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]store.Event, error)
}

// API is the JSON surface the local UI talks to.
type API struct {
	ws       *workspace.Manager
	history  *history.Store
	presets  *preset.Library
	timeline Timeline
	hub      *Hub
	log      *slog.Logger
}

func NewAPI(ws *workspace.Manager, hist *history.Store, presets *preset.Library, timeline Timeline, hub *Hub, log *slog.Logger) *API {
	return &API{
		ws:       ws,
		history:  hist,
		presets:  presets,
		timeline: timeline,
		hub:      hub,
		log:      log.With(slog.String("component", "api")),
	}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/voices", a.handleVoices)
	mux.HandleFunc("GET /api/sessions", a.handleListSessions)
	mux.HandleFunc("POST /api/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", a.handleGetSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", a.handleUpdateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleCloseSession)
	mux.HandleFunc("POST /api/sessions/{id}/activate", a.handleActivate)
	mux.HandleFunc("POST /api/sessions/{id}/generate", a.handleGenerate)
	mux.HandleFunc("POST /api/sessions/{id}/preset", a.handleApplyPreset)
	if a.timeline != nil {
		mux.HandleFunc("GET /api/sessions/{id}/events", a.handleSessionTimeline)
	}
	mux.HandleFunc("GET /api/presets", a.handleListPresets)
	mux.HandleFunc("POST /api/presets", a.handleSavePreset)
	mux.HandleFunc("DELETE /api/presets/{id}", a.handleDeletePreset)
	mux.HandleFunc("GET /api/history", a.handleListHistory)
	mux.HandleFunc("GET /api/history/{id}/audio", a.handleHistoryAudio)
	mux.HandleFunc("DELETE /api/history/{id}/audio", a.handleReleaseAudio)
	if a.hub != nil {
		mux.Handle("GET /api/events", a.hub)
	}
}

type sessionsResponse struct {
	Active   string              `json:"active"`
	Sessions []workspace.Session `json:"sessions"`
}

type presetView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Mode        speech.Mode      `json:"mode"`
	Voice       string           `json:"voice,omitempty"`
	Speakers    []speech.Speaker `json:"speakers,omitempty"`
	Instruction string           `json:"instruction"`
}

func viewPreset(p preset.Preset) presetView {
	return presetView{ID: p.ID, Name: p.Name, Mode: p.Mode, Voice: p.Voice, Speakers: p.Speakers, Instruction: p.Instruction}
}

func (a *API) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, speech.Voices())
}

func (a *API) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionsResponse{Active: a.ws.Active().ID, Sessions: a.ws.List()})
}

func (a *API) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, a.ws.Create())
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.ws.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var patch workspace.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	s, err := a.ws.Update(r.PathValue("id"), patch)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := a.ws.Close(r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := a.ws.Activate(r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.ws.Active())
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.ws.Trigger(id); err != nil {
		a.writeError(w, err)
		return
	}
	s, err := a.ws.Get(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s)
}

func (a *API) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PresetID string `json:"preset_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	s, err := a.ws.ApplyPresetByID(r.PathValue("id"), body.PresetID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	list := a.presets.List()
	out := make([]presetView, 0, len(list))
	for _, p := range list {
		out = append(out, viewPreset(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	p, err := a.ws.SavePreset(r.Context(), body.SessionID, body.Name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewPreset(p))
}

func (a *API) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := a.presets.Delete(r.Context(), r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.history.List())
}

func (a *API) handleHistoryAudio(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.history.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "history entry not found"})
		return
	}
	wav, ok := a.history.Artifact(entry.ArtifactID)
	if !ok {
		writeJSON(w, http.StatusGone, errorBody{Error: "audio has been released"})
		return
	}
	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+audio.DefaultFilename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// handleReleaseAudio frees a clip's audio while keeping its history entry.
func (a *API) handleReleaseAudio(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.history.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "history entry not found"})
		return
	}
	a.history.Release(entry.ArtifactID)
	w.WriteHeader(http.StatusNoContent)
}

type timelineEvent struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Event     json.RawMessage `json:"event"`
}

// handleSessionTimeline returns the recorded generation events of a session,
// oldest first. Sessions closed earlier or in a previous run still have a timeline.
func (a *API) handleSessionTimeline(w http.ResponseWriter, r *http.Request) {
	limit := defaultTimelineLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := a.timeline.ListSessionEvents(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.log.Error("failed to read timeline", slog.String("session_id", r.PathValue("id")), slogError(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read timeline"})
		return
	}
	out := make([]timelineEvent, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEvent{ID: e.ID, Type: e.Type, CreatedAt: e.CreatedAt, Event: json.RawMessage(e.Payload)})
	}
	writeJSON(w, http.StatusOK, out)
}

type errorBody struct {
	Error string `json:"error"`
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, workspace.ErrNotFound), errors.Is(err, preset.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workspace.ErrLastSession), errors.Is(err, workspace.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, workspace.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, preset.ErrEmptyName), errors.Is(err, preset.ErrInvalid), errors.Is(err, workspace.ErrNoPresets):
		status = http.StatusBadRequest
	case errkind.KindOf(err) != errkind.Unknown:
		status = http.StatusBadRequest
		msg = errkind.Message(err)
	}
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
