package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/voxgen/internal/audio"
	"github.com/loqalabs/voxgen/internal/config"
	"github.com/loqalabs/voxgen/internal/generation"
	"github.com/loqalabs/voxgen/internal/history"
	"github.com/loqalabs/voxgen/internal/preset"
	"github.com/loqalabs/voxgen/internal/store"
	"github.com/loqalabs/voxgen/internal/tts"
	"github.com/loqalabs/voxgen/internal/workspace"
)

type fixture struct {
	server *httptest.Server
	ws     *workspace.Manager
	hist   *history.Store
	store  *store.Store
	hub    *Hub
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := newLogger()
	lib, err := preset.NewLibrary(context.Background(), preset.NewMemoryStore(), log)
	if err != nil {
		t.Fatal(err)
	}
	orch := generation.NewOrchestrator(tts.NewMockSynth(audio.SampleRate, 0), audio.SampleRate, log)
	hist := history.NewStore()
	ws := workspace.New(orch, hist, workspace.WithLogger(log), workspace.WithPresets(lib))
	hub := NewHub(log, []string{"http://localhost:5173"})
	ws.Subscribe(hub)
	st, err := store.Open(context.Background(), config.StoreConfig{RetentionMode: "ephemeral"}, log)
	if err != nil {
		t.Fatal(err)
	}
	ws.Subscribe(store.NewRecorder(st, log))

	mux := http.NewServeMux()
	NewAPI(ws, hist, lib, st, hub, log).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		ws.Shutdown()
		st.Close()
	})
	return &fixture{server: srv, ws: ws, hist: hist, store: st, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/sessions", nil)
	list := decode[sessionsResponse](t, resp)
	if len(list.Sessions) != 1 || list.Active != list.Sessions[0].ID {
		t.Fatalf("unexpected sessions %+v", list)
	}
	first := list.Sessions[0].ID

	resp = f.do(t, http.MethodPost, "/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decode[workspace.Session](t, resp)

	resp = f.do(t, http.MethodPatch, "/api/sessions/"+created.ID, map[string]any{"text": "Hello world"})
	updated := decode[workspace.Session](t, resp)
	if updated.Title != `"Hello world"` {
		t.Fatalf("unexpected title %q", updated.Title)
	}

	resp = f.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodDelete, "/api/sessions/"+first, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 closing the last session, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/sessions/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGenerateAndDownload(t *testing.T) {
	f := newFixture(t)
	id := f.ws.Active().ID

	resp := f.do(t, http.MethodPost, "/api/sessions/"+id+"/generate", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", resp.StatusCode)
	}
	if body := decode[errorBody](t, resp); body.Error != "Please enter some text." {
		t.Fatalf("unexpected error %q", body.Error)
	}

	f.do(t, http.MethodPatch, "/api/sessions/"+id, map[string]any{"text": "Hello"})
	resp = f.do(t, http.MethodPost, "/api/sessions/"+id+"/generate", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	f.ws.Wait()

	resp = f.do(t, http.MethodGet, "/api/history", nil)
	entries := decode[[]history.Entry](t, resp)
	if len(entries) != 1 || entries[0].Preview != "Hello" || entries[0].VoiceLabel != "Puck" {
		t.Fatalf("unexpected history %+v", entries)
	}

	resp = f.do(t, http.MethodGet, "/api/history/"+entries[0].ID+"/audio", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="voxgen-audio.wav"`) {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	hdr, err := audio.ParseHeader(data)
	if err != nil {
		t.Fatalf("downloaded audio is not a wav: %v", err)
	}
	if hdr.SampleRate != audio.SampleRate || hdr.Channels != 1 {
		t.Fatalf("unexpected header %+v", hdr)
	}
}

func TestPresetRoutes(t *testing.T) {
	f := newFixture(t)
	id := f.ws.Active().ID

	resp := f.do(t, http.MethodGet, "/api/presets", nil)
	presets := decode[[]presetView](t, resp)
	if len(presets) != 9 {
		t.Fatalf("expected default presets, got %d", len(presets))
	}

	resp = f.do(t, http.MethodPost, "/api/sessions/"+id+"/preset", map[string]string{"preset_id": "charon-news"})
	s := decode[workspace.Session](t, resp)
	if s.Voice != "Charon" || !strings.Contains(s.Instruction, "news anchor") {
		t.Fatalf("preset not applied: %+v", s)
	}

	resp = f.do(t, http.MethodPost, "/api/presets", map[string]string{"session_id": id, "name": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPost, "/api/presets", map[string]string{"session_id": id, "name": "Mine"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	saved := decode[presetView](t, resp)

	resp = f.do(t, http.MethodDelete, "/api/presets/"+saved.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodDelete, "/api/presets/"+saved.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestVoices(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/voices", nil)
	var voices []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		t.Fatal(err)
	}
	if len(voices) != 5 {
		t.Fatalf("expected 5 voices, got %d", len(voices))
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	f.do(t, http.MethodPost, "/api/sessions", nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt workspace.Event
	if err := json.Unmarshal(msg, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Type != workspace.EventSessionCreated || evt.Session == nil {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestEventStreamRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	host := strings.TrimPrefix(f.server.URL, "http://")
	url := "ws://" + host + "/api/events"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatal("expected upgrade from a foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	for _, origin := range []string{"http://" + host, "http://localhost:5173"} {
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {origin}})
		if err != nil {
			t.Fatalf("origin %s: dial: %v", origin, err)
		}
		conn.Close()
	}
}

func TestOriginGuard(t *testing.T) {
	h := newOriginPolicy([]string{"http://localhost:5173"}).Guard(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	cases := []struct {
		method, origin string
		want           int
	}{
		{http.MethodPost, "", http.StatusNoContent},
		{http.MethodPost, "http://127.0.0.1:8080", http.StatusNoContent},
		{http.MethodPost, "http://LOCALHOST:5173", http.StatusNoContent},
		{http.MethodPost, "https://evil.example", http.StatusForbidden},
		{http.MethodDelete, "null", http.StatusForbidden},
		{http.MethodGet, "https://evil.example", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "http://127.0.0.1:8080/api/sessions", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s origin=%q: expected %d, got %d", tc.method, tc.origin, tc.want, rec.Code)
		}
	}
}

func TestSessionTimeline(t *testing.T) {
	f := newFixture(t)
	id := f.ws.Active().ID
	f.do(t, http.MethodPatch, "/api/sessions/"+id, map[string]any{"text": "Hello"})
	resp := f.do(t, http.MethodPost, "/api/sessions/"+id+"/generate", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	f.ws.Wait()

	resp = f.do(t, http.MethodGet, "/api/sessions/"+id+"/events", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	events := decode[[]timelineEvent](t, resp)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []string{"generation.started", "generation.succeeded", "history.added"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected timeline %v", types)
	}
	var recorded workspace.Event
	if err := json.Unmarshal(events[2].Event, &recorded); err != nil {
		t.Fatalf("decode recorded event: %v", err)
	}
	if recorded.Entry == nil || recorded.Entry.Preview != "Hello" {
		t.Fatalf("unexpected recorded event %+v", recorded)
	}

	resp = f.do(t, http.MethodGet, "/api/sessions/"+id+"/events?limit=1", nil)
	if got := decode[[]timelineEvent](t, resp); len(got) != 1 {
		t.Fatalf("expected limit to apply, got %d events", len(got))
	}
	resp = f.do(t, http.MethodGet, "/api/sessions/"+id+"/events?limit=zero", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/sessions/unknown/events", nil)
	if got := decode[[]timelineEvent](t, resp); len(got) != 0 {
		t.Fatalf("expected empty timeline, got %v", got)
	}
}

func TestReleaseAudio(t *testing.T) {
	f := newFixture(t)
	id := f.ws.Active().ID
	f.do(t, http.MethodPatch, "/api/sessions/"+id, map[string]any{"text": "Hello"})
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/generate", nil)
	f.ws.Wait()
	entry := f.hist.List()[0]

	resp := f.do(t, http.MethodDelete, "/api/history/"+entry.ID+"/audio", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/history/"+entry.ID+"/audio", nil)
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("expected 410 after release, got %d", resp.StatusCode)
	}
	if _, ok := f.hist.Get(entry.ID); !ok {
		t.Fatal("history entry should survive releasing its audio")
	}
	resp = f.do(t, http.MethodDelete, "/api/history/missing/audio", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
