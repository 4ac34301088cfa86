package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/voxgen/internal/audio"
	"github.com/loqalabs/voxgen/internal/config"
	"github.com/loqalabs/voxgen/internal/errkind"
	"github.com/loqalabs/voxgen/internal/speech"
)

func TestGeminiSingleVoice(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/test-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key-1" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;rate=24000","data":"AAABAA=="}}]}}]}`))
	}))
	defer srv.Close()

	synth := NewGeminiSynth(srv.URL, "test-model", "key-1", GeminiOptions{}, time.Second)
	resp, err := synth.Synthesize(context.Background(), speech.Request{Prompt: "Hi", Mode: speech.ModeSingle, Voice: "Kore"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if resp.AudioBase64 != "AAABAA==" {
		t.Fatalf("unexpected audio %q", resp.AudioBase64)
	}

	cfg := got["generationConfig"].(map[string]any)
	if mods := cfg["responseModalities"].([]any); len(mods) != 1 || mods[0] != "AUDIO" {
		t.Fatalf("unexpected modalities %v", mods)
	}
	voice := cfg["speechConfig"].(map[string]any)["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)["voiceName"]
	if voice != "Kore" {
		t.Fatalf("unexpected voice %v", voice)
	}
	text := got["contents"].([]any)[0].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"]
	if text != "Hi" {
		t.Fatalf("unexpected prompt %v", text)
	}
}

func TestGeminiMultiSpeakerPayload(t *testing.T) {
	g := NewGeminiSynth("", "", "k", GeminiOptions{Temperature: 0.4}, time.Second).(*geminiSynth)
	body := g.payload(speech.Request{
		Prompt:   "A: hi\nB: hey",
		Mode:     speech.ModeMulti,
		Speakers: []speech.Speaker{{Name: "A", Voice: "Puck"}, {Name: "B", Voice: "Kore"}},
	})
	sc := body.GenerationConfig.SpeechConfig
	if sc.VoiceConfig != nil {
		t.Fatal("multi mode should not set a single voice config")
	}
	if sc.MultiSpeakerVoiceConfig == nil || len(sc.MultiSpeakerVoiceConfig.SpeakerVoiceConfigs) != 2 {
		t.Fatalf("expected two speaker configs, got %+v", sc.MultiSpeakerVoiceConfig)
	}
	second := sc.MultiSpeakerVoiceConfig.SpeakerVoiceConfigs[1]
	if second.Speaker != "B" || second.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Fatalf("unexpected speaker config %+v", second)
	}
	if body.GenerationConfig.Temperature == nil || *body.GenerationConfig.Temperature != 0.4 {
		t.Fatal("expected temperature from options")
	}
}

func TestGeminiMissingCredentialSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	synth := NewGeminiSynth(srv.URL, "m", "", GeminiOptions{}, time.Second)
	_, err := synth.Synthesize(context.Background(), speech.Request{Prompt: "Hi", Voice: "Kore"})
	if !errors.Is(err, errkind.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("no request should be sent without a credential")
	}
}

func TestGeminiErrorMessagePassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	synth := NewGeminiSynth(srv.URL, "m", "bad", GeminiOptions{}, time.Second)
	_, err := synth.Synthesize(context.Background(), speech.Request{Prompt: "Hi", Voice: "Kore"})
	if !errkind.Is(err, errkind.Transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if errkind.Message(err) != "API key not valid." {
		t.Fatalf("expected api message, got %q", errkind.Message(err))
	}
}

func TestGeminiNoAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`))
	}))
	defer srv.Close()

	synth := NewGeminiSynth(srv.URL, "m", "k", GeminiOptions{}, time.Second)
	resp, err := synth.Synthesize(context.Background(), speech.Request{Prompt: "Hi", Voice: "Kore"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AudioBase64 != "" {
		t.Fatalf("expected empty audio, got %q", resp.AudioBase64)
	}
}

func TestExecSynth(t *testing.T) {
	synth, err := NewExecSynth(`sh -c 'cat >/dev/null; echo "{\"pcm_base64\":\"AAA=\"}"'`, 24000)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	resp, err := synth.Synthesize(context.Background(), speech.Request{Prompt: "Hi", Mode: speech.ModeSingle, Voice: "Kore"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if resp.AudioBase64 != "AAA=" {
		t.Fatalf("unexpected audio %q", resp.AudioBase64)
	}
}

func TestExecSynthReportsError(t *testing.T) {
	synth, err := NewExecSynth(`sh -c 'cat >/dev/null; echo "{\"error\":\"voice unavailable\"}"'`, 24000)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	_, err = synth.Synthesize(context.Background(), speech.Request{Prompt: "Hi"})
	if !errkind.Is(err, errkind.Transport) || !strings.Contains(err.Error(), "voice unavailable") {
		t.Fatalf("expected transport error with message, got %v", err)
	}
}

func TestExecSynthEmptyCommand(t *testing.T) {
	if _, err := NewExecSynth("   ", 24000); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestMockSynthProducesDecodableAudio(t *testing.T) {
	synth := NewMockSynth(audio.SampleRate, 0)
	resp, err := synth.Synthesize(context.Background(), speech.Request{Prompt: "Hi"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	clip, err := audio.Transcode(resp.AudioBase64, audio.SampleRate)
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if clip.Samples != audio.SampleRate/4 {
		t.Fatalf("expected a quarter second of audio, got %d samples", clip.Samples)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default().TTS
	cfg.Options = map[string]any{"api_version": "v1alpha"}
	synth, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	g, ok := synth.(*geminiSynth)
	if !ok {
		t.Fatalf("expected gemini synth, got %T", synth)
	}
	if g.opts.APIVersion != "v1alpha" {
		t.Fatalf("expected api version from options, got %q", g.opts.APIVersion)
	}

	cfg.Mode = "mock"
	if synth, err := New(cfg); err != nil || synth == nil {
		t.Fatalf("mock: %v", err)
	}
	cfg.Mode = "cloud"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
