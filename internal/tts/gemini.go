package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/voxgen/internal/errkind"
	"github.com/loqalabs/voxgen/internal/speech"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	defaultGeminiModel    = "gemini-2.5-flash-preview-tts"
)

// GeminiOptions are provider extras decoded from tts.options.
type GeminiOptions struct {
	APIVersion  string  `mapstructure:"api_version"`
	Temperature float64 `mapstructure:"temperature"`
}

type geminiSynth struct {
	endpoint string
	model    string
	apiKey   string
	opts     GeminiOptions
	client   *http.Client
}

// NewGeminiSynth calls the generateContent endpoint with audio output enabled.
func NewGeminiSynth(endpoint, model, apiKey string, opts GeminiOptions, timeout time.Duration) Synthesizer {
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "v1beta"
	}
	return &geminiSynth{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
		opts:     opts,
		client:   &http.Client{Timeout: timeout},
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	Temperature        *float64           `json:"temperature,omitempty"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig             *geminiVoiceConfig        `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *geminiMultiSpeakerConfig `json:"multiSpeakerVoiceConfig,omitempty"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiMultiSpeakerConfig struct {
	SpeakerVoiceConfigs []geminiSpeakerVoiceConfig `json:"speakerVoiceConfigs"`
}

type geminiSpeakerVoiceConfig struct {
	Speaker     string            `json:"speaker"`
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *geminiSynth) payload(req speech.Request) geminiRequest {
	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if g.opts.Temperature != 0 {
		temp := g.opts.Temperature
		body.GenerationConfig.Temperature = &temp
	}
	if req.Mode == speech.ModeMulti {
		multi := &geminiMultiSpeakerConfig{}
		for _, s := range req.Speakers {
			multi.SpeakerVoiceConfigs = append(multi.SpeakerVoiceConfigs, geminiSpeakerVoiceConfig{
				Speaker:     s.Name,
				VoiceConfig: geminiVoiceConfig{PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: s.Voice}},
			})
		}
		body.GenerationConfig.SpeechConfig.MultiSpeakerVoiceConfig = multi
	} else {
		body.GenerationConfig.SpeechConfig.VoiceConfig = &geminiVoiceConfig{
			PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: req.Voice},
		}
	}
	return body
}

func (g *geminiSynth) Synthesize(ctx context.Context, req speech.Request) (Response, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return Response{}, errkind.ErrMissingCredential
	}
	body, err := json.Marshal(g.payload(req))
	if err != nil {
		return Response{}, err
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", g.endpoint, g.opts.APIVersion, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, errkind.Wrap(err, errkind.Transport)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Response{}, errkind.Wrap(err, errkind.Transport)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, errkind.Wrap(fmt.Errorf("read tts response: %w", err), errkind.Transport)
	}
	if resp.StatusCode >= 300 {
		var apiErr geminiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return Response{}, errkind.New(errkind.Transport, apiErr.Error.Message)
		}
		return Response{}, errkind.New(errkind.Transport, fmt.Sprintf("tts api returned status %s", resp.Status))
	}

	var decoded geminiResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Response{}, errkind.Wrap(fmt.Errorf("decode tts response: %w", err), errkind.Transport)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return Response{}, nil
	}
	inline := decoded.Candidates[0].Content.Parts[0].InlineData
	if inline == nil {
		return Response{}, nil
	}
	return Response{AudioBase64: inline.Data, MIMEType: inline.MIMEType}, nil
}
