package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/voxgen/internal/errkind"
	"github.com/loqalabs/voxgen/internal/speech"
)

type execSynth struct {
	cmd        []string
	sampleRate int
}

type execRequest struct {
	Prompt     string           `json:"prompt"`
	Mode       string           `json:"mode"`
	Voice      string           `json:"voice,omitempty"`
	Speakers   []speech.Speaker `json:"speakers,omitempty"`
	SampleRate int              `json:"sample_rate"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	MIMEType  string `json:"mime_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewExecSynth runs an external command per request. The command reads one JSON
// request on stdin and writes one JSON response on stdout.
func NewExecSynth(command string, sampleRate int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req speech.Request) (Response, error) {
	input, err := json.Marshal(execRequest{
		Prompt:     req.Prompt,
		Mode:       string(req.Mode),
		Voice:      req.Voice,
		Speakers:   req.Speakers,
		SampleRate: e.sampleRate,
	})
	if err != nil {
		return Response{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Response{}, errkind.Wrap(fmt.Errorf("tts command failed: %w: %s", err, msg), errkind.Transport)
		}
		return Response{}, errkind.Wrap(fmt.Errorf("tts command failed: %w", err), errkind.Transport)
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(output), &resp); err != nil {
		return Response{}, errkind.Wrap(fmt.Errorf("decode tts command response: %w", err), errkind.Transport)
	}
	if resp.Error != "" {
		return Response{}, errkind.Wrap(errors.New(resp.Error), errkind.Transport)
	}
	return Response{AudioBase64: resp.PCMBase64, MIMEType: resp.MIMEType}, nil
}
