package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/loqalabs/voxgen/internal/audio"
	"github.com/loqalabs/voxgen/internal/config"
	"github.com/loqalabs/voxgen/internal/errkind"
	"github.com/loqalabs/voxgen/internal/generation"
	"github.com/loqalabs/voxgen/internal/preset"
	"github.com/loqalabs/voxgen/internal/speech"
	"github.com/loqalabs/voxgen/internal/tts"
)

var version = "0.1.0-dev"

const usage = "expected 'synth', 'inspect', 'presets validate', 'voices' or 'version'"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "synth":
		err = runSynth(os.Args[2:])
	case "presets":
		if len(os.Args) < 3 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "expected 'presets validate'")
			os.Exit(2)
		}
		err = runValidate(os.Args[3:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "voices":
		runVoices()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	text := fs.String("text", "", "Text to speak")
	textFile := fs.String("file", "", "Read the text from a file")
	voice := fs.String("voice", speech.DefaultVoice(), "Voice for single speaker mode")
	speakers := fs.String("speakers", "", "Two speakers for dialogue mode, e.g. A=Puck,B=Kore")
	instruction := fs.String("instruction", speech.DefaultInstruction, "Style instruction")
	presetID := fs.String("preset", "", "Use a built-in preset instead of -voice/-speakers/-instruction")
	out := fs.String("out", audio.DefaultFilename, "Output WAV file")
	_ = fs.Parse(args)

	input := *text
	if *textFile != "" {
		data, err := os.ReadFile(*textFile)
		if err != nil {
			return err
		}
		input = string(data)
	}

	opts := speech.Options{Mode: speech.ModeSingle, Voice: *voice, Instruction: *instruction}
	if *speakers != "" {
		list, err := parseSpeakers(*speakers)
		if err != nil {
			return err
		}
		opts.Mode = speech.ModeMulti
		opts.Speakers = list
	}
	if *presetID != "" {
		p, ok := findPreset(*presetID)
		if !ok {
			return fmt.Errorf("unknown preset %q", *presetID)
		}
		opts = p.Options()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	synth, err := tts.New(cfg.TTS)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	orch := generation.NewOrchestrator(synth, cfg.TTS.SampleRate, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := orch.Generate(ctx, generation.Snapshot{Text: input, Options: opts})
	if err != nil {
		return fmt.Errorf("%s", errkind.Message(err))
	}
	if err := os.WriteFile(*out, res.Clip.WAV, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%.2fs, %s)\n", *out, res.Clip.Duration,
		speech.VoiceLabel(opts.Mode, opts.Voice, opts.Speakers))
	return nil
}

// parseSpeakers reads "A=Puck,B=Kore" into a speaker list.
func parseSpeakers(value string) ([]speech.Speaker, error) {
	var out []speech.Speaker
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, voice, ok := strings.Cut(part, "=")
		name, voice = strings.TrimSpace(name), strings.TrimSpace(voice)
		if !ok || name == "" || voice == "" {
			return nil, fmt.Errorf("invalid speaker %q, expected NAME=VOICE", part)
		}
		out = append(out, speech.Speaker{Name: name, Voice: voice})
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("dialogue mode needs exactly 2 speakers, got %d", len(out))
	}
	return out, nil
}

func findPreset(id string) (preset.Preset, bool) {
	for _, p := range preset.Defaults() {
		if p.ID == id {
			return p, true
		}
	}
	return preset.Preset{}, false
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("presets validate", flag.ExitOnError)
	path := fs.String("file", "presets.yaml", "Path to preset bundle")
	_ = fs.Parse(args)

	b, err := preset.LoadBundle(*path)
	if err != nil {
		return err
	}
	if err := preset.ValidateBundle(b); err != nil {
		return err
	}
	fmt.Printf("bundle valid (%d presets)\n", len(b.Presets))
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	path := fs.String("file", audio.DefaultFilename, "WAV file to inspect")
	_ = fs.Parse(args)

	data, err := os.ReadFile(*path)
	if err != nil {
		return err
	}
	samples, h, err := audio.DecodeWAV(data)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d Hz, %d ch, %d bit, %d samples, %.3fs, peak %.3f\n",
		*path, h.SampleRate, h.Channels, h.BitDepth, h.SampleCount,
		audio.Duration(h.SampleCount, h.SampleRate), peak(samples))
	return nil
}

func peak(samples []float32) float32 {
	var top float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > top {
			top = s
		}
	}
	return top
}

func runVoices() {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VOICE\tGENDER")
	for _, v := range speech.Voices() {
		fmt.Fprintf(w, "%s\t%s\n", v.Label, v.Gender)
	}
	_ = w.Flush()
}
