package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/voxgen/internal/audio"
	"github.com/loqalabs/voxgen/internal/errkind"
	"github.com/loqalabs/voxgen/internal/speech"
	"github.com/loqalabs/voxgen/internal/tts"
)

const (
	msgEmptyText = "Please enter some text."
	msgNoAudio   = "No audio data returned from the TTS API. The config might be invalid."
)

// Snapshot is the session state captured when a generation is triggered.
type Snapshot struct {
	SessionID string
	Text      string
	Options   speech.Options
}

// Result is a successful generation.
type Result struct {
	Clip audio.Clip
}

// Orchestrator turns a snapshot into a playable clip with exactly one synthesizer call.
type Orchestrator struct {
	synth      tts.Synthesizer
	sampleRate int
	log        *slog.Logger
	tracer     trace.Tracer

	generations metric.Int64Counter
	latency     metric.Float64Histogram
	audioLength metric.Float64Histogram
}

func NewOrchestrator(synth tts.Synthesizer, sampleRate int, log *slog.Logger) *Orchestrator {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	o := &Orchestrator{
		synth:      synth,
		sampleRate: sampleRate,
		log:        log.With(slog.String("component", "generation")),
		tracer:     otel.Tracer("github.com/loqalabs/voxgen/generation"),
	}
	if err := o.initMetrics(otel.Meter("github.com/loqalabs/voxgen/generation")); err != nil {
		o.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return o
}

func (o *Orchestrator) initMetrics(meter metric.Meter) error {
	var err error
	o.generations, err = meter.Int64Counter("voxgen.generations",
		metric.WithDescription("Completed generation requests"))
	if err != nil {
		return err
	}
	o.latency, err = meter.Float64Histogram("voxgen.generation.duration",
		metric.WithDescription("Wall time of a generation request"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	o.audioLength, err = meter.Float64Histogram("voxgen.audio.seconds",
		metric.WithDescription("Duration of generated audio"),
		metric.WithUnit("s"))
	return err
}

// Generate runs one request. Every returned error carries an errkind.Kind.
func (o *Orchestrator) Generate(ctx context.Context, snap Snapshot) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "generation.generate", trace.WithAttributes(
		attribute.String("session.id", snap.SessionID),
		attribute.String("speech.mode", string(snap.Options.Mode)),
	))
	defer span.End()
	started := time.Now()

	result, err := o.generate(ctx, snap)
	outcome := "succeeded"
	kind := ""
	if err != nil {
		outcome = "failed"
		kind = string(errkind.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, errkind.Message(err))
		o.log.Warn("generation failed",
			slog.String("session_id", snap.SessionID),
			slog.String("kind", kind),
			slog.String("error", err.Error()))
	} else {
		span.SetAttributes(attribute.Float64("audio.duration", result.Clip.Duration))
		if o.audioLength != nil {
			o.audioLength.Record(ctx, result.Clip.Duration)
		}
		o.log.Debug("generation succeeded",
			slog.String("session_id", snap.SessionID),
			slog.Float64("duration", result.Clip.Duration))
	}

	if o.generations != nil {
		o.generations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("kind", kind),
		))
	}
	if o.latency != nil {
		o.latency.Record(ctx, time.Since(started).Seconds())
	}
	return result, err
}

func (o *Orchestrator) generate(ctx context.Context, snap Snapshot) (Result, error) {
	if strings.TrimSpace(snap.Text) == "" {
		return Result{}, errkind.New(errkind.Validation, msgEmptyText)
	}
	req, err := speech.Build(snap.Text, snap.Options)
	if err != nil {
		return Result{}, err
	}

	resp, err := o.synth.Synthesize(ctx, req)
	if err != nil {
		return Result{}, errkind.Wrap(err, errkind.Transport)
	}
	if resp.AudioBase64 == "" {
		return Result{}, errkind.New(errkind.Response, msgNoAudio)
	}

	clip, err := audio.Transcode(resp.AudioBase64, o.sampleRate)
	if err != nil {
		return Result{}, errkind.Wrap(err, errkind.Decode)
	}
	return Result{Clip: clip}, nil
}
