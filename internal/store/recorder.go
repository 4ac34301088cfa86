package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loqalabs/voxgen/internal/workspace"
)

// Recorder writes generation outcomes to the session timeline.
type Recorder struct {
	store *Store
	log   *slog.Logger
}

func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	return &Recorder{store: store, log: log.With(slog.String("component", "recorder"))}
}

func (r *Recorder) OnEvent(evt workspace.Event) {
	switch evt.Type {
	case workspace.EventGenerationStarted, workspace.EventGenerationSucceeded,
		workspace.EventGenerationFailed, workspace.EventHistoryAdded:
	default:
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		r.log.Warn("failed to encode event", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.AppendEvent(ctx, Event{
		SessionID: evt.SessionID,
		Type:      string(evt.Type),
		Payload:   payload,
		CreatedAt: evt.Time,
	}); err != nil {
		r.log.Warn("failed to record event", slog.String("type", string(evt.Type)), slog.String("error", err.Error()))
	}
}
