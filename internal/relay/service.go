// Package relay bridges the workspace to the message bus: generation requests come
// in on voxgen.generate.request and workspace events go out on voxgen.event.<type>.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/voxgen/internal/bus"
	"github.com/loqalabs/voxgen/internal/config"
	"github.com/loqalabs/voxgen/internal/errkind"
	"github.com/loqalabs/voxgen/internal/protocol"
	"github.com/loqalabs/voxgen/internal/workspace"
)

const eventRetention = 24 * time.Hour

// Triggerer starts generations by session id.
type Triggerer interface {
	Trigger(id string) (<-chan struct{}, error)
}

type Service struct {
	cfg    config.BusConfig
	bus    *bus.Client
	ws     Triggerer
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.BusConfig, busClient *bus.Client, ws Triggerer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "relay")),
	}
}

func (s *Service) Start() error {
	if s.cfg.EventStream != "" {
		subjects := []string{protocol.SubjectEventPrefix + ".>"}
		if err := s.bus.EnsureStream(s.cfg.EventStream, subjects, eventRetention); err != nil {
			return err
		}
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectGenerateRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub != nil {
		_ = sub.Drain()
	}
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil && s.bus.Healthy()
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode generate request", slogError(err))
		s.reply(msg, protocol.GenerateAck{Error: "invalid request"})
		return
	}

	ack := protocol.GenerateAck{SessionID: req.SessionID}
	if _, err := s.ws.Trigger(req.SessionID); err != nil {
		ack.Error = errkind.Message(err)
		s.logger.Info("generate request rejected",
			slog.String("session_id", req.SessionID), slogError(err))
	} else {
		ack.Accepted = true
	}
	s.reply(msg, ack)
}

func (s *Service) reply(msg *nats.Msg, ack protocol.GenerateAck) {
	if msg.Reply == "" {
		return
	}
	ack.Timestamp = time.Now().UTC()
	data, err := json.Marshal(ack)
	if err != nil {
		s.logger.Warn("failed to marshal ack", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send ack", slogError(err))
	}
}

// OnEvent publishes workspace events to the bus.
func (s *Service) OnEvent(evt workspace.Event) {
	if s.ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("failed to marshal event", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.EventSubject(string(evt.Type)), data); err != nil {
		s.logger.Warn("failed to publish event", slog.String("type", string(evt.Type)), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
