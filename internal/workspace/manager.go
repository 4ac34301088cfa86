package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/voxgen/internal/errkind"
	"github.com/loqalabs/voxgen/internal/generation"
	"github.com/loqalabs/voxgen/internal/history"
	"github.com/loqalabs/voxgen/internal/preset"
	"github.com/loqalabs/voxgen/internal/speech"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrLastSession = errors.New("cannot close the last session")
	ErrBusy        = errors.New("session is already generating")
	ErrNoPresets   = errors.New("preset library not configured")
	ErrClosed      = errors.New("workspace is shut down")
)

const msgEmptyText = "Please enter some text."

// Generator produces audio for a session snapshot.
type Generator interface {
	Generate(ctx context.Context, snap generation.Snapshot) (generation.Result, error)
}

// Manager owns the ordered session list. State transitions are serialised by mu;
// each generation runs on its own goroutine and its result is applied by session id.
type Manager struct {
	mu       sync.Mutex
	sessions []*Session
	active   string
	seq      uint64
	pending  []Event
	closed   bool

	gen     Generator
	history *history.Store
	presets *preset.Library
	log     *slog.Logger
	timeout time.Duration

	emitMu      sync.Mutex
	listenersMu sync.RWMutex
	listeners   []Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Manager)

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithPresets(lib *preset.Library) Option {
	return func(m *Manager) { m.presets = lib }
}

// WithTimeout bounds each generation. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithContext sets the parent context of every generation.
func WithContext(ctx context.Context) Option {
	return func(m *Manager) { m.ctx = ctx }
}

// New creates a manager holding a single default session.
func New(gen Generator, hist *history.Store, opts ...Option) *Manager {
	m := &Manager{
		gen:     gen,
		history: hist,
		log:     slog.Default(),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(slog.String("component", "workspace"))
	m.ctx, m.cancel = context.WithCancel(m.ctx)

	first := newSession(uuid.NewString())
	m.sessions = []*Session{first}
	m.active = first.ID
	return m
}

// Subscribe registers l for all future events.
func (m *Manager) Subscribe(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// enqueue stamps events with the next sequence numbers. Callers hold mu, so the
// queue order matches the order in which the state changes were applied.
func (m *Manager) enqueue(events ...Event) {
	now := time.Now().UTC()
	for _, evt := range events {
		m.seq++
		evt.Seq = m.seq
		if evt.Time.IsZero() {
			evt.Time = now
		}
		m.pending = append(m.pending, evt)
	}
}

// flush delivers queued events in sequence order. Only one goroutine delivers at
// a time; when flush returns, every event enqueued before the call has been delivered.
func (m *Manager) flush() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		m.listenersMu.RLock()
		listeners := append([]Listener(nil), m.listeners...)
		m.listenersMu.RUnlock()
		for _, evt := range batch {
			for _, l := range listeners {
				l.OnEvent(evt)
			}
		}
	}
}

func sessionEvent(t EventType, s *Session) Event {
	c := s.clone()
	return Event{Type: t, SessionID: s.ID, Session: &c}
}

func (m *Manager) find(id string) (int, *Session) {
	for i, s := range m.sessions {
		if s.ID == id {
			return i, s
		}
	}
	return -1, nil
}

// Create appends a session with the default configuration and makes it active.
func (m *Manager) Create() Session {
	m.mu.Lock()
	s := newSession(uuid.NewString())
	m.sessions = append(m.sessions, s)
	m.active = s.ID
	out := s.clone()
	events := []Event{sessionEvent(EventSessionCreated, s), sessionEvent(EventSessionActivated, s)}
	m.enqueue(events...)
	m.mu.Unlock()

	m.flush()
	return out
}

// Close removes a session. The last remaining session cannot be closed. When the
// active session is closed the last session in the list becomes active.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	idx, s := m.find(id)
	if s == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if len(m.sessions) == 1 {
		m.mu.Unlock()
		return ErrLastSession
	}
	m.sessions = append(m.sessions[:idx:idx], m.sessions[idx+1:]...)
	events := []Event{{Type: EventSessionClosed, SessionID: id}}
	if m.active == id {
		last := m.sessions[len(m.sessions)-1]
		m.active = last.ID
		events = append(events, sessionEvent(EventSessionActivated, last))
	}
	m.enqueue(events...)
	m.mu.Unlock()

	m.flush()
	return nil
}

func (m *Manager) Activate(id string) error {
	m.mu.Lock()
	_, s := m.find(id)
	if s == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if m.active == id {
		m.mu.Unlock()
		return nil
	}
	m.active = id
	evt := sessionEvent(EventSessionActivated, s)
	m.enqueue(evt)
	m.mu.Unlock()

	m.flush()
	return nil
}

// Active returns the session currently selected.
func (m *Manager) Active() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s := m.find(m.active)
	return s.clone()
}

func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s := m.find(id)
	if s == nil {
		return Session{}, ErrNotFound
	}
	return s.clone(), nil
}

// List returns copies of all sessions in tab order.
func (m *Manager) List() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	return out
}

// Update merges p into the session and clears its error.
func (m *Manager) Update(id string, p Patch) (Session, error) {
	if p.Mode != nil {
		if _, ok := speech.ParseMode(string(*p.Mode)); !ok {
			return Session{}, errkind.New(errkind.Configuration, fmt.Sprintf("Unknown generation mode %q.", *p.Mode))
		}
	}

	m.mu.Lock()
	_, s := m.find(id)
	if s == nil {
		m.mu.Unlock()
		return Session{}, ErrNotFound
	}
	if p.Text != nil {
		s.Text = *p.Text
	}
	switch {
	case p.Title != nil:
		s.Title = *p.Title
	case p.Text != nil:
		s.Title = deriveTitle(s.Title, *p.Text)
	}
	if p.Mode != nil {
		mode, _ := speech.ParseMode(string(*p.Mode))
		s.Mode = mode
	}
	if p.Voice != nil {
		s.Voice = *p.Voice
	}
	if p.Speakers != nil {
		s.Speakers = speech.CloneSpeakers(p.Speakers)
	}
	if p.Instruction != nil {
		s.Instruction = *p.Instruction
	}
	s.Error = ""
	out := s.clone()
	evt := sessionEvent(EventSessionUpdated, s)
	m.enqueue(evt)
	m.mu.Unlock()

	m.flush()
	return out, nil
}

// ApplyPreset copies a preset's configuration into the session. Single presets
// whose voice is no longer in the catalog fall back to the first catalog voice.
func (m *Manager) ApplyPreset(id string, p preset.Preset) (Session, error) {
	m.mu.Lock()
	_, s := m.find(id)
	if s == nil {
		m.mu.Unlock()
		return Session{}, ErrNotFound
	}
	mode := p.Mode
	if mode == "" {
		mode = speech.ModeSingle
	}
	s.Mode = mode
	s.Instruction = p.Instruction
	if mode == speech.ModeMulti && len(p.Speakers) > 0 {
		s.Speakers = speech.CloneSpeakers(p.Speakers)
	} else {
		s.Voice = speech.ResolveVoice(p.Voice)
	}
	s.Error = ""
	out := s.clone()
	evt := sessionEvent(EventSessionUpdated, s)
	m.enqueue(evt)
	m.mu.Unlock()

	m.flush()
	return out, nil
}

// ApplyPresetByID looks the preset up in the library before applying it.
func (m *Manager) ApplyPresetByID(id, presetID string) (Session, error) {
	if m.presets == nil {
		return Session{}, ErrNoPresets
	}
	p, ok := m.presets.Get(presetID)
	if !ok {
		return Session{}, preset.ErrNotFound
	}
	return m.ApplyPreset(id, p)
}

// SavePreset stores the session's current configuration under name.
func (m *Manager) SavePreset(ctx context.Context, id, name string) (preset.Preset, error) {
	if m.presets == nil {
		return preset.Preset{}, ErrNoPresets
	}
	s, err := m.Get(id)
	if err != nil {
		return preset.Preset{}, err
	}
	return m.presets.Add(ctx, name, s.Options())
}

// Trigger starts a generation for the session from a snapshot of its current
// state. The returned channel is closed once the outcome has been applied. Empty
// text sets the session error without starting any work.
func (m *Manager) Trigger(id string) (<-chan struct{}, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	_, s := m.find(id)
	if s == nil {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if s.Generating {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	if strings.TrimSpace(s.Text) == "" {
		s.Error = msgEmptyText
		evt := sessionEvent(EventSessionUpdated, s)
		m.enqueue(evt)
		m.mu.Unlock()
		m.flush()
		return nil, errkind.New(errkind.Validation, msgEmptyText)
	}

	snap := generation.Snapshot{SessionID: s.ID, Text: s.Text, Options: s.Options()}
	s.Generating = true
	s.Error = ""
	evt := sessionEvent(EventGenerationStarted, s)
	m.wg.Add(1)
	m.enqueue(evt)
	m.mu.Unlock()

	m.flush()

	done := make(chan struct{})
	go func() {
		defer m.wg.Done()
		defer close(done)
		m.run(snap)
	}()
	return done, nil
}

func (m *Manager) run(snap generation.Snapshot) {
	ctx := m.ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	res, err := m.gen.Generate(ctx, snap)

	m.mu.Lock()
	_, s := m.find(snap.SessionID)
	if s == nil {
		m.mu.Unlock()
		m.log.Info("discarding result for closed session", slog.String("session_id", snap.SessionID))
		return
	}
	s.Generating = false

	var events []Event
	if err != nil {
		s.Error = errkind.Message(err)
		evt := sessionEvent(EventGenerationFailed, s)
		evt.Error = s.Error
		events = append(events, evt)
	} else {
		entry := m.history.Add(history.Entry{
			SessionID:  snap.SessionID,
			Preview:    history.Preview(snap.Text),
			VoiceLabel: speech.VoiceLabel(snap.Options.Mode, snap.Options.Voice, snap.Options.Speakers),
			Duration:   res.Clip.Duration,
		}, res.Clip.WAV)
		events = append(events,
			sessionEvent(EventGenerationSucceeded, s),
			Event{Type: EventHistoryAdded, SessionID: snap.SessionID, Entry: &entry},
		)
	}
	m.enqueue(events...)
	m.mu.Unlock()

	m.flush()
}

// Wait blocks until every in-flight generation has been applied.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels in-flight generations and waits for them to finish. Later
// triggers fail with ErrClosed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}
