package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/voxgen/internal/bus"
	"github.com/loqalabs/voxgen/internal/config"
	"github.com/loqalabs/voxgen/internal/generation"
	"github.com/loqalabs/voxgen/internal/history"
	"github.com/loqalabs/voxgen/internal/natsserver"
	"github.com/loqalabs/voxgen/internal/preset"
	"github.com/loqalabs/voxgen/internal/relay"
	"github.com/loqalabs/voxgen/internal/store"
	"github.com/loqalabs/voxgen/internal/tts"
	"github.com/loqalabs/voxgen/internal/workspace"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	store       *store.Store
	natsServer  *natsserver.EmbeddedServer
	bus         *bus.Client
	relay       *relay.Service
	workspace   *workspace.Manager
	history     *history.Store
	presets     *preset.Library
	hub         *Hub
	addr        atomic.Value
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Addr is the address the HTTP server listens on, once started.
func (r *Runtime) Addr() string {
	if v, ok := r.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Ready reports whether the runtime has finished starting.
func (r *Runtime) Ready() bool {
	return r.ready.Load()
}

// Start wires every component, serves HTTP and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startComponents(ctx); err != nil {
		r.shutdown()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	NewAPI(r.workspace, r.history, r.presets, r.store, r.hub, r.logger).Register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		r.shutdown()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	r.addr.Store(ln.Addr().String())
	r.httpServer = &http.Server{
		Handler:           newOriginPolicy(r.cfg.HTTP.AllowedOrigins).Guard(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slogError(err))
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runPrune(ctx)
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", ln.Addr().String()))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	r.wg.Wait()
	r.shutdown()
	return nil
}

func (r *Runtime) startComponents(ctx context.Context) error {
	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	r.store = st
	if st.Ephemeral() {
		r.logger.Warn("store is ephemeral; saved presets and the generation timeline are lost on exit")
	}

	lib, err := preset.NewLibrary(ctx, preset.NewBlobStore(st, r.cfg.Presets.StorageKey), r.logger)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}
	if path := r.cfg.Presets.SeedFile; path != "" {
		if err := seedPresets(ctx, lib, path, r.logger); err != nil {
			return err
		}
	}
	r.presets = lib

	synth, err := tts.New(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("init tts: %w", err)
	}
	if r.cfg.TTS.Mode == "gemini" && r.cfg.TTS.APIKey == "" {
		r.logger.Warn("no API key configured; generations will fail until one is set")
	}
	orch := generation.NewOrchestrator(synth, r.cfg.TTS.SampleRate, r.logger)

	r.history = history.NewStore(history.WithMaxEntries(r.cfg.Workspace.HistoryMaxEntries))
	r.workspace = workspace.New(orch, r.history,
		workspace.WithLogger(r.logger),
		workspace.WithPresets(lib),
		workspace.WithContext(ctx),
		workspace.WithTimeout(time.Duration(r.cfg.TTS.TimeoutMS)*time.Millisecond),
	)
	r.hub = NewHub(r.logger, r.cfg.HTTP.AllowedOrigins)
	r.workspace.Subscribe(r.hub)
	r.workspace.Subscribe(store.NewRecorder(st, r.logger))

	if r.cfg.Bus.Enabled {
		if err := r.startBus(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	ns, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded nats: %w", err)
	}
	r.natsServer = ns
	if ns != nil {
		busCfg.Servers = []string{ns.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return err
	}
	r.bus = client

	r.relay = relay.NewService(ctx, busCfg, client, r.workspace, r.logger)
	if err := r.relay.Start(); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	r.workspace.Subscribe(r.relay)
	return nil
}

func seedPresets(ctx context.Context, lib *preset.Library, path string, log *slog.Logger) error {
	bundle, err := preset.LoadBundle(path)
	if err != nil {
		return fmt.Errorf("load preset seed file: %w", err)
	}
	if err := preset.ValidateBundle(bundle); err != nil {
		return fmt.Errorf("invalid preset seed file %s: %w", path, err)
	}
	added, err := lib.Seed(ctx, bundle.Resolve())
	if err != nil {
		return fmt.Errorf("seed presets: %w", err)
	}
	log.Info("seeded presets", slog.String("file", path), slog.Int("added", added))
	return nil
}

func (r *Runtime) runPrune(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Prune(ctx); err != nil {
				r.logger.Warn("scheduled prune failed", slogError(err))
			}
		}
	}
}

// shutdown releases components in reverse start order. It tolerates partial starts.
func (r *Runtime) shutdown() {
	if r.relay != nil {
		r.relay.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.natsServer.Shutdown()
	if r.workspace != nil {
		r.workspace.Shutdown()
	}
	if r.hub != nil {
		r.hub.Close()
	}
	if r.history != nil {
		r.history.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("store close error", slogError(err))
		}
	}
	if r.tracerClose != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.tracerClose(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.relay == nil || r.relay.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
