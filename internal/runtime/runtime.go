package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phraselabs/phrased/internal/bus"
	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/history"
	"github.com/phraselabs/phrased/internal/model"
	"github.com/phraselabs/phrased/internal/natsserver"
	"github.com/phraselabs/phrased/internal/presence"
	"github.com/phraselabs/phrased/internal/transcribe"
)

// Runtime wires the transcription worker together: model registry, dispatch
// backends, bus consumer, transcript history, and the HTTP surface.
type Runtime struct {
	cfg        config.Config
	log        *slog.Logger
	httpServer *http.Server
	registry   *model.Registry
	store      *history.Store
	busClient  *bus.Client
	service    *transcribe.Service
	tracker    *presence.Tracker
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, log *slog.Logger) *Runtime {
	return &Runtime{
		cfg: cfg,
		log: log,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.log)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	registry, err := model.Load(r.cfg.Models.Catalog)
	if err != nil {
		return fmt.Errorf("failed to load model registry: %w", err)
	}
	r.registry = registry
	r.log.Info("model registry loaded", slog.Int("models", registry.Len()))

	store, err := history.Open(ctx, r.cfg.History, r.log)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	r.store = store

	embedded, err := natsserver.Start(r.cfg.Bus, r.log)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}

	busClient, err := bus.Connect(r.cfg.Bus, r.log)
	if err != nil {
		embedded.Shutdown()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	dispatcher, err := transcribe.NewFromConfig(r.cfg.Transcriber, r.log)
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}

	r.service = transcribe.NewService(ctx, r.cfg, busClient, registry, dispatcher, store, r.log)
	if err := r.service.Start(); err != nil {
		return fmt.Errorf("failed to start transcribe service: %w", err)
	}

	workerID := fmt.Sprintf("%s-%s", r.cfg.RuntimeName, uuid.NewString()[:8])
	modelIDs := make([]string, 0, registry.Len())
	for _, d := range registry.List() {
		modelIDs = append(modelIDs, d.ID)
	}
	tracker, err := presence.NewTracker(ctx, workerID, modelIDs, busClient, r.log)
	if err != nil {
		return fmt.Errorf("failed to start presence tracker: %w", err)
	}
	r.tracker = tracker

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/v1/models", r.handleModels)
	mux.HandleFunc("/v1/transcripts", r.handleTranscripts)
	mux.HandleFunc("/v1/workers", r.handleWorkers)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.log.Info("runtime started", slog.String("addr", addr), slog.String("worker_id", workerID))

	<-ctx.Done()
	r.log.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.log.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.tracker.Close()
	r.service.Close()
	r.busClient.Close()
	embedded.Shutdown()
	if err := r.store.Close(); err != nil {
		r.log.Error("history close error", slog.String("error", err.Error()))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		r.log.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.service.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, r.log, r.registry.List())
}

func (r *Runtime) handleTranscripts(w http.ResponseWriter, req *http.Request) {
	limit := 100
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := r.store.List(req.Context(), req.URL.Query().Get("model"), limit)
	if err != nil {
		r.log.Error("failed to list transcripts", slog.String("error", err.Error()))
		http.Error(w, "failed to list transcripts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r.log, records)
}

func (r *Runtime) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, r.log, r.tracker.Workers())
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
