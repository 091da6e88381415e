package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/phraselabs/phrased/internal/bus"
	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/history"
	"github.com/phraselabs/phrased/internal/model"
	"github.com/phraselabs/phrased/internal/protocol"
	"github.com/phraselabs/phrased/internal/wavio"
)

const workerQueue = "phrased-workers"

// Service consumes transcription requests from the bus, runs them through
// the dispatcher, and publishes transcripts. Requests reference WAV files on
// shared storage; audio bytes never travel over the bus.
type Service struct {
	cfg        config.Config
	bus        *bus.Client
	registry   *model.Registry
	dispatcher *Dispatcher
	store      *history.Store
	log        *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	sub        *nats.Subscription
	wg         sync.WaitGroup
	ready      bool
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, registry *model.Registry, dispatcher *Dispatcher, store *history.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		registry:   registry,
		dispatcher: dispatcher,
		store:      store,
		log:        log.With(slog.String("component", "transcribe-service")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectTranscribeRequest, workerQueue, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe transcribe requests: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.TranscribeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode transcribe request", slog.String("error", err.Error()))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.Transcriber.TimeoutMS)*time.Millisecond)
		defer cancel()
		s.run(ctx, req)
	}()
}

func (s *Service) run(ctx context.Context, req protocol.TranscribeRequest) {
	start := time.Now()

	text, audioBytes, err := s.transcribeFile(ctx, req)
	result := protocol.Transcript{
		ID:         req.ID,
		ModelID:    req.ModelID,
		DurationMS: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		s.log.Warn("transcription request failed",
			slog.String("request_id", req.ID),
			slog.String("model_id", req.ModelID),
			slog.String("error", err.Error()))
		result.Error = err.Error()
	} else {
		result.Text = text
	}

	s.publishResult(result)

	if err == nil {
		rec := history.Record{
			ID:         req.ID,
			ModelID:    req.ModelID,
			Text:       text,
			AudioBytes: audioBytes,
			DurationMS: result.DurationMS,
		}
		if err := s.store.Append(ctx, rec); err != nil {
			s.log.Warn("failed to record transcript", slog.String("error", err.Error()))
		}
	}
}

func (s *Service) transcribeFile(ctx context.Context, req protocol.TranscribeRequest) (string, int64, error) {
	desc, err := s.registry.Lookup(req.ModelID)
	if err != nil {
		return "", 0, err
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.cfg.Transcriber.ChunkSize
	}
	reader, err := wavio.Open(req.WAVPath, chunkSize)
	if err != nil {
		return "", 0, err
	}
	defer reader.Close()

	text, err := s.dispatcher.Transcribe(ctx, desc, s.cfg.Speech, reader)
	if err != nil {
		return "", 0, err
	}
	return text, reader.BytesRead(), nil
}

func (s *Service) publishResult(result protocol.Transcript) {
	data, err := json.Marshal(result)
	if err != nil {
		s.log.Warn("failed to marshal transcript", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranscribeResult, data); err != nil {
		s.log.Warn("failed to publish transcript", slog.String("error", err.Error()))
	}
}
