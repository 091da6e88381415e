package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/model"
)

// Backend turns one audio stream into text for one model family. A backend
// must consume the stream forward-only and chunk-by-chunk, never assume it is
// seekable or already buffered, and must surface failures as errors rather
// than empty results.
type Backend interface {
	Transcribe(ctx context.Context, desc model.Descriptor, speech config.SpeechConfig, audio Stream) (string, error)
}

// Dispatcher routes a transcription call to the backend registered for the
// model's type. It holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	backends map[model.Type]Backend
	log      *slog.Logger
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

func NewDispatcher(backends map[model.Type]Backend, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		backends: backends,
		log:      log.With(slog.String("component", "dispatcher")),
	}

	meter := otel.Meter("github.com/phraselabs/phrased/transcribe")
	var err error
	d.calls, err = meter.Int64Counter("phrased.transcribe.calls",
		metric.WithDescription("Transcription calls by model type and outcome"))
	if err != nil {
		d.log.Warn("failed to initialize call counter", slog.String("error", err.Error()))
	}
	d.duration, err = meter.Float64Histogram("phrased.transcribe.duration_seconds",
		metric.WithDescription("Transcription call duration"))
	if err != nil {
		d.log.Warn("failed to initialize duration histogram", slog.String("error", err.Error()))
	}

	return d
}

// NewFromConfig builds a dispatcher with one backend per known model type,
// chosen by the transcriber mode.
func NewFromConfig(cfg config.TranscriberConfig, log *slog.Logger) (*Dispatcher, error) {
	backends := make(map[model.Type]Backend, len(model.KnownTypes))

	switch cfg.Mode {
	case "mock":
		backends[model.TypeAcousticPipeline] = NewMockBackend()
		backends[model.TypeNeuralEndToEnd] = NewMockBackend()
	case "exec":
		acoustic, err := NewAcousticBackend(cfg)
		if err != nil {
			return nil, err
		}
		neural, err := NewNeuralBackend(cfg)
		if err != nil {
			return nil, err
		}
		backends[model.TypeAcousticPipeline] = acoustic
		backends[model.TypeNeuralEndToEnd] = neural
	case "whisper":
		acoustic, err := NewAcousticBackend(cfg)
		if err != nil {
			return nil, err
		}
		whisper, err := NewWhisperBackend(cfg)
		if err != nil {
			return nil, err
		}
		backends[model.TypeAcousticPipeline] = acoustic
		backends[model.TypeNeuralEndToEnd] = whisper
	default:
		return nil, fmt.Errorf("unknown transcriber mode %q", cfg.Mode)
	}

	return NewDispatcher(backends, log), nil
}

// Transcribe selects the backend for desc.Type and delegates the whole call.
// At most one backend is invoked; there is no fallback between types, no
// retry, and the returned text is passed through unmodified. A type with no
// registered backend fails before a single chunk is read.
func (d *Dispatcher) Transcribe(ctx context.Context, desc model.Descriptor, speech config.SpeechConfig, audio Stream) (string, error) {
	backend, ok := d.backends[desc.Type]
	if !ok {
		d.record(ctx, desc.Type, "unsupported", 0)
		return "", &UnsupportedTypeError{ModelID: desc.ID, ModelType: desc.Type}
	}

	start := time.Now()
	text, err := backend.Transcribe(ctx, desc, speech, audio)
	elapsed := time.Since(start)
	if err != nil {
		d.record(ctx, desc.Type, "error", elapsed)
		return "", err
	}

	d.record(ctx, desc.Type, "ok", elapsed)
	d.log.Debug("transcription complete",
		slog.String("model_id", desc.ID),
		slog.String("model_type", string(desc.Type)),
		slog.Duration("elapsed", elapsed))
	return text, nil
}

func (d *Dispatcher) record(ctx context.Context, t model.Type, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("model_type", string(t)),
		attribute.String("outcome", outcome),
	)
	if d.calls != nil {
		d.calls.Add(ctx, 1, attrs)
	}
	if d.duration != nil && elapsed > 0 {
		d.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
