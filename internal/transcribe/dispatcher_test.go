package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/model"
)

// lengthBackend consumes the whole stream and returns the chunk lengths
// joined with commas, so ordering and completeness are observable.
type lengthBackend struct {
	calls atomic.Int64
}

func (b *lengthBackend) Transcribe(ctx context.Context, desc model.Descriptor, _ config.SpeechConfig, audio Stream) (string, error) {
	b.calls.Add(1)
	var lengths []string
	for {
		chunk, err := audio.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &BackendError{ModelID: desc.ID, Err: err}
		}
		lengths = append(lengths, strconv.Itoa(len(chunk)))
	}
	return strings.Join(lengths, ","), nil
}

// countingStream records how many chunks were pulled off the wrapped stream.
type countingStream struct {
	inner Stream
	reads atomic.Int64
}

func (s *countingStream) Next(ctx context.Context) ([]byte, error) {
	chunk, err := s.inner.Next(ctx)
	if err == nil {
		s.reads.Add(1)
	}
	return chunk, err
}

func acousticDescriptor() model.Descriptor {
	return model.Descriptor{ID: "en_US-rhasspy", Type: model.TypeAcousticPipeline, Language: "en_US"}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatchSelectsBackendByType(t *testing.T) {
	acoustic := &lengthBackend{}
	neural := &lengthBackend{}
	d := NewDispatcher(map[model.Type]Backend{
		model.TypeAcousticPipeline: acoustic,
		model.TypeNeuralEndToEnd:   neural,
	}, testLogger())

	stream := Chunks(make([]byte, 4), make([]byte, 4), make([]byte, 2))
	text, err := d.Transcribe(context.Background(), acousticDescriptor(), config.SpeechConfig{}, stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "4,4,2" {
		t.Fatalf("expected text passed through unmodified, got %q", text)
	}
	if acoustic.calls.Load() != 1 {
		t.Fatalf("expected exactly one acoustic call, got %d", acoustic.calls.Load())
	}
	if neural.calls.Load() != 0 {
		t.Fatalf("neural backend must never be invoked, got %d calls", neural.calls.Load())
	}
}

func TestDispatchUnsupportedType(t *testing.T) {
	d := NewDispatcher(map[model.Type]Backend{
		model.TypeAcousticPipeline: &lengthBackend{},
	}, testLogger())

	stream := &countingStream{inner: Chunks(make([]byte, 8))}
	desc := model.Descriptor{ID: "en_US-coqui", Type: model.TypeNeuralEndToEnd}
	_, err := d.Transcribe(context.Background(), desc, config.SpeechConfig{}, stream)
	if err == nil {
		t.Fatal("expected error for unsupported model type")
	}
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got %T", err)
	}
	if unsupported.ModelID != "en_US-coqui" || unsupported.ModelType != model.TypeNeuralEndToEnd {
		t.Fatalf("expected error to carry model id and type, got %+v", unsupported)
	}
	if stream.reads.Load() != 0 {
		t.Fatalf("stream must not be consumed on dispatch failure, got %d reads", stream.reads.Load())
	}
}

func TestDispatchChunkOrdering(t *testing.T) {
	cases := []struct {
		name   string
		chunks [][]byte
		want   string
	}{
		{"empty", nil, ""},
		{"single", [][]byte{make([]byte, 7)}, "7"},
		{"many", [][]byte{make([]byte, 1), make([]byte, 2), make([]byte, 3), make([]byte, 4)}, "1,2,3,4"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &lengthBackend{}
			d := NewDispatcher(map[model.Type]Backend{
				model.TypeAcousticPipeline: backend,
			}, testLogger())

			text, err := d.Transcribe(context.Background(), acousticDescriptor(), config.SpeechConfig{}, Chunks(tc.chunks...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if text != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, text)
			}
			if backend.calls.Load() != 1 {
				t.Fatalf("expected backend invoked even for %s stream", tc.name)
			}
		})
	}
}

func TestDispatchBackendErrorPropagatesUnchanged(t *testing.T) {
	wantErr := &BackendError{ModelID: "en_US-rhasspy", Err: errors.New("decoder crashed")}
	d := NewDispatcher(map[model.Type]Backend{
		model.TypeAcousticPipeline: backendFunc(func(context.Context, model.Descriptor, config.SpeechConfig, Stream) (string, error) {
			return "", wantErr
		}),
	}, testLogger())

	text, err := d.Transcribe(context.Background(), acousticDescriptor(), config.SpeechConfig{}, Chunks())
	if text != "" {
		t.Fatalf("expected no text on failure, got %q", text)
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected backend error passed through, got %v", err)
	}
}

type backendFunc func(context.Context, model.Descriptor, config.SpeechConfig, Stream) (string, error)

func (f backendFunc) Transcribe(ctx context.Context, desc model.Descriptor, speech config.SpeechConfig, audio Stream) (string, error) {
	return f(ctx, desc, speech, audio)
}

func TestDispatchConcurrentCalls(t *testing.T) {
	backend := &lengthBackend{}
	d := NewDispatcher(map[model.Type]Backend{
		model.TypeAcousticPipeline: backend,
	}, testLogger())
	desc := acousticDescriptor()
	speech := config.SpeechConfig{ModelsDir: "./models"}

	const calls = 16
	var wg sync.WaitGroup
	results := make([]string, calls)
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chunks := make([][]byte, i)
			for j := range chunks {
				chunks[j] = make([]byte, i)
			}
			results[i], errs[i] = d.Transcribe(context.Background(), desc, speech, Chunks(chunks...))
		}(i)
	}
	wg.Wait()

	for i := 0; i < calls; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d failed: %v", i, errs[i])
		}
		var want []string
		for j := 0; j < i; j++ {
			want = append(want, strconv.Itoa(i))
		}
		if results[i] != strings.Join(want, ",") {
			t.Fatalf("call %d saw interleaved chunks: %q", i, results[i])
		}
	}
	if backend.calls.Load() != calls {
		t.Fatalf("expected %d backend calls, got %d", calls, backend.calls.Load())
	}
}

func TestDispatchCancellationYieldsNoResult(t *testing.T) {
	backend := &lengthBackend{}
	d := NewDispatcher(map[model.Type]Backend{
		model.TypeAcousticPipeline: backend,
	}, testLogger())

	pipe := NewPipe(0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var text string
	var err error
	go func() {
		defer close(done)
		text, err = d.Transcribe(ctx, acousticDescriptor(), config.SpeechConfig{}, pipe)
	}()

	if sendErr := pipe.Send(ctx, make([]byte, 4)); sendErr != nil {
		t.Fatalf("send failed: %v", sendErr)
	}
	cancel()
	<-done

	if err == nil {
		t.Fatal("expected cancelled call to fail")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if text != "" {
		t.Fatalf("cancelled call must yield no result, got %q", text)
	}
}

func TestNewFromConfigMock(t *testing.T) {
	d, err := NewFromConfig(config.TranscriberConfig{Mode: "mock"}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, typ := range model.KnownTypes {
		desc := model.Descriptor{ID: fmt.Sprintf("m-%s", typ), Type: typ}
		if _, err := d.Transcribe(context.Background(), desc, config.SpeechConfig{}, Chunks()); err != nil {
			t.Fatalf("expected mock backend for %s: %v", typ, err)
		}
	}
}

func TestNewFromConfigRejectsUnknownMode(t *testing.T) {
	if _, err := NewFromConfig(config.TranscriberConfig{Mode: "quantum"}, testLogger()); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
