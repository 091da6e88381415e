//go:build whisper

package transcribe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/model"
)

// whisperBackend decodes end-to-end models in process through the whisper.cpp
// bindings. Loaded models are cached per model directory.
type whisperBackend struct {
	cfg    config.TranscriberConfig
	mu     sync.Mutex
	models map[string]whisper.Model
}

func NewWhisperBackend(cfg config.TranscriberConfig) (Backend, error) {
	return &whisperBackend{cfg: cfg, models: make(map[string]whisper.Model)}, nil
}

func (b *whisperBackend) Transcribe(ctx context.Context, desc model.Descriptor, speech config.SpeechConfig, audio Stream) (string, error) {
	modelPath := filepath.Join(speech.ModelsDir, desc.ModelDir, "model.bin")
	m, err := b.load(modelPath)
	if err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: err}
	}

	samples, err := drainSamples(ctx, audio)
	if err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: err}
	}

	wctx, err := m.NewContext()
	if err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: fmt.Errorf("whisper context: %w", err)}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: fmt.Errorf("whisper process: %w", err)}
	}

	var text strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		text.WriteString(segment.Text)
	}
	return strings.TrimSpace(text.String()), nil
}

func (b *whisperBackend) load(path string) (whisper.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.models[path]; ok {
		return m, nil
	}
	m, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	b.models[path] = m
	return m, nil
}

// drainSamples consumes the stream in order, converting 16-bit PCM to the
// float32 samples whisper expects. The odd byte of a misaligned chunk carries
// into the next one.
func drainSamples(ctx context.Context, audio Stream) ([]float32, error) {
	var samples []float32
	var carry byte
	haveCarry := false
	for {
		chunk, err := audio.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if haveCarry {
			chunk = append([]byte{carry}, chunk...)
			haveCarry = false
		}
		if len(chunk)%2 != 0 {
			carry = chunk[len(chunk)-1]
			chunk = chunk[:len(chunk)-1]
			haveCarry = true
		}
		for i := 0; i+1 < len(chunk); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(chunk[i:]))
			samples = append(samples, float32(sample)/32768.0)
		}
	}
	if haveCarry {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	return samples, nil
}
