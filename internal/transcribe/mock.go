package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/model"
)

type mockBackend struct{}

// NewMockBackend returns a backend that consumes the stream and reports what
// it saw instead of decoding. Used by mock mode and tests.
func NewMockBackend() Backend {
	return &mockBackend{}
}

func (m *mockBackend) Transcribe(ctx context.Context, desc model.Descriptor, _ config.SpeechConfig, audio Stream) (string, error) {
	chunks := 0
	total := 0
	for {
		chunk, err := audio.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &BackendError{ModelID: desc.ID, Err: err}
		}
		chunks++
		total += len(chunk)
	}
	return fmt.Sprintf("[mock transcript model=%s chunks=%d bytes=%d]", desc.ID, chunks, total), nil
}
