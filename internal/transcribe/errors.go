package transcribe

import (
	"fmt"

	"github.com/phraselabs/phrased/internal/model"
)

// UnsupportedTypeError reports a model whose type has no registered backend.
// This is a configuration/registry mismatch, never retried automatically.
type UnsupportedTypeError struct {
	ModelID   string
	ModelType model.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("no backend registered for model %q with type %q", e.ModelID, e.ModelType)
}

// BackendError wraps a failure raised inside a backend while consuming or
// decoding a stream. The dispatcher forwards it to the caller unchanged.
type BackendError struct {
	ModelID string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("transcription failed for model %q: %v", e.ModelID, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
