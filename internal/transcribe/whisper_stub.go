//go:build !whisper

package transcribe

import (
	"fmt"

	"github.com/phraselabs/phrased/internal/config"
)

// NewWhisperBackend fails when the binary was built without the whisper tag.
func NewWhisperBackend(config.TranscriberConfig) (Backend, error) {
	return nil, fmt.Errorf("whisper support disabled (build with -tags whisper to enable)")
}
