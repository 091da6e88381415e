package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-shellwords"

	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/model"
)

// neuralBackend decodes end-to-end models by piping raw PCM chunks straight
// into a decoder process as they arrive, so the stream is never buffered in
// memory. The process prints a JSON result when its stdin closes.
type neuralBackend struct {
	cmd []string
	cfg config.TranscriberConfig
}

func NewNeuralBackend(cfg config.TranscriberConfig) (Backend, error) {
	command := cfg.NeuralCommand
	if command == "" {
		command = "coqui-decode"
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse neural command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("neural command is empty")
	}
	return &neuralBackend{cmd: args, cfg: cfg}, nil
}

func (b *neuralBackend) Transcribe(ctx context.Context, desc model.Descriptor, speech config.SpeechConfig, audio Stream) (string, error) {
	base := b.cmd[0]
	if !filepath.IsAbs(base) {
		base = filepath.Join(speech.ToolsDir, base)
	}
	cmdArgs := append([]string{}, b.cmd[1:]...)
	cmdArgs = append(cmdArgs,
		"--model-dir", filepath.Join(speech.ModelsDir, desc.ModelDir),
		"--sample-rate", strconv.Itoa(b.cfg.SampleRate),
		"--channels", strconv.Itoa(b.cfg.Channels),
	)

	command := exec.CommandContext(ctx, base, cmdArgs...)
	stdin, err := command.StdinPipe()
	if err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: err}
	}
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Start(); err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: fmt.Errorf("start decoder: %w", err)}
	}

	streamErr := pipeChunks(ctx, stdin, audio)
	stdin.Close()

	waitErr := command.Wait()
	if streamErr != nil {
		return "", &BackendError{ModelID: desc.ID, Err: streamErr}
	}
	if waitErr != nil {
		return "", &BackendError{ModelID: desc.ID, Err: fmt.Errorf("decoder failed: %w: %s", waitErr, stderr.String())}
	}

	var resp decoderResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: fmt.Errorf("decode decoder response: %w", err)}
	}
	return resp.Text, nil
}

func pipeChunks(ctx context.Context, w io.Writer, audio Stream) error {
	for {
		chunk, err := audio.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("feed decoder: %w", err)
		}
	}
}
