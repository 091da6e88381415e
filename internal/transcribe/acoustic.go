package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/model"
)

// acousticBackend decodes acoustic-pipeline models by staging the stream into
// a temp WAV file and shelling out to a decoder toolchain. The decoder binary
// is resolved under the tools directory unless given as an absolute path.
type acousticBackend struct {
	cmd []string
	cfg config.TranscriberConfig
}

type decoderResult struct {
	Text string `json:"text"`
}

func NewAcousticBackend(cfg config.TranscriberConfig) (Backend, error) {
	command := cfg.AcousticCommand
	if command == "" {
		command = "kaldi-decode"
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse acoustic command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("acoustic command is empty")
	}
	return &acousticBackend{cmd: args, cfg: cfg}, nil
}

func (b *acousticBackend) Transcribe(ctx context.Context, desc model.Descriptor, speech config.SpeechConfig, audio Stream) (string, error) {
	file, err := os.CreateTemp(os.TempDir(), "phrased_acoustic_*.wav")
	if err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: fmt.Errorf("temp file: %w", err)}
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := stageWAV(ctx, file, audio, b.cfg.SampleRate, b.cfg.Channels); err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: err}
	}

	base := b.cmd[0]
	if !filepath.IsAbs(base) {
		base = filepath.Join(speech.ToolsDir, base)
	}
	cmdArgs := append([]string{}, b.cmd[1:]...)
	cmdArgs = append(cmdArgs,
		"--audio", file.Name(),
		"--model-dir", filepath.Join(speech.ModelsDir, desc.ModelDir),
		"--train-dir", filepath.Join(speech.TrainDir, desc.ID),
	)
	if desc.Language != "" {
		cmdArgs = append(cmdArgs, "--language", desc.Language)
	}
	for _, dir := range speech.CustomSentencesDirs {
		cmdArgs = append(cmdArgs, "--sentences-dir", dir)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: fmt.Errorf("decoder failed: %w: %s", err, stderr.String())}
	}

	var resp decoderResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", &BackendError{ModelID: desc.ID, Err: fmt.Errorf("decode decoder response: %w", err)}
	}
	return resp.Text, nil
}

// stageWAV drains the stream chunk-by-chunk into a 16-bit PCM WAV file,
// preserving chunk order. A chunk may split a sample; the odd byte is carried
// into the next chunk.
func stageWAV(ctx context.Context, file *os.File, audio Stream, sampleRate, channels int) error {
	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	format := &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}

	var carry byte
	haveCarry := false
	for {
		chunk, err := audio.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
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
		if len(chunk) == 0 {
			continue
		}

		samples := make([]int, len(chunk)/2)
		for i := range samples {
			samples[i] = int(int16(binary.LittleEndian.Uint16(chunk[i*2:])))
		}
		if err := enc.Write(&goaudio.IntBuffer{Format: format, Data: samples}); err != nil {
			return fmt.Errorf("write wav: %w", err)
		}
	}
	if haveCarry {
		return fmt.Errorf("pcm payload not aligned")
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
