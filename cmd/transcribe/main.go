package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/phraselabs/phrased/internal/config"
	"github.com/phraselabs/phrased/internal/model"
	"github.com/phraselabs/phrased/internal/transcribe"
	"github.com/phraselabs/phrased/internal/wavio"
)

type wavList []string

func (l *wavList) String() string {
	return strings.Join(*l, ",")
}

func (l *wavList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func main() {
	var (
		wavs      wavList
		modelID   string
		modelsDir string
		trainDir  string
		toolsDir  string
		catalog   string
		mode      string
		chunkSize int
		debug     bool
	)

	flag.Var(&wavs, "wav", "Path to WAV file (repeatable)")
	flag.StringVar(&modelID, "model", "", "Id of speech model (e.g., en_US-rhasspy)")
	flag.StringVar(&modelsDir, "models-dir", "./models", "Directory with speech models")
	flag.StringVar(&trainDir, "train-dir", "./train", "Directory with trained model files")
	flag.StringVar(&toolsDir, "tools-dir", "./tools", "Directory with decoder toolchains")
	flag.StringVar(&catalog, "catalog", "", "Optional model catalog YAML")
	flag.StringVar(&mode, "mode", "exec", "Transcriber mode (mock|exec|whisper)")
	flag.IntVar(&chunkSize, "chunk-size", 1024, "Audio chunk size in bytes")
	flag.BoolVar(&debug, "debug", false, "Log DEBUG messages")
	flag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if modelID == "" || len(wavs) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	registry, err := model.Load(catalog)
	if err != nil {
		logger.Error("failed to load model registry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	desc, err := registry.Lookup(modelID)
	if err != nil {
		logger.Error("unknown model", slog.String("error", err.Error()))
		os.Exit(1)
	}

	speech := config.SpeechConfig{
		ModelsDir: modelsDir,
		TrainDir:  trainDir,
		ToolsDir:  toolsDir,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exit := 0
	for _, path := range wavs {
		text, err := transcribeFile(ctx, path, desc, speech, mode, chunkSize, logger)
		if err != nil {
			logger.Error("transcription failed",
				slog.String("wav", path),
				slog.String("error", err.Error()))
			exit = 1
			continue
		}
		fmt.Printf("%s: %s\n", path, text)
	}
	os.Exit(exit)
}

func transcribeFile(ctx context.Context, path string, desc model.Descriptor, speech config.SpeechConfig, mode string, chunkSize int, logger *slog.Logger) (string, error) {
	reader, err := wavio.Open(path, chunkSize)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	cfg := config.TranscriberConfig{
		Mode:       mode,
		SampleRate: reader.SampleRate(),
		Channels:   reader.Channels(),
		ChunkSize:  chunkSize,
		TimeoutMS:  45000,
	}
	dispatcher, err := transcribe.NewFromConfig(cfg, logger)
	if err != nil {
		return "", err
	}

	return dispatcher.Transcribe(ctx, desc, speech, reader)
}
