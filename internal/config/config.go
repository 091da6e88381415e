package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// SpeechConfig is the settings bundle handed to every transcription backend.
// It is fully built before the first transcription and never written afterward,
// so one value can be shared across concurrent calls. Backends use the fields
// they understand and ignore the rest.
type SpeechConfig struct {
	ModelsDir           string   `yaml:"models_dir"`
	TrainDir            string   `yaml:"train_dir"`
	ToolsDir            string   `yaml:"tools_dir"`
	CustomSentencesDirs []string `yaml:"custom_sentences_dirs"`

	// Remote-service fields below are consumed only by retraining/connect
	// logic and pass through the transcription path unused.
	HassToken        string `yaml:"hass_token"`
	HassWebsocketURI string `yaml:"hass_websocket_uri"`
	RetrainOnConnect bool   `yaml:"retrain_on_connect"`
}

type ModelsConfig struct {
	// Catalog points at an optional YAML file with additional model
	// descriptors merged over the builtin set.
	Catalog string `yaml:"catalog"`
}

type TranscriberConfig struct {
	Mode            string `yaml:"mode"` // mock, exec, whisper
	AcousticCommand string `yaml:"acoustic_command"`
	NeuralCommand   string `yaml:"neural_command"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkSize       int    `yaml:"chunk_size"`
	TimeoutMS       int    `yaml:"timeout_ms"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Speech      SpeechConfig      `yaml:"speech"`
	Models      ModelsConfig      `yaml:"models"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	History     HistoryConfig     `yaml:"history"`
}

func Default() Config {
	return Config{
		RuntimeName: "phrased",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Speech: SpeechConfig{
			ModelsDir: "./models",
			TrainDir:  "./train",
			ToolsDir:  "./tools",
		},
		Transcriber: TranscriberConfig{
			Mode:       "exec",
			SampleRate: 16000,
			Channels:   1,
			ChunkSize:  1024,
			TimeoutMS:  45000,
		},
		History: HistoryConfig{
			Path:          "./data/phrased-history.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "PHRASED_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PHRASED_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PHRASED_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PHRASED_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PHRASED_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PHRASED_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PHRASED_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "PHRASED_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PHRASED_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "PHRASED_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "PHRASED_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PHRASED_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PHRASED_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PHRASED_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PHRASED_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PHRASED_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Speech.ModelsDir, "PHRASED_SPEECH_MODELS_DIR")
	overrideString(&cfg.Speech.TrainDir, "PHRASED_SPEECH_TRAIN_DIR")
	overrideString(&cfg.Speech.ToolsDir, "PHRASED_SPEECH_TOOLS_DIR")
	overrideStringSlice(&cfg.Speech.CustomSentencesDirs, "PHRASED_SPEECH_CUSTOM_SENTENCES_DIRS")
	overrideString(&cfg.Speech.HassToken, "PHRASED_SPEECH_HASS_TOKEN")
	overrideString(&cfg.Speech.HassWebsocketURI, "PHRASED_SPEECH_HASS_WEBSOCKET_URI")
	overrideBool(&cfg.Speech.RetrainOnConnect, "PHRASED_SPEECH_RETRAIN_ON_CONNECT")
	overrideString(&cfg.Models.Catalog, "PHRASED_MODELS_CATALOG")
	overrideString(&cfg.Transcriber.Mode, "PHRASED_TRANSCRIBER_MODE")
	overrideString(&cfg.Transcriber.AcousticCommand, "PHRASED_TRANSCRIBER_ACOUSTIC_COMMAND")
	overrideString(&cfg.Transcriber.NeuralCommand, "PHRASED_TRANSCRIBER_NEURAL_COMMAND")
	overrideInt(&cfg.Transcriber.SampleRate, "PHRASED_TRANSCRIBER_SAMPLE_RATE")
	overrideInt(&cfg.Transcriber.Channels, "PHRASED_TRANSCRIBER_CHANNELS")
	overrideInt(&cfg.Transcriber.ChunkSize, "PHRASED_TRANSCRIBER_CHUNK_SIZE")
	overrideInt(&cfg.Transcriber.TimeoutMS, "PHRASED_TRANSCRIBER_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "PHRASED_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "PHRASED_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "PHRASED_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRecords, "PHRASED_HISTORY_MAX_RECORDS")
	overrideBool(&cfg.History.VacuumOnStart, "PHRASED_HISTORY_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Speech.ModelsDir == "" {
		return errors.New("speech.models_dir must not be empty")
	}
	if cfg.Speech.TrainDir == "" {
		return errors.New("speech.train_dir must not be empty")
	}
	if cfg.Speech.ToolsDir == "" {
		return errors.New("speech.tools_dir must not be empty")
	}
	switch cfg.Transcriber.Mode {
	case "mock", "exec", "whisper":
	default:
		return errors.New("transcriber.mode must be one of mock|exec|whisper")
	}
	if cfg.Transcriber.SampleRate <= 0 {
		return errors.New("transcriber.sample_rate must be positive")
	}
	if cfg.Transcriber.Channels <= 0 {
		return errors.New("transcriber.channels must be positive")
	}
	if cfg.Transcriber.ChunkSize <= 0 {
		return errors.New("transcriber.chunk_size must be positive")
	}
	if cfg.Transcriber.TimeoutMS <= 0 {
		return errors.New("transcriber.timeout_ms must be positive")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.History.MaxRecords < 0 {
		return errors.New("history.max_records must be >= 0")
	}
	return nil
}
