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
	// AllowedOrigins lists extra browser origins (scheme://host[:port]) trusted
	// besides the daemon's own host.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	TTS         TTSConfig       `yaml:"tts"`
	Workspace   WorkspaceConfig `yaml:"workspace"`
	Presets     PresetsConfig   `yaml:"presets"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	EventStream    string   `yaml:"event_stream"` // JetStream stream retaining voxgen.event.>, empty disables
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type TTSConfig struct {
	Mode       string         `yaml:"mode"` // gemini, exec, mock
	Endpoint   string         `yaml:"endpoint"`
	Model      string         `yaml:"model"`
	APIKey     string         `yaml:"api_key"`
	Command    string         `yaml:"command"`
	SampleRate int            `yaml:"sample_rate"`
	TimeoutMS  int            `yaml:"timeout_ms"`
	Options    map[string]any `yaml:"options"`
}

type WorkspaceConfig struct {
	HistoryMaxEntries int `yaml:"history_max_entries"`
}

type PresetsConfig struct {
	StorageKey string `yaml:"storage_key"`
	SeedFile   string `yaml:"seed_file"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxgen",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:          "./data/voxgen.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
		},
		TTS: TTSConfig{
			Mode:       "gemini",
			Endpoint:   "https://generativelanguage.googleapis.com",
			Model:      "gemini-2.5-flash-preview-tts",
			SampleRate: 24000,
			TimeoutMS:  90000,
		},
		Workspace: WorkspaceConfig{
			HistoryMaxEntries: 0,
		},
		Presets: PresetsConfig{
			StorageKey: "voxgen_presets",
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
	overrideString(&cfg.RuntimeName, "VOXGEN_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXGEN_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXGEN_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXGEN_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.AllowedOrigins, "VOXGEN_HTTP_ALLOWED_ORIGINS")
	overrideString(&cfg.Telemetry.LogLevel, "VOXGEN_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXGEN_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXGEN_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VOXGEN_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXGEN_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXGEN_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOXGEN_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOXGEN_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXGEN_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXGEN_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXGEN_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXGEN_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXGEN_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.EventStream, "VOXGEN_BUS_EVENT_STREAM")
	overrideString(&cfg.Store.Path, "VOXGEN_STORE_PATH")
	overrideString(&cfg.Store.RetentionMode, "VOXGEN_STORE_RETENTION_MODE")
	overrideInt(&cfg.Store.RetentionDays, "VOXGEN_STORE_RETENTION_DAYS")
	overrideBool(&cfg.Store.VacuumOnStart, "VOXGEN_STORE_VACUUM_ON_START")
	overrideString(&cfg.TTS.Mode, "VOXGEN_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "VOXGEN_TTS_ENDPOINT")
	overrideString(&cfg.TTS.Model, "VOXGEN_TTS_MODEL")
	overrideString(&cfg.TTS.Command, "VOXGEN_TTS_COMMAND")
	overrideInt(&cfg.TTS.SampleRate, "VOXGEN_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.TimeoutMS, "VOXGEN_TTS_TIMEOUT_MS")
	// The credential is passed through unchanged; the first non-empty source wins.
	overrideString(&cfg.TTS.APIKey, "API_KEY")
	overrideString(&cfg.TTS.APIKey, "GEMINI_API_KEY")
	overrideString(&cfg.TTS.APIKey, "VOXGEN_TTS_API_KEY")
	overrideInt(&cfg.Workspace.HistoryMaxEntries, "VOXGEN_WORKSPACE_HISTORY_MAX_ENTRIES")
	overrideString(&cfg.Presets.StorageKey, "VOXGEN_PRESETS_STORAGE_KEY")
	overrideString(&cfg.Presets.SeedFile, "VOXGEN_PRESETS_SEED_FILE")
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
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Store.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Store.RetentionMode == "persistent" && cfg.Store.Path == "" {
		return errors.New("store.path must not be empty when retention_mode=persistent")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "gemini", "exec", "mock":
	default:
		return errors.New("tts.mode must be one of gemini|exec|mock")
	}
	if cfg.TTS.Mode == "gemini" && cfg.TTS.Endpoint == "" {
		return errors.New("tts.endpoint must be set when mode=gemini")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.TimeoutMS < 0 {
		return errors.New("tts.timeout_ms must be >= 0")
	}
	if cfg.Workspace.HistoryMaxEntries < 0 {
		return errors.New("workspace.history_max_entries must be >= 0")
	}
	if cfg.Presets.StorageKey == "" {
		return errors.New("presets.storage_key must not be empty")
	}
	return nil
}
