package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the speech service.
type Config struct {
	BindAddr         string        `yaml:"bind_addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`
	// ConnectionRetention keeps closed connection records around for inspection.
	ConnectionRetention time.Duration `yaml:"connection_retention"`
	// WSReadTimeout closes a socket that shows no traffic or pong for this long.
	WSReadTimeout time.Duration `yaml:"ws_read_timeout"`

	UploadDir   string `yaml:"upload_dir"`
	PublicDir   string `yaml:"public_dir"`
	ProfilesDir string `yaml:"profiles_dir"`
	TempDir     string `yaml:"temp_dir"`

	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	CleanupMaxAge   time.Duration `yaml:"cleanup_max_age"`

	FFmpegPath string `yaml:"ffmpeg_path"`

	ASRBackend        string        `yaml:"asr_backend"`
	ASRBatchFrames    int           `yaml:"asr_batch_frames"`
	ASRQueueDepth     int           `yaml:"asr_queue_depth"`
	ASRMaxConcurrent  int           `yaml:"asr_max_concurrent"`
	ASRTimeout        time.Duration `yaml:"asr_timeout"`
	WhisperCLI        string        `yaml:"whisper_cli"`
	WhisperModel      string        `yaml:"whisper_model"`
	WhisperLanguage   string        `yaml:"whisper_language"`
	WhisperTranslate  bool          `yaml:"whisper_translate"`
	WhisperWordStamps bool          `yaml:"whisper_word_timestamps"`
	WhisperVAD        bool          `yaml:"whisper_vad"`
	WhisperVADThresh  float64       `yaml:"whisper_vad_threshold"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`

	TTSCLI          string        `yaml:"tts_cli"`
	XTTSCLI         string        `yaml:"xtts_cli"`
	TTSDefaultModel string        `yaml:"tts_default_model"`
	TTSTimeout      time.Duration `yaml:"tts_timeout"`
	TTSChunkBytes   int           `yaml:"tts_chunk_bytes"`
	// TTSRemoteURL switches /api/tts to a remote synthesis server (REST first, streaming fallback).
	TTSRemoteURL string `yaml:"tts_remote_url"`

	ProfileIndexDir string `yaml:"profile_index_dir"`
	ProfileMaxBytes int64  `yaml:"profile_max_bytes"`

	OutputPublisher string `yaml:"output_publisher"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
	S3Region        string `yaml:"s3_region"`
	S3Endpoint      string `yaml:"s3_endpoint"`
	S3AccessKey     string `yaml:"s3_access_key"`
	S3SecretKey     string `yaml:"s3_secret_key"`
	S3PublicBaseURL string `yaml:"s3_public_base_url"`

	DatabaseURL      string `yaml:"database_url"`
	HistoryRedactPII bool   `yaml:"history_redact_pii"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		BindAddr:            ":5000",
		ShutdownTimeout:     15 * time.Second,
		MetricsNamespace:    "avaass",
		ConnectionRetention: 10 * time.Minute,
		WSReadTimeout:       120 * time.Second,
		UploadDir:           "shared/uploads",
		PublicDir:           "shared/public",
		ProfilesDir:         "shared/profiles",
		TempDir:             "shared/temp",
		CleanupInterval:     time.Hour,
		CleanupMaxAge:       24 * time.Hour,
		FFmpegPath:          "ffmpeg",
		ASRBackend:          "cli",
		ASRBatchFrames:      5,
		ASRQueueDepth:       4,
		ASRMaxConcurrent:    4,
		ASRTimeout:          60 * time.Second,
		WhisperCLI:          "whisper",
		WhisperModel:        "medium",
		WhisperLanguage:     "auto",
		WhisperWordStamps:   true,
		WhisperVAD:          true,
		WhisperVADThresh:    0.5,
		OpenAIModel:         "whisper-1",
		TTSCLI:              "tts",
		XTTSCLI:             "xtts",
		TTSDefaultModel:     "tts_models/en/ljspeech/tacotron2-DDC",
		TTSTimeout:          2 * time.Minute,
		TTSChunkBytes:       32768,
		ProfileMaxBytes:     10 << 20,
		OutputPublisher:     "local",
		S3Region:            "us-east-1",
		HistoryRedactPII:    true,
	}
}

// Load reads the optional YAML file named by APP_CONFIG_FILE, then environment
// variables, on top of Defaults.
func Load() (Config, error) {
	cfg := Defaults()
	if path := stringsTrimSpace("APP_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.UploadDir = envOrDefault("UPLOAD_DIR", cfg.UploadDir)
	cfg.PublicDir = envOrDefault("PUBLIC_DIR", cfg.PublicDir)
	cfg.ProfilesDir = envOrDefault("PROFILES_DIR", cfg.ProfilesDir)
	cfg.TempDir = envOrDefault("TEMP_DIR", cfg.TempDir)
	cfg.FFmpegPath = envOrDefault("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.ASRBackend = strings.ToLower(envOrDefault("ASR_BACKEND", cfg.ASRBackend))
	cfg.WhisperCLI = envOrDefault("WHISPER_CLI", cfg.WhisperCLI)
	cfg.WhisperModel = envOrDefault("WHISPER_MODEL", cfg.WhisperModel)
	cfg.WhisperLanguage = envOrDefault("WHISPER_LANGUAGE", cfg.WhisperLanguage)
	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = envOrDefault("OPENAI_ASR_MODEL", cfg.OpenAIModel)
	cfg.TTSCLI = envOrDefault("TTS_CLI", cfg.TTSCLI)
	cfg.XTTSCLI = envOrDefault("XTTS_CLI", cfg.XTTSCLI)
	cfg.TTSDefaultModel = envOrDefault("TTS_DEFAULT_MODEL", cfg.TTSDefaultModel)
	cfg.TTSRemoteURL = envOrDefault("TTS_REMOTE_URL", cfg.TTSRemoteURL)
	cfg.ProfileIndexDir = envOrDefault("PROFILE_INDEX_DIR", cfg.ProfileIndexDir)
	cfg.OutputPublisher = strings.ToLower(envOrDefault("OUTPUT_PUBLISHER", cfg.OutputPublisher))
	cfg.S3Bucket = envOrDefault("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = envOrDefault("S3_PREFIX", cfg.S3Prefix)
	cfg.S3Region = envOrDefault("S3_REGION", cfg.S3Region)
	cfg.S3Endpoint = envOrDefault("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = envOrDefault("S3_ACCESS_KEY_ID", cfg.S3AccessKey)
	cfg.S3SecretKey = envOrDefault("S3_SECRET_ACCESS_KEY", cfg.S3SecretKey)
	cfg.S3PublicBaseURL = envOrDefault("S3_PUBLIC_BASE_URL", cfg.S3PublicBaseURL)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ConnectionRetention, err = durationFromEnv("APP_CONNECTION_RETENTION", cfg.ConnectionRetention); err != nil {
		return Config{}, err
	}
	if cfg.WSReadTimeout, err = durationFromEnv("WS_READ_TIMEOUT", cfg.WSReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CleanupInterval, err = durationFromEnv("CLEANUP_INTERVAL", cfg.CleanupInterval); err != nil {
		return Config{}, err
	}
	if cfg.CleanupMaxAge, err = durationFromEnv("CLEANUP_MAX_AGE", cfg.CleanupMaxAge); err != nil {
		return Config{}, err
	}
	if cfg.ASRTimeout, err = durationFromEnv("ASR_TIMEOUT", cfg.ASRTimeout); err != nil {
		return Config{}, err
	}
	if cfg.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.TTSTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.WhisperTranslate, err = boolFromEnv("WHISPER_TRANSLATE", cfg.WhisperTranslate); err != nil {
		return Config{}, err
	}
	if cfg.WhisperWordStamps, err = boolFromEnv("WHISPER_WORD_TIMESTAMPS", cfg.WhisperWordStamps); err != nil {
		return Config{}, err
	}
	if cfg.WhisperVAD, err = boolFromEnv("WHISPER_VAD", cfg.WhisperVAD); err != nil {
		return Config{}, err
	}
	if cfg.HistoryRedactPII, err = boolFromEnv("HISTORY_REDACT_PII", cfg.HistoryRedactPII); err != nil {
		return Config{}, err
	}
	if cfg.WhisperVADThresh, err = floatFromEnv("WHISPER_VAD_THRESHOLD", cfg.WhisperVADThresh); err != nil {
		return Config{}, err
	}
	if cfg.ASRBatchFrames, err = intFromEnv("ASR_BATCH_FRAMES", cfg.ASRBatchFrames); err != nil {
		return Config{}, err
	}
	if cfg.ASRQueueDepth, err = intFromEnv("ASR_QUEUE_DEPTH", cfg.ASRQueueDepth); err != nil {
		return Config{}, err
	}
	if cfg.ASRMaxConcurrent, err = intFromEnv("ASR_MAX_CONCURRENT", cfg.ASRMaxConcurrent); err != nil {
		return Config{}, err
	}
	if cfg.TTSChunkBytes, err = intFromEnv("TTS_CHUNK_BYTES", cfg.TTSChunkBytes); err != nil {
		return Config{}, err
	}
	profileMax, err := intFromEnv("PROFILE_MAX_BYTES", int(cfg.ProfileMaxBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.ProfileMaxBytes = int64(profileMax)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.WSReadTimeout <= 0 {
		return fmt.Errorf("WS_READ_TIMEOUT must be > 0")
	}
	if c.ASRBatchFrames < 1 {
		return fmt.Errorf("ASR_BATCH_FRAMES must be >= 1")
	}
	if c.ASRQueueDepth < 1 {
		return fmt.Errorf("ASR_QUEUE_DEPTH must be >= 1")
	}
	if c.ASRMaxConcurrent < 1 {
		return fmt.Errorf("ASR_MAX_CONCURRENT must be >= 1")
	}
	if c.ASRTimeout <= 0 {
		return fmt.Errorf("ASR_TIMEOUT must be positive")
	}
	if c.TTSTimeout <= 0 {
		return fmt.Errorf("TTS_TIMEOUT must be positive")
	}
	if c.TTSChunkBytes <= 0 {
		return fmt.Errorf("TTS_CHUNK_BYTES must be positive")
	}
	if c.WhisperVADThresh < 0 || c.WhisperVADThresh > 1 {
		return fmt.Errorf("WHISPER_VAD_THRESHOLD must be in [0,1]")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}
	if c.CleanupMaxAge <= 0 {
		return fmt.Errorf("CLEANUP_MAX_AGE must be positive")
	}
	if c.ProfileMaxBytes <= 0 {
		return fmt.Errorf("PROFILE_MAX_BYTES must be positive")
	}
	switch c.ASRBackend {
	case "cli":
	case "openai":
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("ASR_BACKEND=openai requires OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("invalid ASR_BACKEND: %q (expected cli|openai)", c.ASRBackend)
	}
	switch c.OutputPublisher {
	case "local":
	case "s3":
		if strings.TrimSpace(c.S3Bucket) == "" {
			return fmt.Errorf("OUTPUT_PUBLISHER=s3 requires S3_BUCKET")
		}
	default:
		return fmt.Errorf("invalid OUTPUT_PUBLISHER: %q (expected local|s3)", c.OutputPublisher)
	}
	return nil
}

// Dirs lists the working directories that must exist at startup.
func (c Config) Dirs() []string {
	return []string{c.UploadDir, c.PublicDir, c.ProfilesDir, c.TempDir}
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("APP_CONFIG_FILE read error: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("APP_CONFIG_FILE parse error: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
