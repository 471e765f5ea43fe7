// Package config loads the service configuration. Values are layered:
// defaults, then a config file, then EMOTIOND_* environment variables; the
// CLI applies its flags last.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"emotiond/internal/stream"
)

// Inference backends.
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are filled by Merge from Defaults.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ModelID     string `json:"model_id" yaml:"model_id" toml:"model_id"`
	CascadePath string `json:"cascade_path" yaml:"cascade_path" toml:"cascade_path"`
	Backend     string `json:"backend" yaml:"backend" toml:"backend"`
	RemoteURL   string `json:"remote_url" yaml:"remote_url" toml:"remote_url"`
	ONNXLibrary string `json:"onnx_library" yaml:"onnx_library" toml:"onnx_library"`
	ONNXThreads int    `json:"onnx_threads" yaml:"onnx_threads" toml:"onnx_threads"`

	MaxConnections int    `json:"max_connections" yaml:"max_connections" toml:"max_connections"`
	JWTSecret      string `json:"jwt_secret" yaml:"jwt_secret" toml:"jwt_secret"`
	JWTIssuer      string `json:"jwt_issuer" yaml:"jwt_issuer" toml:"jwt_issuer"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes    int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	ShutdownSeconds int      `json:"shutdown_seconds" yaml:"shutdown_seconds" toml:"shutdown_seconds"`

	// Detection seeds every session's stream config before the client's
	// initialize patch is applied.
	Detection stream.ConfigPatch `json:"detection" yaml:"detection" toml:"detection"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:            ":8080",
		ModelsDir:       "~/models/emotion",
		Backend:         BackendONNX,
		MaxConnections:  stream.DefaultMaxConnections,
		LogLevel:        "info",
		LogFormat:       "console",
		MaxBodyBytes:    4 << 20,
		ShutdownSeconds: 5,
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays the non-zero fields of over onto base.
func Merge(base, over Config) Config {
	out := base
	setStr(&out.Addr, over.Addr)
	setStr(&out.ModelsDir, over.ModelsDir)
	setStr(&out.ModelID, over.ModelID)
	setStr(&out.CascadePath, over.CascadePath)
	setStr(&out.Backend, over.Backend)
	setStr(&out.RemoteURL, over.RemoteURL)
	setStr(&out.ONNXLibrary, over.ONNXLibrary)
	setStr(&out.JWTSecret, over.JWTSecret)
	setStr(&out.JWTIssuer, over.JWTIssuer)
	setStr(&out.LogLevel, over.LogLevel)
	setStr(&out.LogFormat, over.LogFormat)
	if over.ONNXThreads > 0 {
		out.ONNXThreads = over.ONNXThreads
	}
	if over.MaxConnections > 0 {
		out.MaxConnections = over.MaxConnections
	}
	if over.MaxBodyBytes > 0 {
		out.MaxBodyBytes = over.MaxBodyBytes
	}
	if over.ShutdownSeconds > 0 {
		out.ShutdownSeconds = over.ShutdownSeconds
	}
	if len(over.CORSOrigins) > 0 {
		out.CORSOrigins = append([]string(nil), over.CORSOrigins...)
	}
	out.Detection = mergePatch(out.Detection, over.Detection)
	return out
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergePatch(base, over stream.ConfigPatch) stream.ConfigPatch {
	if over.DetectionInterval != nil {
		base.DetectionInterval = over.DetectionInterval
	}
	if over.MinFaceSize != nil {
		base.MinFaceSize = over.MinFaceSize
	}
	if over.ProcessingResolution != nil {
		base.ProcessingResolution = over.ProcessingResolution
	}
	if over.DetectionConfidence != nil {
		base.DetectionConfidence = over.DetectionConfidence
	}
	if over.MinNeighbors != nil {
		base.MinNeighbors = over.MinNeighbors
	}
	if over.ReturnBoundingBoxes != nil {
		base.ReturnBoundingBoxes = over.ReturnBoundingBoxes
	}
	if over.PrioritizeRealtime != nil {
		base.PrioritizeRealtime = over.PrioritizeRealtime
	}
	return base
}

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "EMOTIOND_"

// FromEnv reads EMOTIOND_* variables through lookup into a Config suitable
// for Merge. Malformed numbers are reported.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("ADDR", &cfg.Addr)
	str("MODELS_DIR", &cfg.ModelsDir)
	str("MODEL_ID", &cfg.ModelID)
	str("CASCADE_PATH", &cfg.CascadePath)
	str("BACKEND", &cfg.Backend)
	str("REMOTE_URL", &cfg.RemoteURL)
	str("ONNX_LIBRARY", &cfg.ONNXLibrary)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("JWT_ISSUER", &cfg.JWTIssuer)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	var err error
	num := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("%s%s: %w", EnvPrefix, key, perr)
			return
		}
		*dst = n
	}
	num("MAX_CONNECTIONS", &cfg.MaxConnections)
	num("ONNX_THREADS", &cfg.ONNXThreads)
	num("SHUTDOWN_SECONDS", &cfg.ShutdownSeconds)
	var body int
	num("MAX_BODY_BYTES", &body)
	cfg.MaxBodyBytes = int64(body)
	if err != nil {
		return Config{}, err
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		cfg.CORSOrigins = SplitCSV(v)
	}
	return cfg, nil
}

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks cross-field constraints after all layers are merged.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendONNX:
	case BackendRemote:
		if c.RemoteURL == "" {
			return fmt.Errorf("backend %q requires remote_url", BackendRemote)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendONNX, BackendRemote)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	if _, err := stream.DefaultConfig().Apply(c.Detection); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	return nil
}
