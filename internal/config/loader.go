package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"classifyd/internal/common/fsutil"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified"; the serve command fills them from flag
// defaults.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// ModelPath names the artifact directly. When empty, ModelName is looked
	// up in ModelsDir.
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ModelName string `json:"model_name" yaml:"model_name" toml:"model_name"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size" toml:"pool_size"`
	// Backend is centroid or onnx; empty picks one from the model extension.
	Backend          string   `json:"backend" yaml:"backend" toml:"backend"`
	AcquireMode      string   `json:"acquire_mode" yaml:"acquire_mode" toml:"acquire_mode"`
	AcquireTimeoutMS int      `json:"acquire_timeout_ms" yaml:"acquire_timeout_ms" toml:"acquire_timeout_ms"`
	DrainTimeoutMS   int      `json:"drain_timeout_ms" yaml:"drain_timeout_ms" toml:"drain_timeout_ms"`
	TestImage        string   `json:"test_image" yaml:"test_image" toml:"test_image"`
	WarmupImage      string   `json:"warmup_image" yaml:"warmup_image" toml:"warmup_image"`
	LogLevel         string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat        string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	CORSOrigins      []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes     int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	RequestTimeoutS  int64    `json:"request_timeout_s" yaml:"request_timeout_s" toml:"request_timeout_s"`
	ORTLibrary       string   `json:"ort_library" yaml:"ort_library" toml:"ort_library"`
	// ProbeLedger is an optional SQLite path recording /classifyimage runs.
	ProbeLedger string `json:"probe_ledger" yaml:"probe_ledger" toml:"probe_ledger"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("pool_size must be >= 1, got %d", c.PoolSize))
	}
	switch strings.ToLower(c.AcquireMode) {
	case "", "blocking", "nonblocking":
	default:
		errs = append(errs, fmt.Errorf("acquire_mode must be blocking or nonblocking, got %q", c.AcquireMode))
	}
	switch strings.ToLower(c.Backend) {
	case "", "centroid", "onnx":
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	if c.AcquireTimeoutMS < 0 || c.DrainTimeoutMS < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.MaxBodyBytes < 0 || c.RequestTimeoutS < 0 {
		errs = append(errs, errors.New("max_body_bytes and request_timeout_s must not be negative"))
	}
	if c.ModelPath == "" && c.ModelName == "" {
		errs = append(errs, errors.New("model_path or model_name is required"))
	}
	return errors.Join(errs...)
}
