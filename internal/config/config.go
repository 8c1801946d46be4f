// Package config provides configuration loading and structs for the umekomi server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Encode  EncodeConfig  `yaml:"encode"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ModelConfig holds ONNX dual-encoder settings.
type ModelConfig struct {
	TextModelPath  string `yaml:"text_model_path"`
	ImageModelPath string `yaml:"image_model_path"`
	Dimensions     int    `yaml:"dimensions"`
	// LogitScale is the softmax temperature applied to cosine similarities
	// when computing clip_score. Set it to the model's learned logit scale
	// when known; the default of 1.0 uses raw cosines.
	LogitScale float64 `yaml:"logit_scale"`
	CacheSize  int     `yaml:"cache_size"`
}

// EncodeConfig holds preprocessing and batching settings.
type EncodeConfig struct {
	NumWorkerPreprocess int `yaml:"num_worker_preprocess"`
	MinibatchSize       int `yaml:"minibatch_size"`
	MaxTokens           int `yaml:"max_tokens"`
	ImageSize           int `yaml:"image_size"`
	// UseDefaultPreprocessing controls whether image tensors go through the
	// resize/normalize transform. When disabled the caller must supply
	// uniformly sized, already normalized tensors. Defaults to true when unset.
	UseDefaultPreprocessing *bool `yaml:"use_default_preprocessing"`
	OverwriteEmbeddings     bool  `yaml:"overwrite_embeddings"`
}

// UseDefaultPreprocessingOrDefault returns the flag, defaulting to true when unset.
func (e *EncodeConfig) UseDefaultPreprocessingOrDefault() bool {
	if e.UseDefaultPreprocessing != nil {
		return *e.UseDefaultPreprocessing
	}
	return true
}

// RuntimeConfig holds device and deployment sizing settings.
type RuntimeConfig struct {
	// Device is "cpu", "cuda", or empty for auto-detection (cuda when available).
	Device string `yaml:"device"`
	// Replicas is the replica count of a horizontally scaled deployment
	// sharing the machine; 0 means unknown and disables thread tuning.
	Replicas int `yaml:"replicas"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Model.TextModelPath = expandPath(cfg.Model.TextModelPath, configDir)
	cfg.Model.ImageModelPath = expandPath(cfg.Model.ImageModelPath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
