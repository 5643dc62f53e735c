package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the analysis settings applied to every processed experiment.
type Config struct {
	// Clean hides implausible and one-legged cycles after reconstruction.
	Clean bool `yaml:"clean"`
	// Reference is the visible-sequence index of the retention reference.
	Reference int `yaml:"reference"`
	// FitRetention enables the linear retention fit on each experiment.
	FitRetention bool `yaml:"fit_retention"`
	// Quiet suppresses per-request logging.
	Quiet bool `yaml:"quiet"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Port            string `yaml:"port"`
	WorkerCount     int    `yaml:"worker_count"`
	WebhookURL      string `yaml:"webhook_url"`
	TimingFile      string `yaml:"timing_file"`
	EnableProfiling bool   `yaml:"enable_profiling"`
	ProfilingPort   string `yaml:"profiling_port"`
}

// File is the on-disk YAML layout combining both sections.
type File struct {
	Analysis Config       `yaml:"analysis"`
	Server   ServerConfig `yaml:"server"`
}

// DefaultConfig returns an analysis configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Clean:        false,
		Reference:    0,
		FitRetention: true,
		Quiet:        false,
	}
}

// DefaultServerConfig returns server configuration with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            "8080",
		WorkerCount:     5,
		WebhookURL:      "http://webplot:3001/webhook",
		TimingFile:      "batch_timing_results.csv",
		EnableProfiling: false,
		ProfilingPort:   "6060",
	}
}

// Load reads a YAML configuration file. Missing fields keep their defaults.
func Load(path string) (*Config, *ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	file := File{
		Analysis: *DefaultConfig(),
		Server:   *DefaultServerConfig(),
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &file.Analysis, &file.Server, nil
}
