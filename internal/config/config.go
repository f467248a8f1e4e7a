package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"agenix/internal/logging"
)

// Config holds all pipeline configuration.
type Config struct {
	Name string `yaml:"name"`

	// LLM gateway used by generation
	LLM LLMConfig `yaml:"llm"`

	// Stage settings
	Generation GenerationConfig `yaml:"generation"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Verify     VerifyConfig     `yaml:"verify"`
	Dataset    DatasetConfig    `yaml:"dataset"`

	// Training hand-off
	Queue       QueueConfig       `yaml:"queue"`
	Experiments ExperimentsConfig `yaml:"experiments"`

	// Bookkeeping
	Ledger  LedgerConfig   `yaml:"ledger"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Logging logging.Config `yaml:"logging"`
}

// LLMConfig configures the chat-completion backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai (any compatible endpoint), gemini
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// GenerationConfig configures the candidate generator.
type GenerationConfig struct {
	DomainsFile string `yaml:"domains_file"`
	Output      string `yaml:"output"`

	// TargetCount is the number of candidates wanted per domain.
	TargetCount int `yaml:"target_count"`

	// BatchSize is how many candidates each prompt asks for.
	BatchSize int `yaml:"batch_size"`

	// Delay is the minimum spacing between LLM calls.
	Delay string `yaml:"delay"`

	// MaxAttempts bounds calls per domain; 0 means retry until the target is met.
	MaxAttempts int `yaml:"max_attempts"`

	// Durable fsyncs every accepted candidate.
	Durable bool `yaml:"durable"`
}

// SandboxConfig configures plan execution.
type SandboxConfig struct {
	Mode           string `yaml:"mode"` // docker, namespace, local
	Image          string `yaml:"image"`
	Network        string `yaml:"network"`
	Timeout        string `yaml:"timeout"`
	ScratchDir     string `yaml:"scratch_dir"`
	Memory         string `yaml:"memory"`
	PidsLimit      int    `yaml:"pids_limit"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`
}

// VerifyConfig names the verification stage streams.
type VerifyConfig struct {
	Input          string `yaml:"input"`
	VerifiedOutput string `yaml:"verified_output"`
	FailuresOutput string `yaml:"failures_output"`

	// Durable fsyncs every verified and failed record.
	Durable bool `yaml:"durable"`
}

// DatasetConfig names the formatter streams.
type DatasetConfig struct {
	Input             string `yaml:"input"`
	ChatOutput        string `yaml:"chat_output"`
	InstructionOutput string `yaml:"instruction_output"`
}

// QueueConfig configures the job queue backend.
type QueueConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	Name        string `yaml:"name"`
	DialTimeout string `yaml:"dial_timeout"`
}

// ExperimentsConfig describes the fine-tuning hyper-parameter grid.
type ExperimentsConfig struct {
	BaseConfig    string    `yaml:"base_config"`
	Dir           string    `yaml:"dir"`
	LearningRates []float64 `yaml:"learning_rates"`
	LoRARanks     []int     `yaml:"lora_ranks"`
	Dropout       float64   `yaml:"dropout"`
}

// LedgerConfig configures the run history database.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "agenix-synth",

		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "http://localhost:8080/api",
			Model:       "gpt-oss:120b",
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     "300s",
		},

		Generation: GenerationConfig{
			DomainsFile: "research/domains.yaml",
			Output:      "research/raw_candidates.jsonl",
			TargetCount: 10,
			BatchSize:   5,
			Delay:       "1s",
			MaxAttempts: 0,
			Durable:     true,
		},

		Sandbox: SandboxConfig{
			Mode:           "docker",
			Image:          "ubuntu:latest",
			Network:        "bridge",
			Timeout:        "10s",
			MaxOutputBytes: 1024 * 1024,
		},

		Verify: VerifyConfig{
			Input:          "research/raw_candidates.jsonl",
			VerifiedOutput: "research/verified_dataset.jsonl",
			FailuresOutput: "research/verification_failures.jsonl",
			Durable:        true,
		},

		Dataset: DatasetConfig{
			Input:             "research/verified_dataset.jsonl",
			ChatOutput:        "research/train_chat.jsonl",
			InstructionOutput: "research/train_instruction.jsonl",
		},

		Queue: QueueConfig{
			Addr:        "localhost:6379",
			Name:        "queue:default",
			DialTimeout: "5s",
		},

		Experiments: ExperimentsConfig{
			BaseConfig:    "training/axolotl.yaml",
			Dir:           "training/experiments",
			LearningRates: []float64{1e-4, 2e-4},
			LoRARanks:     []int{32, 64},
			Dropout:       0.05,
		},

		Ledger: LedgerConfig{
			Enabled: true,
			Path:    "research/runs.db",
		},

		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if url := os.Getenv("LLM_API_BASE"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Queue.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Queue.Password = pw
	}

	if mode := os.Getenv("SYNTH_SANDBOX_MODE"); mode != "" {
		c.Sandbox.Mode = mode
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the per-request LLM timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 300*time.Second)
}

// GetGenerationDelay returns the spacing between LLM calls.
func (c *Config) GetGenerationDelay() time.Duration {
	d, err := time.ParseDuration(c.Generation.Delay)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// GetSandboxTimeout returns the per-plan wall-clock limit.
func (c *Config) GetSandboxTimeout() time.Duration {
	return parseDuration(c.Sandbox.Timeout, 10*time.Second)
}

// GetQueueDialTimeout returns the queue connection timeout.
func (c *Config) GetQueueDialTimeout() time.Duration {
	return parseDuration(c.Queue.DialTimeout, 5*time.Second)
}
