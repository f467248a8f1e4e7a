package config

import (
	"fmt"
	"os"
)

// ValidProviders lists the supported LLM providers.
var ValidProviders = []string{"openai", "gemini"}

// ValidSandboxModes lists the supported sandbox backends.
var ValidSandboxModes = []string{"docker", "namespace", "local"}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func requireFile(label, path string) error {
	if path == "" {
		return fmt.Errorf("%s path not configured", label)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s %s not found", label, path)
		}
		return fmt.Errorf("cannot access %s %s: %w", label, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s %s is a directory", label, path)
	}
	return nil
}

// ValidateGenerate checks everything generation needs before any call is made.
func (c *Config) ValidateGenerate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set LLM_API_KEY or llm.api_key)")
	}
	if c.LLM.Provider == "openai" && c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM base URL not configured (set LLM_API_BASE or llm.base_url)")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM model not configured")
	}
	if c.Generation.TargetCount <= 0 {
		return fmt.Errorf("generation.target_count must be positive, got %d", c.Generation.TargetCount)
	}
	if c.Generation.BatchSize <= 0 {
		return fmt.Errorf("generation.batch_size must be positive, got %d", c.Generation.BatchSize)
	}
	if c.Generation.MaxAttempts < 0 {
		return fmt.Errorf("generation.max_attempts must not be negative")
	}
	if c.Generation.Output == "" {
		return fmt.Errorf("generation.output not configured")
	}
	return requireFile("domains file", c.Generation.DomainsFile)
}

// ValidateVerify checks the verification stage configuration.
func (c *Config) ValidateVerify() error {
	if !contains(ValidSandboxModes, c.Sandbox.Mode) {
		return fmt.Errorf("invalid sandbox mode: %s (valid: %v)", c.Sandbox.Mode, ValidSandboxModes)
	}
	if c.Sandbox.Mode == "docker" && c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image not configured")
	}
	if c.Verify.VerifiedOutput == "" || c.Verify.FailuresOutput == "" {
		return fmt.Errorf("verify outputs not configured")
	}
	if c.Verify.VerifiedOutput == c.Verify.FailuresOutput {
		return fmt.Errorf("verified and failures outputs must differ")
	}
	return requireFile("verify input", c.Verify.Input)
}

// ValidateFormat checks the dataset formatter configuration.
func (c *Config) ValidateFormat() error {
	if c.Dataset.ChatOutput == "" || c.Dataset.InstructionOutput == "" {
		return fmt.Errorf("dataset outputs not configured")
	}
	if c.Dataset.ChatOutput == c.Dataset.InstructionOutput {
		return fmt.Errorf("chat and instruction outputs must differ")
	}
	return requireFile("dataset input", c.Dataset.Input)
}

// ValidateQueue checks the queue configuration.
func (c *Config) ValidateQueue() error {
	if c.Queue.Addr == "" {
		return fmt.Errorf("queue.addr not configured (set REDIS_ADDR or queue.addr)")
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name not configured")
	}
	return nil
}

// ValidateExperiments checks the experiment grid configuration.
func (c *Config) ValidateExperiments() error {
	if len(c.Experiments.LearningRates) == 0 || len(c.Experiments.LoRARanks) == 0 {
		return fmt.Errorf("experiments grid is empty")
	}
	if c.Experiments.Dir == "" {
		return fmt.Errorf("experiments.dir not configured")
	}
	return requireFile("base training config", c.Experiments.BaseConfig)
}
