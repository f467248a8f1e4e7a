package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"agenix/internal/types"
)

// LoadDomains reads the domains file: a YAML list of
// {domain, description, examples} entries.
func LoadDomains(path string) ([]types.Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domains file: %w", err)
	}

	var domains []types.Domain
	if err := yaml.Unmarshal(data, &domains); err != nil {
		return nil, fmt.Errorf("failed to parse domains file: %w", err)
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("domains file %s defines no domains", path)
	}

	seen := make(map[string]bool, len(domains))
	for i, d := range domains {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("domain #%d has no name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate domain %q", name)
		}
		seen[name] = true
		domains[i].Name = name
	}
	return domains, nil
}
