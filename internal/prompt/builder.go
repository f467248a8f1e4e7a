// Package prompt renders the generation prompt for a domain.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"agenix/internal/types"
)

// DefaultBatchSize is how many candidates one prompt asks for.
const DefaultBatchSize = 5

const generationTemplate = `You are an expert DevOps engineer and Bash scripter.
Generate {{.BatchSize}} diverse, complex, and realistic user intents and their corresponding Bash execution plans for the domain: "{{.Name}}".

Description: {{.Description}}
Examples:
{{.Examples}}

Output Format (JSON):
{
    "candidates": [
        {
            "intent": "User's high-level goal",
            "plan": [
                { "command": "bash command 1" },
                { "command": "bash command 2" }
            ]
        }
    ]
}

Ensure commands are safe to run in a sandbox (no rm -rf /).
`

var tmpl = template.Must(template.New("generation").Parse(generationTemplate))

// Builder renders generation prompts. It holds no per-domain state.
type Builder struct {
	BatchSize int
}

// NewBuilder returns a Builder asking for batchSize candidates per prompt.
func NewBuilder(batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Builder{BatchSize: batchSize}
}

type templateData struct {
	BatchSize   int
	Name        string
	Description string
	Examples    string
}

// Build renders the prompt for one domain.
func (b *Builder) Build(domain types.Domain) (string, error) {
	examples := domain.Examples
	if examples == nil {
		examples = []string{}
	}

	var rendered bytes.Buffer
	enc := json.NewEncoder(&rendered)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(examples); err != nil {
		return "", fmt.Errorf("failed to render examples: %w", err)
	}

	batch := b.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, templateData{
		BatchSize:   batch,
		Name:        domain.Name,
		Description: strings.TrimSpace(domain.Description),
		Examples:    strings.TrimRight(rendered.String(), "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt for %s: %w", domain.Name, err)
	}
	return buf.String(), nil
}
