package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenix/internal/types"
)

func TestBuild(t *testing.T) {
	b := NewBuilder(3)
	out, err := b.Build(types.Domain{
		Name:        "file management",
		Description: "  Creating and inspecting files ",
		Examples:    []string{"list files", "find logs > 1GB"},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Generate 3 diverse")
	assert.Contains(t, out, `for the domain: "file management"`)
	assert.Contains(t, out, "Description: Creating and inspecting files\n")
	assert.Contains(t, out, "[\n  \"list files\",\n  \"find logs > 1GB\"\n]")
	assert.Contains(t, out, `"candidates": [`)
	assert.Contains(t, out, "no rm -rf /")
}

func TestBuild_NoExamples(t *testing.T) {
	out, err := NewBuilder(0).Build(types.Domain{Name: "networking"})
	require.NoError(t, err)
	assert.Contains(t, out, "Generate 5 diverse")
	assert.Contains(t, out, "Examples:\n[]\n")
}

func TestBuild_Deterministic(t *testing.T) {
	d := types.Domain{Name: "x", Description: "y", Examples: []string{"z"}}
	b := NewBuilder(5)
	first, err := b.Build(d)
	require.NoError(t, err)
	second, err := b.Build(d)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
