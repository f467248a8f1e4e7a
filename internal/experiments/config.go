// Package experiments expands a hyper-parameter grid into fine-tuning configs
// and queues one training job per grid point.
package experiments

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Point is one grid coordinate.
type Point struct {
	LearningRate float64
	Rank         int
	Dropout      float64
}

// Grid is the cross product of learning rates and ranks, learning rate
// major, with a fixed dropout.
func Grid(learningRates []float64, ranks []int, dropout float64) []Point {
	points := make([]Point, 0, len(learningRates)*len(ranks))
	for _, lr := range learningRates {
		for _, r := range ranks {
			points = append(points, Point{LearningRate: lr, Rank: r, Dropout: dropout})
		}
	}
	return points
}

// ID names the experiment, e.g. exp_lr00001_r32 for 1e-4 and rank 32.
func (p Point) ID() string {
	id := fmt.Sprintf("exp_lr%s_r%d", formatFloat(p.LearningRate), p.Rank)
	return strings.ReplaceAll(id, ".", "")
}

// formatFloat renders the shortest round-trip form with positional notation
// for exponents in [-4, 16) and a trailing ".0" on integral values.
func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, "e") {
		if abs := math.Abs(f); abs >= 1e6 && abs < 1e16 {
			s = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// RenderConfig returns base with learning_rate, lora_r, lora_dropout and
// output_dir set for p. Comments and key order are kept; missing keys are
// appended.
func RenderConfig(base []byte, p Point, outputDir string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(base, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse base config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("base config must be a YAML mapping")
	}
	root := doc.Content[0]

	setScalar(root, "learning_rate", "!!float", formatFloat(p.LearningRate))
	setScalar(root, "lora_r", "!!int", strconv.Itoa(p.Rank))
	setScalar(root, "lora_dropout", "!!float", formatFloat(p.Dropout))
	setScalar(root, "output_dir", "!!str", outputDir)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setScalar(mapping *yaml.Node, key, tag, value string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != key {
			continue
		}
		v := mapping.Content[i+1]
		v.Kind = yaml.ScalarNode
		v.Tag = tag
		v.Value = value
		v.Style = 0
		v.Content = nil
		return
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
}
