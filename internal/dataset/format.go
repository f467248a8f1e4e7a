// Package dataset turns verified candidates into training files and keeps
// chat-shaped files well formed.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agenix/internal/types"
)

const (
	// ChatPreamble opens every assistant turn.
	ChatPreamble = "I will execute the following plan:"

	// PlanMarker precedes the embedded plan JSON in the assistant turn.
	PlanMarker = "EXECUTING_PLAN: "
)

var (
	// ErrUnverified is returned for records without verified=true.
	ErrUnverified = errors.New("record is not verified")

	// ErrNoPlanMarker is returned by ExtractPlan when the content carries no plan.
	ErrNoPlanMarker = errors.New("content has no " + strings.TrimSpace(PlanMarker) + " marker")
)

// ToChatExample renders a verified record as a user/assistant exchange. The
// assistant narrates and then embeds the plan as JSON after PlanMarker.
func ToChatExample(rec types.VerifiedRecord) (types.ChatExample, error) {
	if !rec.Verified {
		return types.ChatExample{}, ErrUnverified
	}
	plan, err := MarshalPlan(rec.Plan)
	if err != nil {
		return types.ChatExample{}, err
	}
	return types.ChatExample{
		Messages: []types.ChatMessage{
			{Role: types.RoleUser, Content: rec.Intent},
			{Role: types.RoleAssistant, Content: ChatPreamble + "\n\n" + PlanMarker + plan},
		},
	}, nil
}

// ToInstructionExample pairs the intent with the plan as structured output.
func ToInstructionExample(rec types.VerifiedRecord) (types.InstructionExample, error) {
	if !rec.Verified {
		return types.InstructionExample{}, ErrUnverified
	}
	plan := rec.Plan
	if plan == nil {
		plan = []types.Step{}
	}
	return types.InstructionExample{Instruction: rec.Intent, Output: plan}, nil
}

// MarshalPlan serializes a plan the way it appears inside chat content:
// ", " and ": " separators, no HTML escaping.
func MarshalPlan(plan []types.Step) (string, error) {
	if plan == nil {
		plan = []types.Step{}
	}
	compact, err := marshalNoEscape(plan)
	if err != nil {
		return "", fmt.Errorf("failed to encode plan: %w", err)
	}
	return string(spaceSeparators(compact)), nil
}

// ExtractPlan recovers the plan embedded in an assistant turn.
func ExtractPlan(content string) ([]types.Step, error) {
	idx := strings.Index(content, PlanMarker)
	if idx < 0 {
		return nil, ErrNoPlanMarker
	}

	dec := json.NewDecoder(strings.NewReader(content[idx+len(PlanMarker):]))
	var plan []types.Step
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("failed to decode embedded plan: %w", err)
	}
	return plan, nil
}
