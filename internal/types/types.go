// Package types holds the record shapes that flow between pipeline stages.
//
// Every stage reads and writes these as line-delimited JSON; nothing is shared
// in memory between stages.
package types

// Domain is a thematic category used to steer generation diversity.
// Domains are loaded once from the domains file and never mutated.
type Domain struct {
	Name        string   `yaml:"domain" json:"domain"`
	Description string   `yaml:"description" json:"description"`
	Examples    []string `yaml:"examples" json:"examples"`
}

// Candidate is an unverified intent/plan pair produced by generation.
type Candidate struct {
	Intent string `json:"intent"`
	Plan   []Step `json:"plan"`
	Domain string `json:"domain"`
}

// HasPlan reports whether the candidate carries at least one step.
func (c Candidate) HasPlan() bool {
	return len(c.Plan) > 0
}

// VerifiedRecord is a line of the verified stream: the raw candidate plus
// verified=true. The formatter also decodes its input into this shape, so a
// missing or false flag is observable.
type VerifiedRecord struct {
	Candidate
	Verified bool `json:"verified"`
}

// FailureRecord is a line of the failures stream: the raw candidate plus the
// sandbox diagnostic.
type FailureRecord struct {
	Candidate
	Error string `json:"error"`
}

// VerificationResult is the outcome of running one candidate in the sandbox.
type VerificationResult struct {
	Candidate  Candidate
	Verified   bool
	Diagnostic string

	// TimedOut and LaunchError refine a failed result for reporting only;
	// both are recorded as ordinary failures.
	TimedOut    bool
	LaunchError bool
}

// Record converts the result into the line written to its output stream.
// Exactly one of the returned values is non-nil.
func (r VerificationResult) Record() (*VerifiedRecord, *FailureRecord) {
	if r.Verified {
		return &VerifiedRecord{Candidate: r.Candidate, Verified: true}, nil
	}
	return nil, &FailureRecord{Candidate: r.Candidate, Error: r.Diagnostic}
}

// Chat roles accepted in training files.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one conversational turn. Both fields are always strings.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatExample is a training record in chat shape.
type ChatExample struct {
	Messages []ChatMessage `json:"messages"`
}

// InstructionExample is a training record in instruction shape. Output holds
// the plan as structured data, or a string for free-form answers.
type InstructionExample struct {
	Instruction string `json:"instruction"`
	Output      any    `json:"output"`
}
