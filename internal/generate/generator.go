// Package generate drives the LLM to produce intent/plan candidates per domain.
//
// Each domain runs as a small state machine: call, classify the outcome,
// persist accepted candidates, wait out the inter-call delay, repeat until the
// target is met. Every attempt is counted and logged so a stuck run is visible.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"agenix/internal/llm"
	"agenix/internal/logging"
	"agenix/internal/metrics"
	"agenix/internal/prompt"
	"agenix/internal/types"
)

// ErrMaxAttempts is recorded for a domain that used its attempt budget
// without reaching the target.
var ErrMaxAttempts = errors.New("max attempts reached before target count")

// Outcome classifies one LLM call.
type Outcome string

const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeEmpty          Outcome = "empty"
	OutcomeParseError     Outcome = "parse_error"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeHTTPError      Outcome = "http_error"
	OutcomeSchemaError    Outcome = "schema_error"
	OutcomeError          Outcome = "error"
)

// Config tunes the generation loop.
type Config struct {
	TargetCount    int
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
	Delay          time.Duration // minimum spacing between LLM calls
	MaxAttempts    int           // per domain; 0 means unbounded
}

// CandidateWriter persists one candidate. jsonl.Writer satisfies it.
type CandidateWriter interface {
	Write(v any) error
}

// Generator produces candidates. It is not safe for concurrent Run calls.
type Generator struct {
	client  llm.Completer
	builder *prompt.Builder
	cfg     Config
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// New creates a Generator. m may be nil.
func New(client llm.Completer, builder *prompt.Builder, cfg Config, m *metrics.Metrics) *Generator {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Generator{
		client:  client,
		builder: builder,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
	}
}

// DomainReport summarizes one domain.
type DomainReport struct {
	Domain   string          `json:"domain"`
	Target   int             `json:"target"`
	Existing int             `json:"existing"`
	Accepted int             `json:"accepted"`
	Attempts int             `json:"attempts"`
	Outcomes map[Outcome]int `json:"outcomes"`
	Err      string          `json:"error,omitempty"`
}

// Complete reports whether the domain reached its target.
func (d DomainReport) Complete() bool {
	return d.Existing+d.Accepted >= d.Target
}

// Report summarizes a generation run.
type Report struct {
	Domains  []DomainReport `json:"domains"`
	Accepted int            `json:"accepted"`
	Attempts int            `json:"attempts"`
}

// Incomplete returns the domains that stopped short of their target.
func (r *Report) Incomplete() []DomainReport {
	var out []DomainReport
	for _, d := range r.Domains {
		if !d.Complete() {
			out = append(out, d)
		}
	}
	return out
}

// Counts flattens the report for the run ledger.
func (r *Report) Counts() map[string]int {
	return map[string]int{
		"domains":    len(r.Domains),
		"accepted":   r.Accepted,
		"attempts":   r.Attempts,
		"incomplete": len(r.Incomplete()),
	}
}

// Run generates candidates for every domain in order. existing holds
// candidates already on disk per domain (resume); nil means none. The returned
// error is non-nil only for cancellation or a failed write; domains that
// exhaust MaxAttempts are recorded in the report and the run moves on.
func (g *Generator) Run(ctx context.Context, domains []types.Domain, out CandidateWriter, existing map[string]int) (*Report, error) {
	report := &Report{}
	timer := logging.StartTimer(logging.CategoryGenerate, "generation")
	defer timer.StopWithInfo()

	for _, domain := range domains {
		dr, err := g.runDomain(ctx, domain, out, existing[domain.Name])
		report.Domains = append(report.Domains, dr)
		report.Accepted += dr.Accepted
		report.Attempts += dr.Attempts
		if err != nil {
			return report, err
		}
	}

	logging.Generate("Generated %d candidates in %d attempts across %d domains", report.Accepted, report.Attempts, len(domains))
	return report, nil
}

// domainRun is the per-domain state.
type domainRun struct {
	domain   types.Domain
	prompt   string
	need     int
	have     int
	attempts int
	report   DomainReport
}

func (g *Generator) runDomain(ctx context.Context, domain types.Domain, out CandidateWriter, existing int) (DomainReport, error) {
	run := &domainRun{
		domain: domain,
		need:   g.cfg.TargetCount - existing,
		report: DomainReport{
			Domain:   domain.Name,
			Target:   g.cfg.TargetCount,
			Existing: existing,
			Outcomes: make(map[Outcome]int),
		},
	}

	if run.need <= 0 {
		logging.Generate("Domain %s already has %d/%d candidates, skipping", domain.Name, existing, g.cfg.TargetCount)
		return run.report, nil
	}

	p, err := g.builder.Build(domain)
	if err != nil {
		return run.report, err
	}
	run.prompt = p

	logging.Generate("Generating for domain: %s (target %d, need %d)", domain.Name, g.cfg.TargetCount, run.need)

	for run.have < run.need {
		if g.cfg.MaxAttempts > 0 && run.attempts >= g.cfg.MaxAttempts {
			run.report.Err = ErrMaxAttempts.Error()
			logging.GenerateError("domain=%s giving up after %d attempts with %d/%d candidates",
				domain.Name, run.attempts, run.have, run.need)
			return run.report, nil
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return run.report, ctxErr(ctx, err)
		}

		run.attempts++
		run.report.Attempts = run.attempts

		outcome, accepted, err := g.attempt(ctx, run, out)
		run.report.Outcomes[outcome]++
		g.metrics.GenerationAttempt(domain.Name, string(outcome))
		run.have += accepted
		run.report.Accepted = run.have
		if err != nil {
			return run.report, err
		}
		if cerr := ctx.Err(); cerr != nil {
			return run.report, cerr
		}
		if accepted > 0 {
			logging.Generate("domain=%s attempt=%d progress %d/%d", domain.Name, run.attempts, run.have, run.need)
		}
	}
	return run.report, nil
}

// candidateBatch is the JSON shape requested from the LLM. Items are decoded
// one by one so a single malformed entry does not spoil the batch.
type candidateBatch struct {
	Candidates []json.RawMessage `json:"candidates"`
}

// attempt makes one LLM call. A non-nil error is fatal to the run.
func (g *Generator) attempt(ctx context.Context, run *domainRun, out CandidateWriter) (Outcome, int, error) {
	name := run.domain.Name

	content, err := g.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: llm.SystemPrompt,
		UserPrompt:   run.prompt,
		Model:        g.cfg.Model,
		Temperature:  g.cfg.Temperature,
		MaxTokens:    g.cfg.MaxTokens,
		Timeout:      g.cfg.RequestTimeout,
	})
	if err != nil {
		outcome := Outcome(llm.Kind(err))
		logging.GenerateWarn("domain=%s attempt=%d outcome=%s: %v, retrying", name, run.attempts, outcome, err)
		return outcome, 0, nil
	}

	var batch candidateBatch
	if err := llm.DecodeJSON(content, &batch); err != nil {
		logging.GenerateWarn("domain=%s attempt=%d outcome=%s: %v, retrying", name, run.attempts, OutcomeParseError, err)
		return OutcomeParseError, 0, nil
	}

	accepted := 0
	for i, raw := range batch.Candidates {
		c, reason := decodeCandidate(raw)
		if reason != "" {
			logging.GenerateWarn("domain=%s attempt=%d dropping candidate #%d: %s", name, run.attempts, i+1, reason)
			continue
		}
		c.Domain = name
		if err := out.Write(c); err != nil {
			return OutcomeAccepted, accepted, fmt.Errorf("failed to persist candidate for %s: %w", name, err)
		}
		accepted++
		g.metrics.CandidatesAccepted(name, 1)
	}

	if accepted == 0 {
		logging.GenerateWarn("domain=%s attempt=%d outcome=%s: no candidates in response, retrying", name, run.attempts, OutcomeEmpty)
		return OutcomeEmpty, 0, nil
	}
	logging.GenerateDebug("domain=%s attempt=%d outcome=%s accepted=%d", name, run.attempts, OutcomeAccepted, accepted)
	return OutcomeAccepted, accepted, nil
}

// decodeCandidate returns the candidate or a non-empty reason it was rejected.
func decodeCandidate(raw json.RawMessage) (types.Candidate, string) {
	var c types.Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Sprintf("malformed: %v", err)
	}
	if strings.TrimSpace(c.Intent) == "" {
		return c, "missing intent"
	}
	if !c.HasPlan() {
		return c, "empty plan"
	}
	return c, ""
}

func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}
