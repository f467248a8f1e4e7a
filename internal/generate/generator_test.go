package generate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenix/internal/jsonl"
	"agenix/internal/llm"
	"agenix/internal/metrics"
	"agenix/internal/prompt"
	"agenix/internal/types"
)

type reply struct {
	content string
	err     error
}

// scriptedCompleter returns replies in order, then repeats the last one.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []reply
	calls   []llm.CompletionRequest
	times   []time.Time
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	s.times = append(s.times, time.Now())
	i := len(s.calls) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i].content, s.replies[i].err
}

type memWriter struct {
	records []types.Candidate
	failAt  int
}

func (m *memWriter) Write(v any) error {
	if m.failAt > 0 && len(m.records)+1 == m.failAt {
		return errors.New("disk full")
	}
	m.records = append(m.records, v.(types.Candidate))
	return nil
}

const twoCandidates = `{"candidates":[
 {"intent":"list files","plan":[{"command":"ls -la"}]},
 {"intent":"show disk usage","plan":[{"command":"df -h"},{"command":"du -sh /tmp"}]}
]}`

func newGenerator(c llm.Completer, target int) *Generator {
	return New(c, prompt.NewBuilder(5), Config{TargetCount: target, Model: "test-model"}, nil)
}

var fsDomain = types.Domain{Name: "fs", Description: "files", Examples: []string{"list files"}}

func TestRun_EmptyFencedResponseRetriesWithoutWriting(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{
		{content: "```json\n{\"candidates\":[]}\n```"},
		{content: twoCandidates},
	}}
	out := &memWriter{}

	report, err := newGenerator(c, 2).Run(context.Background(), []types.Domain{fsDomain}, out, nil)
	require.NoError(t, err)

	require.Len(t, c.calls, 2)
	require.Len(t, out.records, 2)
	assert.Equal(t, "list files", out.records[0].Intent)
	assert.Equal(t, "fs", out.records[0].Domain)
	assert.Equal(t, []types.Step{{Command: "df -h"}, {Command: "du -sh /tmp"}}, out.records[1].Plan)

	dr := report.Domains[0]
	assert.Equal(t, 2, dr.Attempts)
	assert.Equal(t, 1, dr.Outcomes[OutcomeEmpty])
	assert.Equal(t, 1, dr.Outcomes[OutcomeAccepted])
	assert.True(t, dr.Complete())
}

func TestRun_FailuresAreRetried(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{
		{err: &llm.TransportError{Err: errors.New("connection refused")}},
		{err: &llm.HTTPError{StatusCode: 502, Body: "bad gateway"}},
		{err: &llm.SchemaError{Reason: "no choices"}},
		{content: "Sure! Here are some ideas."},
		{content: `{"other":"shape"}`},
		{content: twoCandidates},
	}}
	out := &memWriter{}

	report, err := newGenerator(c, 1).Run(context.Background(), []types.Domain{fsDomain}, out, nil)
	require.NoError(t, err)

	dr := report.Domains[0]
	assert.Equal(t, 6, dr.Attempts)
	assert.Equal(t, map[Outcome]int{
		OutcomeTransportError: 1,
		OutcomeHTTPError:      1,
		OutcomeSchemaError:    1,
		OutcomeParseError:     1,
		OutcomeEmpty:          1,
		OutcomeAccepted:       1,
	}, dr.Outcomes)

	// A whole batch is kept even when it overshoots the target.
	assert.Len(t, out.records, 2)
	assert.Equal(t, 2, report.Accepted)
}

func TestRun_DropsMalformedCandidates(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{content: `{"candidates":[
		{"intent":"ok","plan":[{"command":"true"}]},
		{"intent":"","plan":[{"command":"true"}]},
		{"intent":"no plan","plan":[]},
		{"intent":"wrong plan","plan":["ls"]},
		"just a string"
	]}`}}}
	out := &memWriter{}

	_, err := newGenerator(c, 1).Run(context.Background(), []types.Domain{fsDomain}, out, nil)
	require.NoError(t, err)
	require.Len(t, out.records, 1)
	assert.Equal(t, "ok", out.records[0].Intent)
}

func TestRun_DomainOverridesLLMTag(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{content: `{"candidates":[{"intent":"x","plan":[{"command":"true"}],"domain":"made-up"}]}`}}}
	out := &memWriter{}

	_, err := newGenerator(c, 1).Run(context.Background(), []types.Domain{fsDomain}, out, nil)
	require.NoError(t, err)
	assert.Equal(t, "fs", out.records[0].Domain)
}

func TestRun_KeepsStepExtras(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{content: `{"candidates":[{"intent":"x","plan":[{"command":"ls","description":"list files"}]}]}`}}}
	out := &memWriter{}

	_, err := newGenerator(c, 1).Run(context.Background(), []types.Domain{fsDomain}, out, nil)
	require.NoError(t, err)
	require.Len(t, out.records, 1)

	line, err := jsonl.Marshal(out.records[0])
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"x","plan":[{"command":"ls","description":"list files"}],"domain":"fs"}`+"\n", string(line))
}

func TestRun_MaxAttemptsMovesOn(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{
		{content: `{"candidates":[]}`},
		{content: `{"candidates":[]}`},
		{content: `{"candidates":[]}`},
		{content: twoCandidates},
	}}
	g := New(c, prompt.NewBuilder(5), Config{TargetCount: 2, MaxAttempts: 3}, nil)
	out := &memWriter{}

	report, err := g.Run(context.Background(), []types.Domain{fsDomain, {Name: "net"}}, out, nil)
	require.NoError(t, err)

	require.Len(t, report.Domains, 2)
	assert.Equal(t, ErrMaxAttempts.Error(), report.Domains[0].Err)
	assert.Equal(t, 3, report.Domains[0].Attempts)
	assert.False(t, report.Domains[0].Complete())
	assert.True(t, report.Domains[1].Complete())

	incomplete := report.Incomplete()
	require.Len(t, incomplete, 1)
	assert.Equal(t, "fs", incomplete[0].Domain)
	assert.Equal(t, 1, report.Counts()["incomplete"])
}

func TestRun_ExistingCandidatesReduceNeed(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{content: twoCandidates}}}
	out := &memWriter{}

	report, err := newGenerator(c, 4).Run(context.Background(),
		[]types.Domain{fsDomain, {Name: "done"}}, out, map[string]int{"fs": 2, "done": 4})
	require.NoError(t, err)

	assert.Len(t, c.calls, 1)
	assert.Equal(t, 2, report.Domains[0].Existing)
	assert.True(t, report.Domains[0].Complete())
	assert.Equal(t, 0, report.Domains[1].Attempts)
}

func TestRun_WriteFailureIsFatal(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{content: twoCandidates}}}
	out := &memWriter{failAt: 2}

	report, err := newGenerator(c, 5).Run(context.Background(), []types.Domain{fsDomain}, out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, report.Accepted)
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &cancelingCompleter{cancel: cancel}
	out := &memWriter{}

	_, err := newGenerator(c, 1).Run(ctx, []types.Domain{fsDomain}, out, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.records)
}

type cancelingCompleter struct{ cancel context.CancelFunc }

func (c *cancelingCompleter) Complete(ctx context.Context, _ llm.CompletionRequest) (string, error) {
	c.cancel()
	return "", &llm.TransportError{Err: ctx.Err()}
}

func TestRun_InterCallDelay(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{
		{content: `{"candidates":[]}`},
		{err: &llm.HTTPError{StatusCode: 500}},
		{content: twoCandidates},
	}}
	g := New(c, prompt.NewBuilder(5), Config{TargetCount: 1, Delay: 30 * time.Millisecond}, nil)

	_, err := g.Run(context.Background(), []types.Domain{fsDomain}, &memWriter{}, nil)
	require.NoError(t, err)

	require.Len(t, c.times, 3)
	for i := 1; i < len(c.times); i++ {
		assert.GreaterOrEqual(t, c.times[i].Sub(c.times[i-1]), 25*time.Millisecond)
	}
}

func TestRun_RequestCarriesConfig(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{content: twoCandidates}}}
	g := New(c, prompt.NewBuilder(5), Config{
		TargetCount: 1, Model: "gpt-oss:120b", Temperature: 0.7, MaxTokens: 4096, RequestTimeout: time.Minute,
	}, nil)

	_, err := g.Run(context.Background(), []types.Domain{fsDomain}, &memWriter{}, nil)
	require.NoError(t, err)

	req := c.calls[0]
	assert.Equal(t, llm.SystemPrompt, req.SystemPrompt)
	assert.Equal(t, "gpt-oss:120b", req.Model)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.Equal(t, time.Minute, req.Timeout)
	assert.True(t, strings.Contains(req.UserPrompt, `domain: "fs"`))
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	c := &scriptedCompleter{replies: []reply{{content: "not json"}, {content: twoCandidates}}}
	g := New(c, prompt.NewBuilder(5), Config{TargetCount: 1}, m)
	_, err = g.Run(context.Background(), []types.Domain{fsDomain}, &memWriter{}, nil)
	require.NoError(t, err)

	expected := `
# HELP agenix_generate_candidates_accepted_total Candidates written to the raw stream, by domain.
# TYPE agenix_generate_candidates_accepted_total counter
agenix_generate_candidates_accepted_total{domain="fs"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "agenix_generate_candidates_accepted_total"))
}

func TestRunFile_TruncateAndResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_candidates.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("stale line\n"), 0644))

	c := &scriptedCompleter{replies: []reply{{content: twoCandidates}}}
	g := newGenerator(c, 2)

	_, err := g.RunFile(context.Background(), []types.Domain{fsDomain}, path, false, false)
	require.NoError(t, err)

	counts, err := CountExisting(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"fs": 2}, counts)

	// Resume with a higher target appends only the shortfall.
	g2 := newGenerator(c, 4)
	report, err := g2.RunFile(context.Background(), []types.Domain{fsDomain}, path, true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Domains[0].Existing)
	assert.Equal(t, 2, report.Accepted)

	var lines int
	_, err = jsonl.EachFile(context.Background(), path, nil, func(_ int, _ types.Candidate) error {
		lines++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, lines)
}

func TestCountExisting_MissingFile(t *testing.T) {
	counts, err := CountExisting(context.Background(), filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, counts)
}
