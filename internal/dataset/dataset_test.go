package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenix/internal/types"
)

func verified(intent string, cmds ...string) types.VerifiedRecord {
	plan := make([]types.Step, len(cmds))
	for i, c := range cmds {
		plan[i] = types.Step{Command: c}
	}
	return types.VerifiedRecord{Candidate: types.Candidate{Intent: intent, Plan: plan, Domain: "fs"}, Verified: true}
}

func TestToChatExample(t *testing.T) {
	ex, err := ToChatExample(verified("list files", "ls"))
	require.NoError(t, err)

	require.Len(t, ex.Messages, 2)
	assert.Equal(t, types.ChatMessage{Role: "user", Content: "list files"}, ex.Messages[0])
	assert.Equal(t, "assistant", ex.Messages[1].Role)
	assert.Equal(t, "I will execute the following plan:\n\nEXECUTING_PLAN: [{\"command\": \"ls\"}]", ex.Messages[1].Content)
}

func TestToChatExample_Unverified(t *testing.T) {
	rec := verified("x", "ls")
	rec.Verified = false

	_, err := ToChatExample(rec)
	assert.ErrorIs(t, err, ErrUnverified)
	_, err = ToInstructionExample(rec)
	assert.ErrorIs(t, err, ErrUnverified)
}

func TestChatExample_PlanRoundTrip(t *testing.T) {
	plans := [][]types.Step{
		{{Command: "ls"}},
		{{Command: "mkdir -p /tmp/a, /tmp/b"}, {Command: `echo "key: value" > /tmp/a/x`}},
		{{Command: `printf '%s\n' "a\"b" && cat <<EOF` + "\nline\nEOF"}},
		{{Command: "echo héllo → 世界 <tag> & done"}},
	}
	for _, plan := range plans {
		ex, err := ToChatExample(types.VerifiedRecord{Candidate: types.Candidate{Intent: "i", Plan: plan}, Verified: true})
		require.NoError(t, err)

		got, err := ExtractPlan(ex.Messages[1].Content)
		require.NoError(t, err)
		if diff := cmp.Diff(plan, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestMarshalPlan_SeparatorsOutsideStringsOnly(t *testing.T) {
	out, err := MarshalPlan([]types.Step{{Command: "a,b:c"}, {Command: `say "x, y"`}})
	require.NoError(t, err)
	assert.Equal(t, `[{"command": "a,b:c"}, {"command": "say \"x, y\""}]`, out)

	out, err = MarshalPlan([]types.Step{{Command: "cat a && cat b > c"}})
	require.NoError(t, err)
	assert.Equal(t, `[{"command": "cat a && cat b > c"}]`, out)

	out, err = MarshalPlan(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestExtractPlan_Errors(t *testing.T) {
	_, err := ExtractPlan("no plan here")
	assert.ErrorIs(t, err, ErrNoPlanMarker)

	_, err = ExtractPlan("EXECUTING_PLAN: [{")
	assert.Error(t, err)
}

func TestToInstructionExample(t *testing.T) {
	ex, err := ToInstructionExample(verified("list files", "ls"))
	require.NoError(t, err)
	assert.Equal(t, "list files", ex.Instruction)
	assert.Equal(t, []types.Step{{Command: "ls"}}, ex.Output)
}

func runFormatter(t *testing.T, input string) (*Report, string, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "verified_dataset.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(input), 0644))

	chat := filepath.Join(dir, "train_chat.jsonl")
	instr := filepath.Join(dir, "train_instruction.jsonl")
	report, err := NewFormatter(nil).Run(context.Background(), in, chat, instr)
	require.NoError(t, err)

	chatData, err := os.ReadFile(chat)
	require.NoError(t, err)
	instrData, err := os.ReadFile(instr)
	require.NoError(t, err)
	return report, string(chatData), string(instrData)
}

func TestFormatter_Scenario(t *testing.T) {
	report, chat, instr := runFormatter(t,
		`{"intent":"list files","plan":[{"command":"ls"}],"domain":"fs","verified":true}`+"\n")

	assert.Equal(t, Report{Chat: 1, Instruction: 1}, *report)
	assert.Equal(t,
		`{"messages":[{"role":"user","content":"list files"},{"role":"assistant","content":"I will execute the following plan:\n\nEXECUTING_PLAN: [{\"command\": \"ls\"}]"}]}`+"\n",
		chat)
	assert.Equal(t, `{"instruction":"list files","output":[{"command":"ls"}]}`+"\n", instr)
}

func TestFormatter_SkipsAndCounts(t *testing.T) {
	input := strings.Join([]string{
		`{"intent":"a","plan":[{"command":"ls"}],"domain":"fs","verified":true}`,
		`{"intent":"b","plan":[{"command":"ls"}],"domain":"fs","verified":false}`,
		`{"intent":"c","plan":[{"command":"ls"}],"domain":"fs"}`,
		`{broken`,
		`{"intent":"d","plan":[],"domain":"fs","verified":true}`,
		`{"intent":"","plan":[{"command":"ls"}],"verified":true}`,
		``,
		`{"intent":"e","plan":[{"command":"pwd"}],"domain":"fs","verified":true}`,
	}, "\n") + "\n"

	report, chat, instr := runFormatter(t, input)
	assert.Equal(t, Report{Chat: 2, Instruction: 2, SkippedUnverified: 2, SkippedMalformed: 3}, *report)
	assert.Equal(t, 2, strings.Count(chat, "\n"))
	assert.Equal(t, 2, strings.Count(instr, "\n"))
	assert.Equal(t, 2, report.Counts()["chat"])
}

func TestFormatter_Idempotent(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "verified.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(strings.Join([]string{
		`{"intent":"x & y","plan":[{"command":"echo '<b>'"},{"command":"true"}],"domain":"fs","verified":true}`,
		`{"intent":"z","plan":[{"command":"ls -la /"}],"domain":"fs","verified":true}`,
	}, "\n")+"\n"), 0644))

	chat := filepath.Join(dir, "chat.jsonl")
	instr := filepath.Join(dir, "instr.jsonl")
	f := NewFormatter(nil)

	_, err := f.Run(context.Background(), in, chat, instr)
	require.NoError(t, err)
	chat1, _ := os.ReadFile(chat)
	instr1, _ := os.ReadFile(instr)

	_, err = f.Run(context.Background(), in, chat, instr)
	require.NoError(t, err)
	chat2, _ := os.ReadFile(chat)
	instr2, _ := os.ReadFile(instr)

	assert.Equal(t, chat1, chat2)
	assert.Equal(t, instr1, instr2)
	assert.Contains(t, string(chat1), `echo '<b>'`)
}

func TestFormatter_MissingInput(t *testing.T) {
	dir := t.TempDir()
	chat := filepath.Join(dir, "c.jsonl")
	instr := filepath.Join(dir, "i.jsonl")
	prior := `{"instruction":"old","output":[{"command":"ls"}]}` + "\n"
	require.NoError(t, os.WriteFile(chat, []byte(prior), 0644))
	require.NoError(t, os.WriteFile(instr, []byte(prior), 0644))

	_, err := NewFormatter(nil).Run(context.Background(), filepath.Join(dir, "nope.jsonl"), chat, instr)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, path := range []string{chat, instr} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, prior, string(data), path)
	}
}

func TestFormatter_PlanStepExtrasPassThrough(t *testing.T) {
	report, chat, instr := runFormatter(t,
		`{"intent":"list","plan":[{"command":"ls","description":"list files"}],"domain":"fs","verified":true}`+"\n")

	assert.Equal(t, Report{Chat: 1, Instruction: 1}, *report)
	assert.Equal(t,
		`{"messages":[{"role":"user","content":"list"},{"role":"assistant","content":"I will execute the following plan:\n\nEXECUTING_PLAN: [{\"command\": \"ls\", \"description\": \"list files\"}]"}]}`+"\n",
		chat)
	assert.Equal(t, `{"instruction":"list","output":[{"command":"ls","description":"list files"}]}`+"\n", instr)
}

func TestMarshalPlan_KeepsNonASCII(t *testing.T) {
	out, err := MarshalPlan([]types.Step{{Command: "echo héllo ✓ 世界"}})
	require.NoError(t, err)
	assert.Equal(t, `[{"command": "echo héllo ✓ 世界"}]`, out)

	ex, err := ToChatExample(verified("greet", "echo héllo ✓ 世界"))
	require.NoError(t, err)
	assert.Contains(t, ex.Messages[1].Content, "héllo ✓ 世界")
	assert.NotContains(t, ex.Messages[1].Content, `\u`)
}
