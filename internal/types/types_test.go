package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifiedRecord_FlattensCandidate(t *testing.T) {
	rec := VerifiedRecord{
		Candidate: Candidate{Intent: "list files", Plan: []Step{{Command: "ls"}}, Domain: "fs"},
		Verified:  true,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":"list files","plan":[{"command":"ls"}],"domain":"fs","verified":true}`, string(data))
}

func TestVerifiedRecord_MissingFlagDecodesFalse(t *testing.T) {
	var rec VerifiedRecord
	require.NoError(t, json.Unmarshal([]byte(`{"intent":"x","plan":[{"command":"ls"}]}`), &rec))
	assert.False(t, rec.Verified)
	assert.True(t, rec.HasPlan())
}

func TestVerificationResult_Record(t *testing.T) {
	c := Candidate{Intent: "fail", Plan: []Step{{Command: "false"}}, Domain: "fs"}

	ok, fail := VerificationResult{Candidate: c, Verified: true, Diagnostic: "out"}.Record()
	require.NotNil(t, ok)
	assert.Nil(t, fail)
	assert.True(t, ok.Verified)

	ok, fail = VerificationResult{Candidate: c, Diagnostic: "Timeout", TimedOut: true}.Record()
	assert.Nil(t, ok)
	require.NotNil(t, fail)
	assert.Equal(t, "Timeout", fail.Error)
	assert.Equal(t, c, fail.Candidate)
}
