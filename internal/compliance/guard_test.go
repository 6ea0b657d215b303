package compliance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
	"github.com/leadline-ai/switchboard/internal/testutil"
)

// stubScorer returns a fixed result or error on every call.
type stubScorer struct {
	result ScoreResult
	err    error
	calls  int
}

func (s *stubScorer) Score(_ context.Context, _ ScoreInput) (ScoreResult, error) {
	s.calls++
	return s.result, s.err
}

func guardConfig() config.Config {
	return config.Config{
		ComplianceMaxLen:   200,
		ScorerFailureLimit: 3,
		PatternTerms: []string{
			`no\s+(kids|children|families)`,
			`adults?\s+only`,
		},
	}
}

func newTestGuard(t *testing.T, scorer Scorer) *Guard {
	t.Helper()
	g, err := NewGuard(guardConfig(), scorer, testutil.TestLogger())
	require.NoError(t, err)
	return g
}

func TestAudit_Passes(t *testing.T) {
	g := newTestGuard(t, &stubScorer{result: ScoreResult{Verdict: VerdictPass}})

	res := g.Audit(context.Background(), ScoreInput{Reply: "Happy to help with your search!"})
	assert.Equal(t, model.CompliancePassed, res.Status)
	assert.Empty(t, res.Violations)
}

func TestAudit_LengthGuardBlocks(t *testing.T) {
	scorer := &stubScorer{result: ScoreResult{Verdict: VerdictPass}}
	g := newTestGuard(t, scorer)

	res := g.Audit(context.Background(), ScoreInput{Reply: strings.Repeat("a", 201)})
	assert.Equal(t, model.ComplianceBlocked, res.Status)
	// Oversized input never reaches the later tiers.
	assert.Zero(t, scorer.calls)
}

func TestAudit_PatternTierFlags(t *testing.T) {
	g := newTestGuard(t, &stubScorer{result: ScoreResult{Verdict: VerdictPass}})

	res := g.Audit(context.Background(), ScoreInput{Reply: "Lovely unit, adults only please"})
	assert.Equal(t, model.ComplianceFlagged, res.Status)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "adults only", res.Violations[0])
}

func TestAudit_PatternTierCaseInsensitive(t *testing.T) {
	g := newTestGuard(t, &stubScorer{result: ScoreResult{Verdict: VerdictPass}})

	res := g.Audit(context.Background(), ScoreInput{Reply: "NO KIDS in this building"})
	assert.Equal(t, model.ComplianceFlagged, res.Status)
	assert.NotEmpty(t, res.Violations)
}

func TestAudit_ScorerBlockWins(t *testing.T) {
	g := newTestGuard(t, &stubScorer{result: ScoreResult{Verdict: VerdictBlock, Reason: "discriminatory steering"}})

	res := g.Audit(context.Background(), ScoreInput{Reply: "You'd fit in better on the other side of town"})
	assert.Equal(t, model.ComplianceBlocked, res.Status)
	assert.Equal(t, "discriminatory steering", res.Reason)
}

func TestAudit_ScorerFlag(t *testing.T) {
	g := newTestGuard(t, &stubScorer{result: ScoreResult{Verdict: VerdictFlag, Reason: "loaded neighborhood description"}})

	res := g.Audit(context.Background(), ScoreInput{Reply: "It's a very exclusive community"})
	assert.Equal(t, model.ComplianceFlagged, res.Status)
}

func TestAudit_ScorerFailureFailsClosed(t *testing.T) {
	scorer := &stubScorer{err: errors.New("connection refused")}
	g := newTestGuard(t, scorer)

	// A single transport failure is flagged, never passed.
	res := g.Audit(context.Background(), ScoreInput{Reply: "hello"})
	assert.Equal(t, model.ComplianceFlagged, res.Status)

	// At the failure limit the guard escalates to blocked.
	res = g.Audit(context.Background(), ScoreInput{Reply: "hello"})
	assert.Equal(t, model.ComplianceFlagged, res.Status)
	res = g.Audit(context.Background(), ScoreInput{Reply: "hello"})
	assert.Equal(t, model.ComplianceBlocked, res.Status)
	assert.Equal(t, "semantic scorer unavailable", res.Reason)

	// One success resets the streak.
	scorer.err = nil
	scorer.result = ScoreResult{Verdict: VerdictPass}
	res = g.Audit(context.Background(), ScoreInput{Reply: "hello"})
	assert.Equal(t, model.CompliancePassed, res.Status)

	scorer.err = errors.New("connection refused")
	res = g.Audit(context.Background(), ScoreInput{Reply: "hello"})
	assert.Equal(t, model.ComplianceFlagged, res.Status)
}

func TestAudit_ViolationsCarriedIntoScorerOutcome(t *testing.T) {
	g := newTestGuard(t, &stubScorer{result: ScoreResult{Verdict: VerdictBlock, Reason: "exclusionary"}})

	res := g.Audit(context.Background(), ScoreInput{Reply: "adults only, sorry"})
	assert.Equal(t, model.ComplianceBlocked, res.Status)
	assert.NotEmpty(t, res.Violations)
}

func TestNewGuard_BadPattern(t *testing.T) {
	cfg := guardConfig()
	cfg.PatternTerms = []string{`no\s+(kids`}
	_, err := NewGuard(cfg, nil, testutil.TestLogger())
	assert.Error(t, err)
}

func TestNewGuard_NilScorerDefaultsToNoop(t *testing.T) {
	g, err := NewGuard(guardConfig(), nil, testutil.TestLogger())
	require.NoError(t, err)

	res := g.Audit(context.Background(), ScoreInput{Reply: "hello"})
	assert.Equal(t, model.CompliancePassed, res.Status)
}

// ---------------------------------------------------------------------------
// ParseScorerResponse unit tests
// ---------------------------------------------------------------------------

func TestParseScorerResponse(t *testing.T) {
	res, err := ParseScorerResponse("VERDICT: pass\nREASON: No concern.")
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, res.Verdict)
	assert.Equal(t, "No concern.", res.Reason)

	res, err = ParseScorerResponse("verdict: [block]\nreason: Protected-class preference.")
	require.NoError(t, err)
	assert.Equal(t, VerdictBlock, res.Verdict)

	res, err = ParseScorerResponse("Some preamble.\nVERDICT: flag\nREASON: borderline")
	require.NoError(t, err)
	assert.Equal(t, VerdictFlag, res.Verdict)
}

func TestParseScorerResponse_Malformed(t *testing.T) {
	_, err := ParseScorerResponse("I think this looks fine.")
	assert.Error(t, err)

	_, err = ParseScorerResponse("VERDICT: maybe\nREASON: unsure")
	assert.Error(t, err)

	_, err = ParseScorerResponse("")
	assert.Error(t, err)
}
