// Package compliance audits candidate outbound replies through three ordered
// tiers: a length guard, a pattern tier over a configurable term list, and a
// semantic tier behind an injected Scorer.
//
// The guard is total — it never panics on malformed input. Oversized input
// is itself a length-guard violation, not an exception.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync/atomic"

	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
)

// Guard runs the three-tier audit pipeline over candidate replies.
// Safe for concurrent use.
type Guard struct {
	maxLen       int
	patterns     []*regexp.Regexp
	scorer       Scorer
	failureLimit int
	logger       *slog.Logger

	// consecutiveFailures counts scorer transport failures across events.
	// A single failure fails closed to flagged; at failureLimit the guard
	// escalates to blocked until a call succeeds again.
	consecutiveFailures atomic.Int64
}

// NewGuard compiles the pattern tier and wires the semantic scorer.
// Pattern entries are regular expressions matched case-insensitively.
func NewGuard(cfg config.Config, scorer Scorer, logger *slog.Logger) (*Guard, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.PatternTerms))
	for _, term := range cfg.PatternTerms {
		re, err := regexp.Compile("(?i)" + term)
		if err != nil {
			return nil, fmt.Errorf("compliance: compile pattern %q: %w", term, err)
		}
		patterns = append(patterns, re)
	}
	if scorer == nil {
		scorer = NoopScorer{}
	}
	return &Guard{
		maxLen:       cfg.ComplianceMaxLen,
		patterns:     patterns,
		scorer:       scorer,
		failureLimit: cfg.ScorerFailureLimit,
		logger:       logger,
	}, nil
}

// Audit runs the tiers in order, each able to short-circuit.
func (g *Guard) Audit(ctx context.Context, input ScoreInput) model.ComplianceResult {
	// Tier 1: length guard. Rejecting oversized input first defends the
	// later tiers against resource exhaustion.
	if len(input.Reply) > g.maxLen {
		return model.ComplianceResult{
			Status: model.ComplianceBlocked,
			Reason: fmt.Sprintf("reply exceeds maximum length of %d characters", g.maxLen),
		}
	}

	// Tier 2: pattern tier. Matches escalate to flagged (not yet blocked)
	// and are carried into the semantic tier.
	var violations []string
	for _, re := range g.patterns {
		if m := re.FindString(input.Reply); m != "" {
			violations = append(violations, m)
		}
	}

	// Tier 3: semantic tier.
	result, err := g.scorer.Score(ctx, input)
	if err != nil {
		failures := g.consecutiveFailures.Add(1)
		g.logger.Warn("compliance: semantic scorer failed",
			"error", err,
			"contact_id", input.ContactID,
			"consecutive_failures", failures,
		)
		// Transport failure is never a pass. Repeated failures escalate to
		// blocked so a dead scorer cannot become a silent bypass.
		if g.failureLimit > 0 && failures >= int64(g.failureLimit) {
			return model.ComplianceResult{
				Status:     model.ComplianceBlocked,
				Reason:     "semantic scorer unavailable",
				Violations: violations,
			}
		}
		return model.ComplianceResult{
			Status:     model.ComplianceFlagged,
			Reason:     "semantic scorer failed; fail-closed to flagged",
			Violations: violations,
		}
	}
	g.consecutiveFailures.Store(0)

	switch result.Verdict {
	case VerdictBlock:
		return model.ComplianceResult{
			Status:     model.ComplianceBlocked,
			Reason:     result.Reason,
			Violations: violations,
		}
	case VerdictFlag:
		return model.ComplianceResult{
			Status:     model.ComplianceFlagged,
			Reason:     result.Reason,
			Violations: violations,
		}
	default:
		if len(violations) > 0 {
			return model.ComplianceResult{
				Status:     model.ComplianceFlagged,
				Reason:     "pattern tier matched protected terms",
				Violations: violations,
			}
		}
		return model.ComplianceResult{Status: model.CompliancePassed}
	}
}
