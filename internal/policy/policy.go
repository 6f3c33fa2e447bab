// Package policy maps a ranked match list onto a resolution intent:
// auto-resolve, queue for human review, or create a new entity.
package policy

import (
	"github.com/rotisserie/eris"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
)

// Thresholds holds the validated score bands.
type Thresholds struct {
	// Fuzzy is the minimum top score to queue a row for review.
	Fuzzy float64
	// Auto is the minimum top score to commit a match without review.
	Auto float64
	// TopN is how many proposals a review item carries.
	TopN int
}

// Validate enforces 0 <= Fuzzy <= Auto <= 100 and a positive TopN. An
// invalid configuration is a startup failure, never a per-row one.
func (t Thresholds) Validate() error {
	if t.Fuzzy < 0 || t.Auto > 100 || t.Fuzzy > t.Auto {
		return eris.Errorf("policy: thresholds must satisfy 0 <= fuzzy (%.1f) <= auto (%.1f) <= 100", t.Fuzzy, t.Auto)
	}
	if t.TopN <= 0 {
		return eris.Errorf("policy: top_n must be positive, got %d", t.TopN)
	}
	return nil
}

// IntentKind enumerates the three resolution intents.
type IntentKind string

const (
	IntentAutoResolve IntentKind = "auto_resolve"
	IntentReview      IntentKind = "review"
	IntentCreateNew   IntentKind = "create_new"
)

// Intent is the policy's verdict for one candidate record.
type Intent struct {
	Kind IntentKind

	// Target is the match to commit for IntentAutoResolve.
	Target *model.Match

	// Proposals are the top-N matches carried into review for IntentReview.
	Proposals []model.Match
}

// Decide maps an ordered match list to an intent. matches must be sorted by
// score descending (the matcher's contract).
func Decide(matches []model.Match, t Thresholds) Intent {
	if len(matches) == 0 {
		return Intent{Kind: IntentCreateNew}
	}

	top := matches[0]
	switch {
	case top.Score >= t.Auto:
		return Intent{Kind: IntentAutoResolve, Target: &top}
	case top.Score >= t.Fuzzy:
		n := t.TopN
		if n > len(matches) {
			n = len(matches)
		}
		return Intent{Kind: IntentReview, Proposals: matches[:n]}
	default:
		return Intent{Kind: IntentCreateNew}
	}
}
