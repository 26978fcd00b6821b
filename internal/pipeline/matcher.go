package pipeline

import (
	"context"
	"fmt"

	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
)

// SimilaritySearcher is the external vector-search collaborator over
// the watchlist embedding store.
type SimilaritySearcher interface {
	SearchWatchlist(ctx context.Context, descriptor []float32, k int) ([]models.Candidate, error)
}

// Matcher applies watchlist acceptance policy on top of raw similarity
// search: per-risk thresholds and a risk-preferring tie-break.
type Matcher struct {
	search SimilaritySearcher
	cfg    config.MatcherConfig
}

func NewMatcher(search SimilaritySearcher, cfg config.MatcherConfig) *Matcher {
	return &Matcher{search: search, cfg: cfg}
}

// Match returns the accepted best candidate for a descriptor, or nil
// when nothing clears its threshold. No match is the common case, not
// an error.
func (m *Matcher) Match(ctx context.Context, descriptor []float32) (*models.MatchResult, error) {
	if len(descriptor) == 0 {
		return nil, nil
	}

	candidates, err := m.search.SearchWatchlist(ctx, descriptor, m.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}

	// Candidates within the tie margin of the top score compete on
	// risk level: a near-tie resolves toward the higher-risk subject.
	// The margin is anchored to the top score, so chained near-ties
	// cannot drift the winner further below it.
	top := best.Score
	for _, c := range candidates {
		if c.PersonID == best.PersonID {
			continue
		}
		if float64(top-c.Score) <= m.cfg.TieMargin && c.RiskLevel.Rank() > best.RiskLevel.Rank() {
			best = c
		}
	}

	// Scores are float32; the threshold must be compared at the same
	// precision or a score exactly at the threshold falls just under it.
	if best.Score < float32(m.threshold(best.RiskLevel)) {
		return nil, nil
	}

	return &models.MatchResult{
		PersonID:  best.PersonID,
		RiskLevel: best.RiskLevel,
		Score:     best.Score,
	}, nil
}

// threshold is lower for higher risk: recall is favored over
// false-positive suppression for dangerous subjects.
func (m *Matcher) threshold(risk models.RiskLevel) float64 {
	switch risk {
	case models.RiskCritical:
		return m.cfg.ThresholdCritical
	case models.RiskHigh:
		return m.cfg.ThresholdHigh
	case models.RiskMedium:
		return m.cfg.ThresholdMedium
	default:
		return m.cfg.ThresholdLow
	}
}
