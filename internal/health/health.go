package health

import (
	"time"

	"github.com/revwatch/revwatch/internal/models"
)

// Summary aggregates a window of recent review runs.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	ByKind    map[models.ErrorKind]int
	LastRun   *models.ReviewRun
	Score     *Score
}

// Score represents the computed health of the review loop.
type Score struct {
	Total       int
	SuccessRate int // 0-60
	Recency     int // 0-25
	Stability   int // 0-15
}

// Scorer computes health scores from run history.
type Scorer struct{}

// NewScorer returns a new health Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Summarize aggregates runs (newest first, as the store returns them)
// into counts and a health score (0-100).
func (s *Scorer) Summarize(runs []*models.ReviewRun) *Summary {
	sum := &Summary{
		Total:  len(runs),
		ByKind: make(map[models.ErrorKind]int),
	}
	if len(runs) == 0 {
		sum.Score = &Score{}
		return sum
	}

	sum.LastRun = runs[0]
	for _, r := range runs {
		switch r.Status {
		case models.RunStatusSucceeded:
			sum.Succeeded++
		case models.RunStatusFailed:
			sum.Failed++
			sum.ByKind[r.ErrorKind]++
		}
	}

	sum.Score = s.score(runs, sum)
	return sum
}

func (s *Scorer) score(runs []*models.ReviewRun, sum *Summary) *Score {
	h := &Score{}

	// Success rate (60 pts) - fraction of runs that succeeded
	h.SuccessRate = int(60 * float64(sum.Succeeded) / float64(sum.Total))

	// Recency (25 pts) - a loop that ran recently is a loop that works
	h.Recency = scoreRecency(sum.LastRun.CreatedAt, 25)

	// Stability (15 pts) - consecutive failures at the head are a live problem
	h.Stability = scoreStreak(runs, 15)

	h.Total = h.SuccessRate + h.Recency + h.Stability
	return h
}

// scoreRecency converts time since the last run to points. The ladder is
// hours-scale: a watch loop runs at edit cadence, not release cadence.
func scoreRecency(t time.Time, maxPoints int) int {
	if t.IsZero() {
		return 0
	}
	since := time.Since(t)
	switch {
	case since <= 10*time.Minute:
		return maxPoints
	case since <= time.Hour:
		return int(float64(maxPoints) * 0.9)
	case since <= 6*time.Hour:
		return int(float64(maxPoints) * 0.75)
	case since <= 24*time.Hour:
		return int(float64(maxPoints) * 0.6)
	case since <= 7*24*time.Hour:
		return int(float64(maxPoints) * 0.4)
	default:
		return int(float64(maxPoints) * 0.2)
	}
}

// scoreStreak penalizes consecutive failures in the newest runs.
func scoreStreak(runs []*models.ReviewRun, maxPoints int) int {
	streak := 0
	for _, r := range runs {
		if r.Status != models.RunStatusFailed {
			break
		}
		streak++
	}
	switch {
	case streak == 0:
		return maxPoints
	case streak <= 2:
		return int(float64(maxPoints) * 0.5)
	default:
		return 0
	}
}
