// Package scoring grades attempts. Everything here is a pure function of the
// questions and responses passed in, so grading the same stored data twice
// always yields the same result.
package scoring

import (
	"math"

	"github.com/google/uuid"
	"github.com/stemsi/examcore/internal/model"
)

// Policy names how the aggregate score is computed.
type Policy string

const (
	// PolicyPoints sums the points of correctly answered questions.
	PolicyPoints Policy = "points"
	// PolicyNormalized scales the share of correct questions to 0..10.
	PolicyNormalized Policy = "normalized"
)

// NormalizedScale is the top of the normalized score range.
const NormalizedScale = 10.0

// Options tune a grading run.
type Options struct {
	Policy Policy
	// ZeroCredit records correctness but awards no points (over-time work).
	ZeroCredit bool
}

// Outcome is the verdict for a single response.
type Outcome struct {
	ResponseID uuid.UUID
	QuestionID uuid.UUID
	Correct    bool
	Points     int
	// Skipped is set when the response's question no longer exists.
	Skipped bool
}

// Result is the full grading output for an attempt.
type Result struct {
	Outcomes      []Outcome
	Earned        int
	MaxPoints     int
	CorrectCount  int
	QuestionCount int
	Score         float64
}

// Grade evaluates responses against the exam's current questions.
func Grade(questions []model.Question, responses []model.Response, opts Options) Result {
	byID := make(map[uuid.UUID]model.Question, len(questions))
	res := Result{QuestionCount: len(questions)}
	for _, q := range questions {
		byID[q.ID] = q
		res.MaxPoints += q.Points
	}

	seen := make(map[uuid.UUID]bool, len(responses))
	res.Outcomes = make([]Outcome, 0, len(responses))
	for _, r := range responses {
		out := Outcome{ResponseID: r.ID, QuestionID: r.QuestionID}
		q, ok := byID[r.QuestionID]
		if !ok || seen[r.QuestionID] {
			out.Skipped = true
			res.Outcomes = append(res.Outcomes, out)
			continue
		}
		seen[r.QuestionID] = true

		out.Correct = Evaluate(q, r.Answer)
		if out.Correct {
			res.CorrectCount++
			if !opts.ZeroCredit {
				out.Points = q.Points
				res.Earned += q.Points
			}
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	res.Score = aggregate(res, opts)
	return res
}

func aggregate(res Result, opts Options) float64 {
	if opts.ZeroCredit {
		return 0
	}
	switch opts.Policy {
	case PolicyNormalized:
		if res.QuestionCount == 0 {
			return 0
		}
		score := float64(res.CorrectCount) / float64(res.QuestionCount) * NormalizedScale
		return math.Round(score*100) / 100
	default:
		return float64(res.Earned)
	}
}
