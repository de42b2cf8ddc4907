package scoring

import (
	"context"
	"log/slog"

	"github.com/fluentedge/placement/internal/model"
)

const (
	// subjectiveMaxScore is the fixed scale for writing/speaking responses.
	subjectiveMaxScore = 20
	// subjectivePassRatio is the fraction of maxScore counted as a pass.
	subjectivePassRatio = 0.6
	// fallbackScore is awarded when the grading service cannot evaluate a
	// response; partial credit keeps one flaky call from sinking the run.
	fallbackScore = 10

	fallbackFeedback = "Your response could not be fully evaluated. Partial credit has been awarded."
)

// defaultRubric is used when a prompt carries no rubric of its own.
var defaultRubric = []string{"content", "organization", "language", "accuracy"}

// EvalRequest is the contract sent to the external text-evaluation service.
type EvalRequest struct {
	TaskPrompt  string
	Response    string
	TargetLevel model.Level
	Rubric      []string
}

// EvalResult is the structured grading the service returns: per-criterion
// scores on a 0-5 scale, an overall score out of 20, and brief feedback.
type EvalResult struct {
	CriteriaScores map[string]float64 `json:"criteriaScores"`
	OverallScore   float64            `json:"overallScore"`
	Feedback       string             `json:"feedback"`
}

// Evaluator is the injected grading capability. Any provider returning the
// EvalResult contract is substitutable; tests use a fake.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvalRequest) (*EvalResult, error)
}

// ScoreSubjective grades one free-form writing or speaking response with a
// single call to the evaluator. It always returns a complete ScoredQuestion:
// if the call fails, times out, or returns garbage, the partial-credit
// fallback applies and the error is logged, never propagated.
func ScoreSubjective(ctx context.Context, ev Evaluator, q model.QuestionInstance, ans model.AnswerValue) model.ScoredQuestion {
	rubric := q.Content.Rubric
	if len(rubric) == 0 {
		rubric = defaultRubric
	}

	req := EvalRequest{
		TaskPrompt:  q.Content.Prompt,
		Response:    ans.Text,
		TargetLevel: q.CEFRLevel,
		Rubric:      rubric,
	}

	result, err := ev.Evaluate(ctx, req)
	if err != nil {
		slog.Warn("subjective grading failed, awarding partial credit",
			"instance_id", q.InstanceID, "type", q.Type, "error", err)
		return fallbackScored(q)
	}

	score := clamp(result.OverallScore, 0, subjectiveMaxScore)
	return model.ScoredQuestion{
		InstanceID: q.InstanceID,
		Type:       q.Type,
		CEFRLevel:  q.CEFRLevel,
		IsCorrect:  score >= subjectivePassRatio*subjectiveMaxScore,
		Score:      score,
		MaxScore:   subjectiveMaxScore,
		AIEvaluation: &model.AIEvaluation{
			Score:          score,
			Feedback:       result.Feedback,
			CriteriaScores: result.CriteriaScores,
		},
	}
}

func fallbackScored(q model.QuestionInstance) model.ScoredQuestion {
	return model.ScoredQuestion{
		InstanceID: q.InstanceID,
		Type:       q.Type,
		CEFRLevel:  q.CEFRLevel,
		IsCorrect:  true,
		Score:      fallbackScore,
		MaxScore:   subjectiveMaxScore,
		AIEvaluation: &model.AIEvaluation{
			Score:    fallbackScore,
			Feedback: fallbackFeedback,
		},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
