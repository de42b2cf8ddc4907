package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/fluentedge/placement/internal/model"
)

// fakeEvaluator returns a canned result or error and records the last request.
type fakeEvaluator struct {
	result  *EvalResult
	err     error
	lastReq EvalRequest
	calls   int
}

func (f *fakeEvaluator) Evaluate(_ context.Context, req EvalRequest) (*EvalResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func writingInstance() model.QuestionInstance {
	return model.QuestionInstance{
		InstanceID: "w1",
		Type:       model.TypeWritingPrompt,
		CEFRLevel:  model.LevelB2,
		SectionID:  "writing",
		Content: model.QuestionContent{
			Prompt: "Describe your last holiday.",
			Rubric: []string{"task achievement", "coherence", "range", "accuracy"},
		},
	}
}

func TestScoreSubjectivePassing(t *testing.T) {
	ev := &fakeEvaluator{result: &EvalResult{
		OverallScore:   16,
		Feedback:       "Well organized with minor slips.",
		CriteriaScores: map[string]float64{"accuracy": 4},
	}}

	got := ScoreSubjective(context.Background(), ev, writingInstance(), model.AnswerValue{Kind: model.AnswerText, Text: "Last summer I went..."})

	if !got.IsCorrect || got.Score != 16 || got.MaxScore != 20 {
		t.Errorf("got %+v, want correct 16/20", got)
	}
	if got.AIEvaluation == nil || got.AIEvaluation.Feedback != "Well organized with minor slips." {
		t.Errorf("AIEvaluation not carried: %+v", got.AIEvaluation)
	}
	if ev.lastReq.TargetLevel != model.LevelB2 {
		t.Errorf("TargetLevel = %q, want B2", ev.lastReq.TargetLevel)
	}
	if len(ev.lastReq.Rubric) != 4 || ev.lastReq.Rubric[0] != "task achievement" {
		t.Errorf("rubric not passed through: %v", ev.lastReq.Rubric)
	}
}

func TestScoreSubjectivePassThreshold(t *testing.T) {
	tests := []struct {
		score       float64
		wantCorrect bool
	}{
		{12, true}, // 60% exactly
		{11.9, false},
		{20, true},
		{0, false},
	}
	for _, tt := range tests {
		ev := &fakeEvaluator{result: &EvalResult{OverallScore: tt.score}}
		got := ScoreSubjective(context.Background(), ev, writingInstance(), model.AnswerValue{Kind: model.AnswerText, Text: "x"})
		if got.IsCorrect != tt.wantCorrect {
			t.Errorf("score %v: IsCorrect = %v, want %v", tt.score, got.IsCorrect, tt.wantCorrect)
		}
	}
}

func TestScoreSubjectiveClampsScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{25, 20},
		{-3, 0},
		{20, 20},
	}
	for _, tt := range tests {
		ev := &fakeEvaluator{result: &EvalResult{OverallScore: tt.in}}
		got := ScoreSubjective(context.Background(), ev, writingInstance(), model.AnswerValue{Kind: model.AnswerText, Text: "x"})
		if got.Score != tt.want {
			t.Errorf("score %v clamped to %v, want %v", tt.in, got.Score, tt.want)
		}
	}
}

func TestScoreSubjectiveFallbackOnError(t *testing.T) {
	ev := &fakeEvaluator{err: errors.New("upstream timeout")}

	got := ScoreSubjective(context.Background(), ev, writingInstance(), model.AnswerValue{Kind: model.AnswerText, Text: "x"})

	if !got.IsCorrect || got.Score != 10 || got.MaxScore != 20 {
		t.Errorf("fallback = %+v, want correct 10/20", got)
	}
	if got.AIEvaluation == nil || got.AIEvaluation.Feedback == "" {
		t.Errorf("fallback must carry feedback, got %+v", got.AIEvaluation)
	}
}

func TestScoreSubjectiveDefaultRubric(t *testing.T) {
	inst := writingInstance()
	inst.Content.Rubric = nil

	ev := &fakeEvaluator{result: &EvalResult{OverallScore: 14}}
	ScoreSubjective(context.Background(), ev, inst, model.AnswerValue{Kind: model.AnswerText, Text: "x"})

	want := []string{"content", "organization", "language", "accuracy"}
	if len(ev.lastReq.Rubric) != len(want) {
		t.Fatalf("rubric = %v, want %v", ev.lastReq.Rubric, want)
	}
	for i, r := range want {
		if ev.lastReq.Rubric[i] != r {
			t.Errorf("rubric[%d] = %q, want %q", i, ev.lastReq.Rubric[i], r)
		}
	}
}
