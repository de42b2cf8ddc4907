package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fluentedge/placement/internal/model"
)

// fakeStore serves one session snapshot and records what gets persisted.
type fakeStore struct {
	data     *model.SessionData
	getErr   error
	storeErr error

	storedSessionID string
	storedSections  []model.SectionScore
	storedOverall   *model.OverallResult
}

func (f *fakeStore) GetSessionWithQuestions(_ context.Context, sessionID string) (*model.SessionData, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.data, nil
}

func (f *fakeStore) StoreResults(_ context.Context, sessionID string, sections []model.SectionScore, overall model.OverallResult) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.storedSessionID = sessionID
	f.storedSections = sections
	f.storedOverall = &overall
	return nil
}

func sessionFixture() *model.SessionData {
	return &model.SessionData{
		Session: model.TestSession{ID: "sess-1", Status: model.StatusCompleted},
		Template: model.TestTemplate{
			Title: "Placement Test A",
			Sections: []model.Section{
				{ID: "grammar", Type: "grammar"},
				{ID: "writing", Type: "writing"},
			},
		},
		Instances: []model.QuestionInstance{
			{
				InstanceID: "q1", Type: model.TypeGrammarMCQ, CEFRLevel: model.LevelA2, SectionID: "grammar",
				Content: model.QuestionContent{Options: []string{"a", "b"}, CorrectAnswer: model.OptionKey(1)},
			},
			{
				InstanceID: "q2", Type: model.TypeGrammarFillBlank, CEFRLevel: model.LevelB1, SectionID: "grammar",
				Content: model.QuestionContent{CorrectAnswers: []string{"went"}},
			},
			{
				InstanceID: "q3", Type: model.TypeWritingPrompt, CEFRLevel: model.LevelB2, SectionID: "writing",
				Content: model.QuestionContent{Prompt: "Write about your city."},
			},
		},
		Answers: []model.Answer{
			{InstanceID: "q1", Answer: json.RawMessage(`1`)},
			{InstanceID: "q3", Answer: json.RawMessage(`"My city is quite old..."`)},
			// q2 left unanswered.
		},
	}
}

func TestScoreSessionNoEvaluator(t *testing.T) {
	svc := NewService(&fakeStore{data: sessionFixture()}, nil, time.Minute)

	_, err := svc.ScoreSession(context.Background(), "sess-1")
	if !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("err = %v, want ErrNoEvaluator", err)
	}
}

func TestScoreSessionLoadErrorAbortsBeforePersist(t *testing.T) {
	st := &fakeStore{getErr: model.ErrSessionNotFound}
	svc := NewService(st, &fakeEvaluator{result: &EvalResult{OverallScore: 15}}, time.Minute)

	_, err := svc.ScoreSession(context.Background(), "missing")
	if !errors.Is(err, model.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if st.storedOverall != nil {
		t.Error("results were persisted despite the load failing")
	}
}

func TestScoreSessionStoreErrorPropagates(t *testing.T) {
	st := &fakeStore{data: sessionFixture(), storeErr: errors.New("disk full")}
	svc := NewService(st, &fakeEvaluator{result: &EvalResult{OverallScore: 15}}, time.Minute)

	if _, err := svc.ScoreSession(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected persistence error, got nil")
	}
}

func TestScoreSessionFullRun(t *testing.T) {
	st := &fakeStore{data: sessionFixture()}
	ev := &fakeEvaluator{result: &EvalResult{OverallScore: 16, Feedback: "Good."}}
	svc := NewService(st, ev, time.Minute)

	summary, err := svc.ScoreSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ScoreSession failed: %v", err)
	}

	if ev.calls != 1 {
		t.Errorf("evaluator called %d times, want 1", ev.calls)
	}
	if st.storedSessionID != "sess-1" {
		t.Errorf("stored session = %q, want sess-1", st.storedSessionID)
	}

	// q1 correct (1/1), q2 unanswered (0/1), q3 graded 16/20.
	if st.storedOverall.TotalScore != 17 || st.storedOverall.MaxPossibleScore != 22 {
		t.Errorf("totals = %v/%v, want 17/22", st.storedOverall.TotalScore, st.storedOverall.MaxPossibleScore)
	}
	if want := percentOf(17, 22); summary.PercentScore != want {
		t.Errorf("PercentScore = %d, want %d", summary.PercentScore, want)
	}
	if len(summary.SectionScores) != 2 {
		t.Fatalf("section scores = %+v, want 2 sections", summary.SectionScores)
	}
	if summary.SectionScores[0].SectionID != "grammar" || summary.SectionScores[1].SectionID != "writing" {
		t.Errorf("section order not preserved: %+v", summary.SectionScores)
	}
	if summary.RecommendedLevel == "" {
		t.Error("RecommendedLevel is empty")
	}
	if st.storedOverall.RecommendedLevel != summary.RecommendedLevel {
		t.Errorf("persisted level %q differs from summary %q", st.storedOverall.RecommendedLevel, summary.RecommendedLevel)
	}
}

func TestScoreSessionUndecodableAnswerScoresZero(t *testing.T) {
	data := sessionFixture()
	data.Answers[0].Answer = json.RawMessage(`{"bogus":true}`)

	st := &fakeStore{data: data}
	svc := NewService(st, &fakeEvaluator{result: &EvalResult{OverallScore: 16}}, time.Minute)

	summary, err := svc.ScoreSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ScoreSession failed: %v", err)
	}

	// Grammar section now has q1 undecodable (0/1) and q2 unanswered (0/1).
	grammar := summary.SectionScores[0]
	if grammar.RawScore != 0 || grammar.MaxScore != 2 {
		t.Errorf("grammar = %v/%v, want 0/2", grammar.RawScore, grammar.MaxScore)
	}
}

func TestScoreSessionEvaluatorFailureStillCompletes(t *testing.T) {
	st := &fakeStore{data: sessionFixture()}
	svc := NewService(st, &fakeEvaluator{err: errors.New("503")}, time.Minute)

	summary, err := svc.ScoreSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ScoreSession failed: %v", err)
	}

	// The writing question takes the 10/20 partial-credit fallback.
	writing := summary.SectionScores[1]
	if writing.RawScore != 10 || writing.MaxScore != 20 {
		t.Errorf("writing = %v/%v, want 10/20", writing.RawScore, writing.MaxScore)
	}
}

func TestScoreSessionDeterministicForObjectiveOnly(t *testing.T) {
	data := sessionFixture()
	// Drop the subjective question so two runs are fully deterministic.
	data.Instances = data.Instances[:2]
	data.Answers = data.Answers[:1]

	run := func() *model.ScoreSummary {
		st := &fakeStore{data: data}
		svc := NewService(st, &fakeEvaluator{result: &EvalResult{OverallScore: 16}}, time.Minute)
		summary, err := svc.ScoreSession(context.Background(), "sess-1")
		if err != nil {
			t.Fatalf("ScoreSession failed: %v", err)
		}
		return summary
	}

	first, second := run(), run()
	if first.PercentScore != second.PercentScore || first.RecommendedLevel != second.RecommendedLevel {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
}
