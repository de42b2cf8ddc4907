package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fluentedge/placement/internal/model"
)

// ErrNoEvaluator is returned when scoring is requested but no grading service
// is configured. This is a configuration error: it aborts the run before any
// computation.
var ErrNoEvaluator = errors.New("no grading service configured")

// SessionStore is the persistence boundary the orchestrator depends on. The
// sqlite store implements it in production; tests use in-memory fakes.
type SessionStore interface {
	GetSessionWithQuestions(ctx context.Context, sessionID string) (*model.SessionData, error)
	StoreResults(ctx context.Context, sessionID string, sections []model.SectionScore, overall model.OverallResult) error
}

// Service runs complete scoring passes over finished test sessions.
type Service struct {
	store          SessionStore
	evaluator      Evaluator
	gradingTimeout time.Duration
}

// NewService creates a scoring service. evaluator may be nil when no grading
// credentials are configured; scoring then fails fast with ErrNoEvaluator.
// gradingTimeout bounds the subjective grading phase as a whole; zero means
// no deadline.
func NewService(store SessionStore, evaluator Evaluator, gradingTimeout time.Duration) *Service {
	return &Service{store: store, evaluator: evaluator, gradingTimeout: gradingTimeout}
}

// ScoreSession loads one session snapshot, scores every question instance in
// original order, aggregates sections, determines the recommended CEFR level,
// persists the result, and returns a summary. Any error before the final
// persistence step leaves the store untouched.
func (s *Service) ScoreSession(ctx context.Context, sessionID string) (*model.ScoreSummary, error) {
	if s.evaluator == nil {
		return nil, ErrNoEvaluator
	}

	data, err := s.store.GetSessionWithQuestions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	scored := s.scoreQuestions(ctx, data)

	sectionScores := AggregateSections(data.Template.Sections, data.Instances, scored)
	levelResult := DetermineLevel(sectionScores, scored)

	var total, maxTotal float64
	for _, sq := range scored {
		total += sq.Score
		maxTotal += sq.MaxScore
	}

	overall := model.OverallResult{
		RecommendedLevel: levelResult.RecommendedLevel,
		ConfidenceScore:  levelResult.ConfidenceScore,
		TotalScore:       total,
		MaxPossibleScore: maxTotal,
		PercentScore:     percentOf(total, maxTotal),
		Strengths:        levelResult.Strengths,
		Weaknesses:       levelResult.Weaknesses,
	}

	if err := s.store.StoreResults(ctx, sessionID, sectionScores, overall); err != nil {
		return nil, fmt.Errorf("store results for session %s: %w", sessionID, err)
	}

	slog.Info("session scored",
		"session_id", sessionID,
		"level", overall.RecommendedLevel,
		"percent", overall.PercentScore,
		"confidence", overall.ConfidenceScore,
		"questions", len(scored),
	)

	return &model.ScoreSummary{
		SessionID:        sessionID,
		RecommendedLevel: overall.RecommendedLevel,
		PercentScore:     overall.PercentScore,
		ConfidenceScore:  overall.ConfidenceScore,
		SectionScores:    sectionScores,
		Strengths:        overall.Strengths,
		Weaknesses:       overall.Weaknesses,
	}, nil
}

// scoreQuestions scores every instance in its original order. Subjective
// calls share one deadline-bounded context: once the deadline expires the
// remaining evaluator calls fail immediately and take the partial-credit
// fallback instead of stalling the run.
func (s *Service) scoreQuestions(ctx context.Context, data *model.SessionData) []model.ScoredQuestion {
	gradingCtx := ctx
	if s.gradingTimeout > 0 {
		var cancel context.CancelFunc
		gradingCtx, cancel = context.WithTimeout(ctx, s.gradingTimeout)
		defer cancel()
	}

	answers := make(map[string]model.Answer, len(data.Answers))
	for _, a := range data.Answers {
		answers[a.InstanceID] = a
	}

	scored := make([]model.ScoredQuestion, 0, len(data.Instances))
	for _, inst := range data.Instances {
		raw, answered := answers[inst.InstanceID]
		if !answered {
			scored = append(scored, unansweredScored(inst))
			continue
		}

		ans, err := model.DecodeAnswer(inst.Type, raw.Answer)
		if err != nil {
			// Undecodable payloads score like unanswered questions.
			slog.Warn("undecodable answer", "instance_id", inst.InstanceID, "error", err)
			scored = append(scored, unansweredScored(inst))
			continue
		}
		if ans.Kind == model.AnswerNone {
			scored = append(scored, unansweredScored(inst))
			continue
		}

		if inst.Type.Subjective() {
			scored = append(scored, ScoreSubjective(gradingCtx, s.evaluator, inst, ans))
			continue
		}

		obj := ScoreObjective(inst.Type, inst.Content, ans)
		scored = append(scored, model.ScoredQuestion{
			InstanceID: inst.InstanceID,
			Type:       inst.Type,
			CEFRLevel:  inst.CEFRLevel,
			IsCorrect:  obj.IsCorrect,
			Score:      obj.Score,
			MaxScore:   obj.MaxScore,
		})
	}
	return scored
}

func unansweredScored(inst model.QuestionInstance) model.ScoredQuestion {
	return model.ScoredQuestion{
		InstanceID: inst.InstanceID,
		Type:       inst.Type,
		CEFRLevel:  inst.CEFRLevel,
		IsCorrect:  false,
		Score:      0,
		MaxScore:   1,
	}
}
