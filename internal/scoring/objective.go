package scoring

import (
	"strings"

	"github.com/fluentedge/placement/internal/model"
)

// ObjectiveScore is the outcome of checking one objective question against its
// answer key.
type ObjectiveScore struct {
	IsCorrect bool
	Score     float64
	MaxScore  float64
}

// ScoreObjective scores a deterministic question type against its stored
// answer key. It is a pure function: same inputs, same result, no side
// effects, and it never fails: malformed or unknown input scores 0/1.
func ScoreObjective(t model.QuestionType, content model.QuestionContent, ans model.AnswerValue) ObjectiveScore {
	switch t {
	case model.TypeGrammarMCQ, model.TypeVocabularyMCQ, model.TypeListeningMCQ:
		return scoreMCQ(content, ans)
	case model.TypeGrammarFillBlank, model.TypeListeningFillBlank:
		return scoreFillBlank(content, ans)
	case model.TypeVocabularyMatching:
		return scoreMatching(content, ans)
	case model.TypeReadingComprehension:
		return scoreReading(content, ans)
	default:
		return ObjectiveScore{IsCorrect: false, Score: 0, MaxScore: 1}
	}
}

func scoreMCQ(content model.QuestionContent, ans model.AnswerValue) ObjectiveScore {
	correct, ok := content.CorrectAnswer.Option()
	if !ok || ans.Kind != model.AnswerOption {
		return ObjectiveScore{MaxScore: 1}
	}
	if ans.Option == correct {
		return ObjectiveScore{IsCorrect: true, Score: 1, MaxScore: 1}
	}
	return ObjectiveScore{MaxScore: 1}
}

func scoreFillBlank(content model.QuestionContent, ans model.AnswerValue) ObjectiveScore {
	accepted := content.CorrectAnswers
	if len(accepted) == 0 {
		if s, ok := content.CorrectAnswer.Text(); ok && s != "" {
			accepted = []string{s}
		}
	}
	if ans.Kind != model.AnswerText || len(accepted) == 0 {
		return ObjectiveScore{MaxScore: 1}
	}

	given := normalizeAnswer(ans.Text)
	for _, a := range accepted {
		if normalizeAnswer(a) == given {
			return ObjectiveScore{IsCorrect: true, Score: 1, MaxScore: 1}
		}
	}
	return ObjectiveScore{MaxScore: 1}
}

func scoreMatching(content model.QuestionContent, ans model.AnswerValue) ObjectiveScore {
	max := float64(len(content.Pairs))
	if max == 0 {
		return ObjectiveScore{MaxScore: 1}
	}

	var matched float64
	if ans.Kind == model.AnswerMatches {
		for _, p := range content.Pairs {
			if ans.Matches[p.Term] == p.Match {
				matched++
			}
		}
	}
	// Partial credit on the score, all-or-nothing on the correctness flag.
	return ObjectiveScore{IsCorrect: matched == max, Score: matched, MaxScore: max}
}

func scoreReading(content model.QuestionContent, ans model.AnswerValue) ObjectiveScore {
	max := float64(len(content.Questions))
	if max == 0 {
		return ObjectiveScore{MaxScore: 1}
	}

	var matched float64
	if ans.Kind == model.AnswerSelections {
		for i, sq := range content.Questions {
			if chosen, ok := ans.Selections[i]; ok && chosen == sq.CorrectAnswer {
				matched++
			}
		}
	}
	return ObjectiveScore{IsCorrect: matched == max, Score: matched, MaxScore: max}
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
