package scoring

import (
	"math"

	"github.com/fluentedge/placement/internal/model"
)

const (
	// thresholdAccuracy is the per-level accuracy a CEFR bucket must reach
	// for that level to qualify in the threshold scan.
	thresholdAccuracy = 0.7
	strengthPercent   = 80
	weaknessPercent   = 50
	maxSampleBonus    = 20
)

// defaultStrength is reported when no section reaches the strength bar.
const defaultStrength = "General comprehension"

// LevelResult is the outcome of level determination.
type LevelResult struct {
	RecommendedLevel model.Level
	ConfidenceScore  int
	Strengths        []string
	Weaknesses       []string
}

// DetermineLevel combines section performance and per-level accuracy into one
// recommended CEFR level with a confidence estimate and a strength/weakness
// summary. An entirely unanswered test degrades to the B1 baseline rather than
// failing.
func DetermineLevel(sections []model.SectionScore, scored []model.ScoredQuestion) LevelResult {
	weighted := weightedSectionValue(sections)
	determined := thresholdLevel(scored)

	final := (weighted + levelValue(determined)) / 2

	return LevelResult{
		RecommendedLevel: valueToLevel(final),
		ConfidenceScore:  confidence(scored),
		Strengths:        strengths(sections),
		Weaknesses:       weaknesses(sections),
	}
}

// weightedSectionValue averages section level values weighted by each
// section's percent score. Zero total weight falls back to the B1 baseline.
func weightedSectionValue(sections []model.SectionScore) float64 {
	var sum, totalWeight float64
	for _, s := range sections {
		w := float64(s.PercentScore) / 100
		sum += w * levelValue(s.CEFRLevel)
		totalWeight += w
	}
	if totalWeight == 0 {
		return defaultLevelValue
	}
	return sum / totalWeight
}

// thresholdLevel scans CEFR levels in ascending order and returns the highest
// level whose tagged questions were answered with at least 70% accuracy.
// Levels are not required to be contiguous: a gap at a lower level does not
// block a higher level from qualifying. That asymmetry rewards peak
// performance and is kept as documented behavior.
func thresholdLevel(scored []model.ScoredQuestion) model.Level {
	determined := model.LevelB1
	for _, level := range model.Levels {
		var total, correct int
		for _, sq := range scored {
			if sq.CEFRLevel != level {
				continue
			}
			total++
			if sq.IsCorrect {
				correct++
			}
		}
		if total > 0 && float64(correct)/float64(total) >= thresholdAccuracy {
			determined = level
		}
	}
	return determined
}

// confidence rewards both overall accuracy and sample size:
// min(100, accuracy*100 + bonus), where the bonus is the question count
// capped at 20.
func confidence(scored []model.ScoredQuestion) int {
	total := len(scored)
	if total == 0 {
		return 0
	}
	var correct int
	for _, sq := range scored {
		if sq.IsCorrect {
			correct++
		}
	}
	accuracy := float64(correct) / float64(total)
	bonus := float64(total)
	if bonus > maxSampleBonus {
		bonus = maxSampleBonus
	}
	return int(math.Round(math.Min(100, accuracy*100+bonus)))
}

func strengths(sections []model.SectionScore) []string {
	var out []string
	for _, s := range sections {
		if s.PercentScore >= strengthPercent {
			out = append(out, s.SectionType)
		}
	}
	if len(out) == 0 {
		out = []string{defaultStrength}
	}
	return out
}

func weaknesses(sections []model.SectionScore) []string {
	var out []string
	for _, s := range sections {
		if s.PercentScore < weaknessPercent {
			out = append(out, s.SectionType)
		}
	}
	return out
}
