package scoring

import (
	"math"

	"github.com/fluentedge/placement/internal/model"
)

// defaultLevelValue is the numeric baseline (B1) used whenever a level is
// unmapped or an average has no contributing questions.
const defaultLevelValue = 3.0

var levelValues = map[model.Level]float64{
	model.LevelA1: 1,
	model.LevelA2: 2,
	model.LevelB1: 3,
	model.LevelB2: 4,
	model.LevelC1: 5,
	model.LevelC2: 6,
}

// levelValue maps a CEFR level to its numeric value (A1=1 .. C2=6),
// defaulting to B1's value for unmapped input.
func levelValue(l model.Level) float64 {
	if v, ok := levelValues[l]; ok {
		return v
	}
	return defaultLevelValue
}

// valueToLevel converts a numeric level value back to a letter using fixed
// half-step boundaries: <=1.5 A1, <=2.5 A2, <=3.5 B1, <=4.5 B2, <=5.5 C1,
// otherwise C2.
func valueToLevel(v float64) model.Level {
	switch {
	case v <= 1.5:
		return model.LevelA1
	case v <= 2.5:
		return model.LevelA2
	case v <= 3.5:
		return model.LevelB1
	case v <= 4.5:
		return model.LevelB2
	case v <= 5.5:
		return model.LevelC1
	default:
		return model.LevelC2
	}
}

// percentOf returns round(100*raw/max) as an integer, or 0 when max is not
// positive. Rounding is half away from zero; CEFR placement is user-visible,
// so the rule is pinned by tests rather than left to the platform.
func percentOf(raw, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(100 * raw / max))
}
