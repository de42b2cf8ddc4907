package scoring

import "github.com/fluentedge/placement/internal/model"

// AggregateSections groups scored questions by section and computes raw,
// max and percent scores plus a per-section CEFR level. Sections with no
// matched questions produce no entry.
func AggregateSections(sections []model.Section, instances []model.QuestionInstance, scored []model.ScoredQuestion) []model.SectionScore {
	sectionOf := make(map[string]string, len(instances))
	for _, inst := range instances {
		sectionOf[inst.InstanceID] = inst.SectionID
	}

	var out []model.SectionScore
	for _, sec := range sections {
		var members []model.ScoredQuestion
		for _, sq := range scored {
			if sectionOf[sq.InstanceID] == sec.ID {
				members = append(members, sq)
			}
		}
		if len(members) == 0 {
			continue
		}

		var raw, max float64
		for _, sq := range members {
			raw += sq.Score
			max += sq.MaxScore
		}

		out = append(out, model.SectionScore{
			SectionID:    sec.ID,
			SectionType:  sec.Type,
			RawScore:     raw,
			MaxScore:     max,
			PercentScore: percentOf(raw, max),
			CEFRLevel:    sectionLevel(members),
		})
	}
	return out
}

// sectionLevel averages the level values of the correctly answered questions
// in a section. With no correct answers the average defaults to B1's value so
// an empty bucket never poisons the downstream math.
func sectionLevel(scored []model.ScoredQuestion) model.Level {
	var sum float64
	var n int
	for _, sq := range scored {
		if sq.IsCorrect {
			sum += levelValue(sq.CEFRLevel)
			n++
		}
	}
	avg := defaultLevelValue
	if n > 0 {
		avg = sum / float64(n)
	}
	return valueToLevel(avg)
}
