package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// AnswerKey is the stored correct answer of an objective question. Depending on
// the question type it is either an option index (MCQ) or an accepted answer
// string (fill-in-the-blank). It keeps the raw JSON and exposes typed accessors
// so scoring never has to guess at an untyped blob.
type AnswerKey struct {
	raw json.RawMessage
}

// OptionKey builds an AnswerKey holding an option index.
func OptionKey(index int) AnswerKey {
	b, _ := json.Marshal(index)
	return AnswerKey{raw: b}
}

// TextKey builds an AnswerKey holding an accepted answer string.
func TextKey(text string) AnswerKey {
	b, _ := json.Marshal(text)
	return AnswerKey{raw: b}
}

func (k *AnswerKey) UnmarshalJSON(b []byte) error {
	k.raw = append(k.raw[:0], b...)
	return nil
}

func (k AnswerKey) MarshalJSON() ([]byte, error) {
	if len(k.raw) == 0 {
		return []byte("null"), nil
	}
	return k.raw, nil
}

// IsZero reports whether no key is stored.
func (k AnswerKey) IsZero() bool {
	return len(k.raw) == 0 || string(k.raw) == "null"
}

// Option returns the key as an option index, if it holds one.
func (k AnswerKey) Option() (int, bool) {
	var n int
	if err := json.Unmarshal(k.raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// Text returns the key as an answer string, if it holds one.
func (k AnswerKey) Text() (string, bool) {
	var s string
	if err := json.Unmarshal(k.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AnswerKind tags the decoded shape of a student answer.
type AnswerKind int

const (
	// AnswerNone marks an absent or undecodable answer.
	AnswerNone AnswerKind = iota
	// AnswerOption is a selected option index (MCQ types).
	AnswerOption
	// AnswerText is free text (fill-blank, writing, speaking transcript).
	AnswerText
	// AnswerMatches maps terms to chosen matches (vocabulary matching).
	AnswerMatches
	// AnswerSelections maps sub-question indices to chosen option indices
	// (reading comprehension).
	AnswerSelections
)

// AnswerValue is the tagged union a raw answer payload decodes into. Exactly
// one variant field is meaningful, indicated by Kind.
type AnswerValue struct {
	Kind       AnswerKind
	Option     int
	Text       string
	Matches    map[string]string
	Selections map[int]int
}

// DecodeAnswer decodes a raw answer payload into the variant appropriate for
// the question type. For speaking prompts the transcript field of an object
// payload is extracted; a bare string is accepted for all text shapes.
func DecodeAnswer(t QuestionType, raw json.RawMessage) (AnswerValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return AnswerValue{}, nil
	}

	switch t {
	case TypeGrammarMCQ, TypeVocabularyMCQ, TypeListeningMCQ:
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return AnswerValue{}, fmt.Errorf("decode option answer: %w", err)
		}
		return AnswerValue{Kind: AnswerOption, Option: n}, nil

	case TypeGrammarFillBlank, TypeListeningFillBlank, TypeWritingPrompt:
		s, err := decodeText(raw)
		if err != nil {
			return AnswerValue{}, err
		}
		return AnswerValue{Kind: AnswerText, Text: s}, nil

	case TypeSpeakingPrompt:
		s, err := decodeTranscript(raw)
		if err != nil {
			return AnswerValue{}, err
		}
		return AnswerValue{Kind: AnswerText, Text: s}, nil

	case TypeVocabularyMatching:
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return AnswerValue{}, fmt.Errorf("decode matching answer: %w", err)
		}
		return AnswerValue{Kind: AnswerMatches, Matches: m}, nil

	case TypeReadingComprehension:
		var m map[string]int
		if err := json.Unmarshal(raw, &m); err != nil {
			return AnswerValue{}, fmt.Errorf("decode reading answer: %w", err)
		}
		sel := make(map[int]int, len(m))
		for k, v := range m {
			idx, err := strconv.Atoi(k)
			if err != nil {
				return AnswerValue{}, fmt.Errorf("decode reading answer index %q: %w", k, err)
			}
			sel[idx] = v
		}
		return AnswerValue{Kind: AnswerSelections, Selections: sel}, nil

	default:
		// Unknown type: carry the payload as text so the defensive default
		// path in the scorer still sees an answered question.
		s, err := decodeText(raw)
		if err != nil {
			return AnswerValue{}, err
		}
		return AnswerValue{Kind: AnswerText, Text: s}, nil
	}
}

func decodeText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decode text answer: %w", err)
	}
	return obj.Text, nil
}

func decodeTranscript(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Transcript string `json:"transcript"`
		Text       string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decode speaking answer: %w", err)
	}
	if obj.Transcript != "" {
		return obj.Transcript, nil
	}
	return obj.Text, nil
}
