package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a test session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Level is a CEFR proficiency level, A1 (beginner) through C2 (proficient).
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// Levels lists all CEFR levels in ascending order.
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// QuestionType identifies how a question is presented and scored.
type QuestionType string

const (
	TypeReadingComprehension QuestionType = "reading_comprehension"
	TypeGrammarMCQ           QuestionType = "grammar_mcq"
	TypeGrammarFillBlank     QuestionType = "grammar_fill_blank"
	TypeVocabularyMCQ        QuestionType = "vocabulary_mcq"
	TypeVocabularyMatching   QuestionType = "vocabulary_matching"
	TypeListeningMCQ         QuestionType = "listening_mcq"
	TypeListeningFillBlank   QuestionType = "listening_fill_blank"
	TypeWritingPrompt        QuestionType = "writing_prompt"
	TypeSpeakingPrompt       QuestionType = "speaking_prompt"
)

// Subjective reports whether responses of this type need qualitative evaluation
// rather than an answer-key check.
func (t QuestionType) Subjective() bool {
	return t == TypeWritingPrompt || t == TypeSpeakingPrompt
}

// SessionStatus represents the lifecycle state of a test session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusScored     SessionStatus = "scored"
)

// Section groups test questions by skill area.
type Section struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Instructions string `json:"instructions,omitempty"`
}

// TestTemplate defines the structure of a placement test.
type TestTemplate struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// MatchPair is one term/match pair in a vocabulary matching question.
type MatchPair struct {
	Term  string `json:"term"`
	Match string `json:"match"`
}

// SubQuestion is one question of a multi-part reading comprehension item.
type SubQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// QuestionContent is the type-specific payload of a question instance.
// Only the fields relevant to the instance's type are populated.
type QuestionContent struct {
	Question       string        `json:"question,omitempty"`
	Passage        string        `json:"passage,omitempty"`
	Options        []string      `json:"options,omitempty"`
	CorrectAnswer  AnswerKey     `json:"correctAnswer,omitempty"`
	CorrectAnswers []string      `json:"correctAnswers,omitempty"`
	Pairs          []MatchPair   `json:"pairs,omitempty"`
	Questions      []SubQuestion `json:"questions,omitempty"`
	Prompt         string        `json:"prompt,omitempty"`
	Rubric         []string      `json:"rubric,omitempty"`
}

// QuestionInstance is an assessment item placed into a session.
// Instances are created when a session is generated from a template and are
// immutable afterwards.
type QuestionInstance struct {
	InstanceID string          `json:"instanceId"`
	Type       QuestionType    `json:"type"`
	CEFRLevel  Level           `json:"cefrLevel"`
	SectionID  string          `json:"sectionId"`
	Content    QuestionContent `json:"content"`
}

// Answer is a student's recorded response to one question instance.
// The payload shape depends on the question type; it is decoded with
// DecodeAnswer at scoring time.
type Answer struct {
	InstanceID       string          `json:"instanceId"`
	Answer           json.RawMessage `json:"answer"`
	TimeSpentSeconds int             `json:"timeSpentSeconds"`
}

// AIEvaluation holds the grading service's assessment of a subjective response.
type AIEvaluation struct {
	Score          float64            `json:"score"`
	Feedback       string             `json:"feedback"`
	CriteriaScores map[string]float64 `json:"criteriaScores,omitempty"`
}

// ScoredQuestion is the scoring outcome for one question instance.
// Invariant: 0 <= Score <= MaxScore and MaxScore > 0.
type ScoredQuestion struct {
	InstanceID   string        `json:"instanceId"`
	Type         QuestionType  `json:"type"`
	CEFRLevel    Level         `json:"cefrLevel"`
	IsCorrect    bool          `json:"isCorrect"`
	Score        float64       `json:"score"`
	MaxScore     float64       `json:"maxScore"`
	AIEvaluation *AIEvaluation `json:"aiEvaluation,omitempty"`
}

// SectionScore is the aggregated score for one test section.
type SectionScore struct {
	SectionID    string  `json:"sectionId"`
	SectionType  string  `json:"sectionType"`
	RawScore     float64 `json:"rawScore"`
	MaxScore     float64 `json:"maxScore"`
	PercentScore int     `json:"percentScore"`
	CEFRLevel    Level   `json:"cefrLevel"`
}

// OverallResult is the persisted outcome of a scoring run.
type OverallResult struct {
	RecommendedLevel Level    `json:"recommendedLevel"`
	ConfidenceScore  int      `json:"confidenceScore"`
	TotalScore       float64  `json:"totalScore"`
	MaxPossibleScore float64  `json:"maxPossibleScore"`
	PercentScore     int      `json:"percentScore"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	LevelApplied     bool     `json:"levelApplied"`
}

// TestSession is one student's pass through a placement test.
type TestSession struct {
	ID          string        `json:"id"`
	TemplateID  int64         `json:"templateId"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// SessionData is the immutable snapshot a scoring run operates on: the session,
// its template (section definitions), question instances in original order, and
// all recorded answers.
type SessionData struct {
	Session   TestSession
	Template  TestTemplate
	Instances []QuestionInstance
	Answers   []Answer
}

// ScoreSummary is the result payload returned to the caller after scoring.
type ScoreSummary struct {
	SessionID        string         `json:"sessionId"`
	RecommendedLevel Level          `json:"recommendedLevel"`
	PercentScore     int            `json:"percentScore"`
	ConfidenceScore  int            `json:"confidenceScore"`
	SectionScores    []SectionScore `json:"sectionScores"`
	Strengths        []string       `json:"strengths"`
	Weaknesses       []string       `json:"weaknesses"`
}

// TemplateImport is used for loading placement test templates from JSON files.
type TemplateImport struct {
	Title     string           `json:"title"`
	Sections  []Section        `json:"sections"`
	Questions []QuestionImport `json:"questions"`
}

// QuestionImport is one template question in an import file.
type QuestionImport struct {
	Type      QuestionType    `json:"type"`
	CEFRLevel Level           `json:"cefrLevel"`
	SectionID string          `json:"sectionId"`
	Content   QuestionContent `json:"content"`
}
