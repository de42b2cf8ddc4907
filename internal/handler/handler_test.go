package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/fluentedge/placement/internal/i18n"
	"github.com/fluentedge/placement/internal/model"
	"github.com/fluentedge/placement/internal/scoring"
	"github.com/fluentedge/placement/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeEvaluator struct {
	result *scoring.EvalResult
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ scoring.EvalRequest) (*scoring.EvalResult, error) {
	return f.result, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, evaluator scoring.Evaluator, tokenHash []byte) (*store.Store, http.Handler) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	scorer := scoring.NewService(s, evaluator, time.Minute)
	h := New(s, scorer, tokenHash)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	return s, r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func seedTemplate(t *testing.T, s *store.Store) int64 {
	t.Helper()
	templateID, err := s.CreateTemplate(model.TemplateImport{
		Title: "Placement Test A",
		Sections: []model.Section{
			{ID: "grammar", Type: "grammar"},
			{ID: "writing", Type: "writing"},
		},
		Questions: []model.QuestionImport{
			{
				Type: model.TypeGrammarMCQ, CEFRLevel: model.LevelA2, SectionID: "grammar",
				Content: model.QuestionContent{Options: []string{"go", "goes"}, CorrectAnswer: model.OptionKey(1)},
			},
			{
				Type: model.TypeWritingPrompt, CEFRLevel: model.LevelB1, SectionID: "writing",
				Content: model.QuestionContent{Prompt: "Introduce yourself."},
			},
		},
	})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return templateID
}

func TestHealthz(t *testing.T) {
	_, router := newTestRouter(t, nil, nil)

	rec, env := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("status = %d, success = %v", rec.Code, env.Success)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, router := newTestRouter(t, &fakeEvaluator{result: &scoring.EvalResult{OverallScore: 15, Feedback: "OK"}}, nil)
	templateID := seedTemplate(t, s)

	// Create.
	rec, env := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]any{"templateId": templateID})
	if rec.Code != http.StatusCreated || !env.Success {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(env.Result, &created); err != nil || created.SessionID == "" {
		t.Fatalf("create result = %s", env.Result)
	}
	sessionID := created.SessionID

	data, err := s.GetSessionWithQuestions(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}

	// Answer the MCQ correctly.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/answers", model.Answer{
		InstanceID: data.Instances[0].InstanceID,
		Answer:     json.RawMessage(`1`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Answer the writing prompt.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/answers", model.Answer{
		InstanceID: data.Instances[1].InstanceID,
		Answer:     json.RawMessage(`"My name is Ana and I live in Porto."`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: status = %d", rec.Code)
	}

	// Complete.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status = %d", rec.Code)
	}

	// Answers are rejected after completion.
	rec, env = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/answers", model.Answer{
		InstanceID: data.Instances[0].InstanceID,
		Answer:     json.RawMessage(`0`),
	})
	if rec.Code != http.StatusConflict || env.Success {
		t.Errorf("late answer: status = %d, want 409", rec.Code)
	}

	// Score.
	rec, env = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/score", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("score: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary model.ScoreSummary
	if err := json.Unmarshal(env.Result, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.SessionID != sessionID || summary.RecommendedLevel == "" {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.SectionScores) != 2 {
		t.Errorf("section scores = %+v, want 2", summary.SectionScores)
	}

	// Results.
	rec, env = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID+"/results", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("results: status = %d", rec.Code)
	}
	var results struct {
		OverallResult model.OverallResult  `json:"overallResult"`
		SectionScores []model.SectionScore `json:"sectionScores"`
	}
	if err := json.Unmarshal(env.Result, &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.OverallResult.RecommendedLevel != summary.RecommendedLevel {
		t.Errorf("results level %q, summary level %q", results.OverallResult.RecommendedLevel, summary.RecommendedLevel)
	}
	if results.OverallResult.LevelApplied {
		t.Error("levelApplied should start false")
	}

	// Apply level.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/apply-level", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply-level: status = %d", rec.Code)
	}
	rec, env = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID+"/results", nil)
	if err := json.Unmarshal(env.Result, &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if !results.OverallResult.LevelApplied {
		t.Error("levelApplied not set after apply-level")
	}
}

func TestScoreUnknownSession(t *testing.T) {
	_, router := newTestRouter(t, &fakeEvaluator{result: &scoring.EvalResult{OverallScore: 15}}, nil)

	rec, env := doJSON(t, router, http.MethodPost, "/api/sessions/nope/score", nil)
	if rec.Code != http.StatusNotFound || env.Success {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if env.Error == "" {
		t.Error("error message missing")
	}
}

func TestScoreWithoutEvaluator(t *testing.T) {
	s, router := newTestRouter(t, nil, nil)
	templateID := seedTemplate(t, s)

	sessionID, err := s.CreateSession(templateID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec, env := doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/score", nil)
	if rec.Code != http.StatusServiceUnavailable || env.Success {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestResultsNotReady(t *testing.T) {
	s, router := newTestRouter(t, nil, nil)
	templateID := seedTemplate(t, s)

	sessionID, err := s.CreateSession(templateID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec, env := doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID+"/results", nil)
	if rec.Code != http.StatusNotFound || env.Success {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	s, router := newTestRouter(t, nil, nil)
	templateID := seedTemplate(t, s)
	sessionID, err := s.CreateSession(templateID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Missing instance ID.
	rec, _ := doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/answers", map[string]any{"answer": 1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// Unknown session.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/sessions/nope/answers", model.Answer{
		InstanceID: "i1", Answer: json.RawMessage(`1`),
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRequireToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	_, router := newTestRouter(t, nil, hash)

	// Health stays open.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer s3cret", http.StatusBadRequest}, // passes auth, fails body validation
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString("{"))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestLocalizedError(t *testing.T) {
	_, router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/nope/complete", nil)
	req.Header.Set("Accept-Language", "ru")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Error != "Сессия не найдена." {
		t.Errorf("error = %q, want the Russian translation", env.Error)
	}
}
