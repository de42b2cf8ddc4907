package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluentedge/placement/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS test_templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		sections TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS template_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		template_id INTEGER NOT NULL,
		section_id TEXT NOT NULL,
		type TEXT NOT NULL,
		cefr_level TEXT NOT NULL,
		content TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (template_id) REFERENCES test_templates(id)
	);

	CREATE TABLE IF NOT EXISTS test_sessions (
		id TEXT PRIMARY KEY,
		template_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (template_id) REFERENCES test_templates(id)
	);

	CREATE TABLE IF NOT EXISTS question_instances (
		instance_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		section_id TEXT NOT NULL,
		type TEXT NOT NULL,
		cefr_level TEXT NOT NULL,
		content TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (session_id) REFERENCES test_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		instance_id TEXT NOT NULL UNIQUE,
		answer TEXT NOT NULL,
		time_spent_seconds INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (session_id) REFERENCES test_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS section_scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		section_id TEXT NOT NULL,
		section_type TEXT NOT NULL,
		raw_score REAL NOT NULL DEFAULT 0,
		max_score REAL NOT NULL DEFAULT 0,
		percent_score INTEGER NOT NULL DEFAULT 0,
		cefr_level TEXT NOT NULL,
		UNIQUE (session_id, section_id),
		FOREIGN KEY (session_id) REFERENCES test_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS overall_results (
		session_id TEXT PRIMARY KEY,
		recommended_level TEXT NOT NULL,
		confidence_score INTEGER NOT NULL DEFAULT 0,
		total_score REAL NOT NULL DEFAULT 0,
		max_possible_score REAL NOT NULL DEFAULT 0,
		percent_score INTEGER NOT NULL DEFAULT 0,
		strengths TEXT NOT NULL DEFAULT '[]',
		weaknesses TEXT NOT NULL DEFAULT '[]',
		level_applied INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (session_id) REFERENCES test_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS import_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateTemplate stores a placement test template with its question pool.
func (s *Store) CreateTemplate(imp model.TemplateImport) (int64, error) {
	sections, err := json.Marshal(imp.Sections)
	if err != nil {
		return 0, fmt.Errorf("marshal sections: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO test_templates (title, sections) VALUES (?, ?)`,
		imp.Title, string(sections),
	)
	if err != nil {
		return 0, err
	}
	templateID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, q := range imp.Questions {
		content, err := json.Marshal(q.Content)
		if err != nil {
			return 0, fmt.Errorf("marshal question content: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO template_questions (template_id, section_id, type, cefr_level, content, position)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			templateID, q.SectionID, q.Type, q.CEFRLevel, string(content), i,
		)
		if err != nil {
			return 0, err
		}
	}

	return templateID, tx.Commit()
}

// GetTemplate returns a template by ID.
func (s *Store) GetTemplate(id int64) (model.TestTemplate, error) {
	var t model.TestTemplate
	var sections string
	err := s.db.QueryRow(
		`SELECT id, title, sections FROM test_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &sections)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(sections), &t.Sections); err != nil {
		return t, fmt.Errorf("unmarshal sections: %w", err)
	}
	return t, nil
}

// TemplateCount returns the number of stored templates.
func (s *Store) TemplateCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM test_templates`).Scan(&count)
	return count, err
}

// CreateSession generates a session from a template, stamping each pool
// question into an immutable instance with a fresh ID.
func (s *Store) CreateSession(templateID int64) (string, error) {
	rows, err := s.db.Query(
		`SELECT section_id, type, cefr_level, content FROM template_questions
		 WHERE template_id = ? ORDER BY position`, templateID,
	)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	type poolQuestion struct {
		sectionID string
		qType     string
		level     string
		content   string
	}
	var pool []poolQuestion
	for rows.Next() {
		var q poolQuestion
		if err := rows.Scan(&q.sectionID, &q.qType, &q.level, &q.content); err != nil {
			return "", err
		}
		pool = append(pool, q)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(pool) == 0 {
		return "", fmt.Errorf("template %d has no questions", templateID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	sessionID := uuid.NewString()
	_, err = tx.Exec(
		`INSERT INTO test_sessions (id, template_id, status, started_at) VALUES (?, ?, ?, ?)`,
		sessionID, templateID, model.StatusInProgress, time.Now(),
	)
	if err != nil {
		return "", err
	}

	for i, q := range pool {
		_, err = tx.Exec(
			`INSERT INTO question_instances (instance_id, session_id, section_id, type, cefr_level, content, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), sessionID, q.sectionID, q.qType, q.level, q.content, i,
		)
		if err != nil {
			return "", err
		}
	}

	return sessionID, tx.Commit()
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (model.TestSession, error) {
	var sess model.TestSession
	err := s.db.QueryRow(
		`SELECT id, template_id, status, started_at, completed_at FROM test_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.TemplateID, &sess.Status, &sess.StartedAt, &sess.CompletedAt)
	if err == sql.ErrNoRows {
		return sess, model.ErrSessionNotFound
	}
	return sess, err
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.TestSession, error) {
	rows, err := s.db.Query(
		`SELECT id, template_id, status, started_at, completed_at FROM test_sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.TestSession
	for rows.Next() {
		var sess model.TestSession
		if err := rows.Scan(&sess.ID, &sess.TemplateID, &sess.Status, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RecordAnswer upserts a student's answer for one question instance.
func (s *Store) RecordAnswer(sessionID string, ans model.Answer) error {
	payload := string(ans.Answer)
	if payload == "" {
		payload = "null"
	}
	_, err := s.db.Exec(
		`INSERT INTO answers (session_id, instance_id, answer, time_spent_seconds)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(instance_id) DO UPDATE SET answer = ?, time_spent_seconds = ?`,
		sessionID, ans.InstanceID, payload, ans.TimeSpentSeconds, payload, ans.TimeSpentSeconds,
	)
	return err
}

// CompleteSession marks a session completed.
func (s *Store) CompleteSession(sessionID string) error {
	res, err := s.db.Exec(
		`UPDATE test_sessions SET status = ?, completed_at = ? WHERE id = ?`,
		model.StatusCompleted, time.Now(), sessionID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// GetSessionWithQuestions loads the full snapshot a scoring run needs: the
// session, its template, question instances in original order, and answers.
func (s *Store) GetSessionWithQuestions(ctx context.Context, sessionID string) (*model.SessionData, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	tmpl, err := s.GetTemplate(sess.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template %d: %w", sess.TemplateID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT instance_id, section_id, type, cefr_level, content FROM question_instances
		 WHERE session_id = ? ORDER BY position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []model.QuestionInstance
	for rows.Next() {
		var inst model.QuestionInstance
		var content string
		if err := rows.Scan(&inst.InstanceID, &inst.SectionID, &inst.Type, &inst.CEFRLevel, &content); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &inst.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content for instance %s: %w", inst.InstanceID, err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ansRows, err := s.db.QueryContext(ctx,
		`SELECT instance_id, answer, time_spent_seconds FROM answers WHERE session_id = ?`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer ansRows.Close()

	var answers []model.Answer
	for ansRows.Next() {
		var a model.Answer
		var payload string
		if err := ansRows.Scan(&a.InstanceID, &payload, &a.TimeSpentSeconds); err != nil {
			return nil, err
		}
		a.Answer = json.RawMessage(payload)
		answers = append(answers, a)
	}
	if err := ansRows.Err(); err != nil {
		return nil, err
	}

	return &model.SessionData{
		Session:   sess,
		Template:  tmpl,
		Instances: instances,
		Answers:   answers,
	}, nil
}

// StoreResults persists section scores and the overall result in one
// transaction and marks the session scored.
func (s *Store) StoreResults(ctx context.Context, sessionID string, sections []model.SectionScore, overall model.OverallResult) error {
	strengths, err := json.Marshal(overall.Strengths)
	if err != nil {
		return fmt.Errorf("marshal strengths: %w", err)
	}
	weaknesses, err := json.Marshal(overall.Weaknesses)
	if err != nil {
		return fmt.Errorf("marshal weaknesses: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM section_scores WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	for _, sec := range sections {
		_, err := tx.Exec(
			`INSERT INTO section_scores (session_id, section_id, section_type, raw_score, max_score, percent_score, cefr_level)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, sec.SectionID, sec.SectionType, sec.RawScore, sec.MaxScore, sec.PercentScore, sec.CEFRLevel,
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(
		`INSERT INTO overall_results (session_id, recommended_level, confidence_score, total_score, max_possible_score, percent_score, strengths, weaknesses, level_applied)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(session_id) DO UPDATE SET
			recommended_level = excluded.recommended_level,
			confidence_score = excluded.confidence_score,
			total_score = excluded.total_score,
			max_possible_score = excluded.max_possible_score,
			percent_score = excluded.percent_score,
			strengths = excluded.strengths,
			weaknesses = excluded.weaknesses`,
		sessionID, overall.RecommendedLevel, overall.ConfidenceScore, overall.TotalScore,
		overall.MaxPossibleScore, overall.PercentScore, string(strengths), string(weaknesses),
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(
		`UPDATE test_sessions SET status = ? WHERE id = ?`, model.StatusScored, sessionID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetResults returns the stored overall result and section scores for a
// session. A session with no stored result returns a nil OverallResult.
func (s *Store) GetResults(sessionID string) (*model.OverallResult, []model.SectionScore, error) {
	if _, err := s.GetSession(sessionID); err != nil {
		return nil, nil, err
	}

	var overall model.OverallResult
	var strengths, weaknesses string
	err := s.db.QueryRow(
		`SELECT recommended_level, confidence_score, total_score, max_possible_score, percent_score, strengths, weaknesses, level_applied
		 FROM overall_results WHERE session_id = ?`, sessionID,
	).Scan(&overall.RecommendedLevel, &overall.ConfidenceScore, &overall.TotalScore,
		&overall.MaxPossibleScore, &overall.PercentScore, &strengths, &weaknesses, &overall.LevelApplied)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal([]byte(strengths), &overall.Strengths); err != nil {
		return nil, nil, fmt.Errorf("unmarshal strengths: %w", err)
	}
	if err := json.Unmarshal([]byte(weaknesses), &overall.Weaknesses); err != nil {
		return nil, nil, fmt.Errorf("unmarshal weaknesses: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT section_id, section_type, raw_score, max_score, percent_score, cefr_level
		 FROM section_scores WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var sections []model.SectionScore
	for rows.Next() {
		var sec model.SectionScore
		if err := rows.Scan(&sec.SectionID, &sec.SectionType, &sec.RawScore, &sec.MaxScore, &sec.PercentScore, &sec.CEFRLevel); err != nil {
			return nil, nil, err
		}
		sections = append(sections, sec)
	}
	return &overall, sections, rows.Err()
}

// SetLevelApplied marks that the student adopted the recommended level.
func (s *Store) SetLevelApplied(sessionID string) error {
	res, err := s.db.Exec(
		`UPDATE overall_results SET level_applied = 1 WHERE session_id = ?`, sessionID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}
