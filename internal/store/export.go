package store

import (
	"fmt"

	"github.com/fluentedge/placement/internal/model"
)

// ExportAllResults builds export-ready placement results from all sessions.
func (s *Store) ExportAllResults() ([]model.SessionResult, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var results []model.SessionResult
	for _, sess := range sessions {
		tmpl, err := s.GetTemplate(sess.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("get template %d: %w", sess.TemplateID, err)
		}

		overall, sections, err := s.GetResults(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("get results for session %s: %w", sess.ID, err)
		}

		results = append(results, model.SessionResult{
			SessionID:     sess.ID,
			TemplateTitle: tmpl.Title,
			Status:        sess.Status,
			StartedAt:     sess.StartedAt,
			CompletedAt:   sess.CompletedAt,
			Overall:       overall,
			Sections:      sections,
		})
	}

	return results, nil
}
