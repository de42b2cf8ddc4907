package model

import "time"

// PlacementExport is the top-level JSON structure for result export.
type PlacementExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Results    []SessionResult `json:"results"`
}

// SessionResult holds one session's placement outcome for export.
type SessionResult struct {
	SessionID     string         `json:"session_id"`
	TemplateTitle string         `json:"template_title"`
	Status        SessionStatus  `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Overall       *OverallResult `json:"overall,omitempty"`
	Sections      []SectionScore `json:"sections,omitempty"`
}
