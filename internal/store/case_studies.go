package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// CaseStudyRecord is one entry of the case study library: a whole document
// with structured metadata, kept alongside the chunked corpus so clients can
// browse full cases instead of excerpts.
type CaseStudyRecord struct {
	DocumentID          string    `json:"document_id"`
	Title               string    `json:"title"`
	SourceLabel         string    `json:"source_label"`
	SourceURL           string    `json:"source_url"`
	DocDate             string    `json:"doc_date"`
	Summary             string    `json:"summary"`
	Location            string    `json:"location"`
	Timeframe           string    `json:"timeframe"`
	Demographic         string    `json:"demographic"`
	Scale               string    `json:"scale"`
	Tags                []string  `json:"tags"`
	KeyOutcomes         []string  `json:"key_outcomes"`
	ImplementationSteps []string  `json:"implementation_steps"`
	FullContent         string    `json:"full_content,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// UpsertCaseStudy inserts or refreshes one library entry. The parent
// document row must already exist.
func (s *Store) UpsertCaseStudy(ctx context.Context, cs CaseStudyRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO case_studies (document_id, title, source_label, source_url, doc_date,
			summary, location, timeframe, demographic, scale, tags, key_outcomes,
			implementation_steps, full_content, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (document_id) DO UPDATE SET
			title = EXCLUDED.title,
			source_label = EXCLUDED.source_label,
			source_url = EXCLUDED.source_url,
			doc_date = EXCLUDED.doc_date,
			summary = EXCLUDED.summary,
			location = EXCLUDED.location,
			timeframe = EXCLUDED.timeframe,
			demographic = EXCLUDED.demographic,
			scale = EXCLUDED.scale,
			tags = EXCLUDED.tags,
			key_outcomes = EXCLUDED.key_outcomes,
			implementation_steps = EXCLUDED.implementation_steps,
			full_content = EXCLUDED.full_content,
			updated_at = now()`,
		cs.DocumentID, cs.Title, cs.SourceLabel, cs.SourceURL, cs.DocDate,
		cs.Summary, cs.Location, cs.Timeframe, cs.Demographic, cs.Scale,
		pq.Array(cs.Tags), pq.Array(cs.KeyOutcomes), pq.Array(cs.ImplementationSteps),
		cs.FullContent,
	)
	if err != nil {
		return fmt.Errorf("upsert case study %s: %w", cs.DocumentID, err)
	}
	return nil
}

// ListCaseStudies returns the library without full content, newest first.
func (s *Store) ListCaseStudies(ctx context.Context) ([]CaseStudyRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT document_id, title, source_label, source_url, doc_date,
			summary, location, timeframe, demographic, scale, tags,
			key_outcomes, implementation_steps, updated_at
		FROM case_studies ORDER BY updated_at DESC, title`)
	if err != nil {
		return nil, fmt.Errorf("query case studies: %w", err)
	}
	defer rows.Close()

	var out []CaseStudyRecord
	for rows.Next() {
		var cs CaseStudyRecord
		var tags, outcomes, steps pq.StringArray
		if err := rows.Scan(&cs.DocumentID, &cs.Title, &cs.SourceLabel, &cs.SourceURL, &cs.DocDate,
			&cs.Summary, &cs.Location, &cs.Timeframe, &cs.Demographic, &cs.Scale,
			&tags, &outcomes, &steps, &cs.UpdatedAt); err != nil {
			return nil, err
		}
		cs.Tags = tags
		cs.KeyOutcomes = outcomes
		cs.ImplementationSteps = steps
		out = append(out, cs)
	}
	return out, rows.Err()
}

// GetCaseStudy fetches one library entry including its full content.
func (s *Store) GetCaseStudy(ctx context.Context, documentID string) (CaseStudyRecord, error) {
	var cs CaseStudyRecord
	var tags, outcomes, steps pq.StringArray
	err := s.DB.QueryRowContext(ctx, `
		SELECT document_id, title, source_label, source_url, doc_date,
			summary, location, timeframe, demographic, scale, tags,
			key_outcomes, implementation_steps, full_content, updated_at
		FROM case_studies WHERE document_id = $1`, documentID).
		Scan(&cs.DocumentID, &cs.Title, &cs.SourceLabel, &cs.SourceURL, &cs.DocDate,
			&cs.Summary, &cs.Location, &cs.Timeframe, &cs.Demographic, &cs.Scale,
			&tags, &outcomes, &steps, &cs.FullContent, &cs.UpdatedAt)
	if err != nil {
		return CaseStudyRecord{}, fmt.Errorf("get case study %s: %w", documentID, err)
	}
	cs.Tags = tags
	cs.KeyOutcomes = outcomes
	cs.ImplementationSteps = steps
	return cs, nil
}
