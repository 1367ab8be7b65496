// Package store persists knowledge-base documents and chunks in Postgres.
// The store is the system of record; the search index is rebuilt from it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/civicworks/coachtool/internal/kb"
)

type Store struct {
	DB *sql.DB
}

// DocumentRecord is one ingested document's metadata.
type DocumentRecord struct {
	ID          string
	Name        string
	SourceLabel string
	SourceURL   string
	DocType     string
	ContentType string
	DocDate     string
	IngestedAt  time.Time
}

// NewWithDSN opens a Postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// ReplaceDocumentChunks supersedes a document's chunk set wholesale inside
// one transaction: delete-then-insert, so re-ingestion is idempotent.
func (s *Store) ReplaceDocumentChunks(ctx context.Context, doc DocumentRecord, chunks []kb.ChunkRecord) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, name, source_label, source_url, doc_type, content_type, doc_date, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source_label = EXCLUDED.source_label,
			source_url = EXCLUDED.source_url,
			doc_type = EXCLUDED.doc_type,
			content_type = EXCLUDED.content_type,
			doc_date = EXCLUDED.doc_date,
			ingested_at = now()`,
		doc.ID, doc.Name, doc.SourceLabel, doc.SourceURL, doc.DocType, doc.ContentType, doc.DocDate,
	); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete old chunks for %s: %w", doc.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, doc_name, source_label, source_url, doc_type, content_type,
			section_name, chunk_index, total_chunks, doc_date, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.DocName, c.SourceLabel, c.SourceURL, c.DocType, c.ContentType,
			c.SectionName, c.ChunkIndex, c.TotalChunks, c.DocDate, c.Content, pq.Array(toFloat64(c.Embedding)),
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// ListChunksByDocument returns a document's chunks, ascending by index.
func (s *Store) ListChunksByDocument(ctx context.Context, documentID string) ([]kb.ChunkRecord, error) {
	rows, err := s.DB.QueryContext(ctx, chunkSelect+` WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks for %s: %w", documentID, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// AllChunks loads the full corpus, used to rebuild the search index.
func (s *Store) AllChunks(ctx context.Context) ([]kb.ChunkRecord, error) {
	rows, err := s.DB.QueryContext(ctx, chunkSelect+` ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("query all chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListDocuments returns all ingested documents.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, source_label, source_url, doc_type, content_type, doc_date, ingested_at
		FROM documents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.ID, &d.Name, &d.SourceLabel, &d.SourceURL, &d.DocType, &d.ContentType, &d.DocDate, &d.IngestedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// ClearAll empties the knowledge base: documents, chunks and the case study
// library. Used before a full re-ingest.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `TRUNCATE documents CASCADE`); err != nil {
		return fmt.Errorf("clear knowledge base: %w", err)
	}
	return nil
}

const chunkSelect = `
	SELECT id, document_id, doc_name, source_label, source_url, doc_type, content_type,
		section_name, chunk_index, total_chunks, doc_date, content, embedding
	FROM chunks`

func scanChunks(rows *sql.Rows) ([]kb.ChunkRecord, error) {
	var out []kb.ChunkRecord
	for rows.Next() {
		var c kb.ChunkRecord
		var emb pq.Float64Array
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.DocName, &c.SourceLabel, &c.SourceURL, &c.DocType,
			&c.ContentType, &c.SectionName, &c.ChunkIndex, &c.TotalChunks, &c.DocDate, &c.Content, &emb); err != nil {
			return nil, err
		}
		c.Embedding = toFloat32(emb)
		out = append(out, c)
	}
	return out, rows.Err()
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func toFloat32(in []float64) []float32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
