package reports

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps reports in a local database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessment_reports (
		id TEXT PRIMARY KEY,
		candidate_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		overall_score INTEGER NOT NULL,
		payload_json TEXT NOT NULL,
		transcript_json TEXT NOT NULL DEFAULT '[]',
		pii_redacted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_candidate ON assessment_reports(candidate_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SaveReport(ctx context.Context, record Record) error {
	fillDefaults(&record)
	payload, transcript, err := encodeJSONColumns(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessment_reports (id, candidate_id, session_id, topic, overall_score, payload_json, transcript_json, pii_redacted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.CandidateID, record.SessionID, record.Topic, record.Payload.DiscussionAnalysis.OverallScore,
		string(payload), string(transcript), record.PIIRedacted, record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListByCandidate(ctx context.Context, candidateID string, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, session_id, topic, payload_json, transcript_json, pii_redacted, created_at
		FROM assessment_reports WHERE candidate_id = ? ORDER BY created_at DESC LIMIT ?
	`, candidateID, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var (
			r                   Record
			payload, transcript string
			createdAt           time.Time
		)
		if err := rows.Scan(&r.ID, &r.CandidateID, &r.SessionID, &r.Topic, &payload, &transcript, &r.PIIRedacted, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r.CreatedAt = createdAt.UTC()
		if err := decodeJSONColumns(&r, []byte(payload), []byte(transcript)); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
