package reports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists assessment reports in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assessment_reports (
			id TEXT PRIMARY KEY,
			candidate_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			communication_score INTEGER NOT NULL,
			teamwork_score INTEGER NOT NULL,
			problem_solving_score INTEGER NOT NULL,
			overall_score INTEGER NOT NULL,
			payload JSONB NOT NULL,
			transcript JSONB NOT NULL DEFAULT '[]'::jsonb,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_assessment_reports_candidate_created ON assessment_reports (candidate_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, record Record) error {
	fillDefaults(&record)
	payload, transcript, err := encodeJSONColumns(record)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO assessment_reports (id, candidate_id, session_id, topic, communication_score, teamwork_score,
			problem_solving_score, overall_score, payload, transcript, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID,
		record.CandidateID,
		record.SessionID,
		record.Topic,
		record.Payload.CommunicationScore,
		record.Payload.TeamworkScore,
		record.Payload.ProblemSolvingScore,
		record.Payload.DiscussionAnalysis.OverallScore,
		payload,
		transcript,
		record.PIIRedacted,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCandidate(ctx context.Context, candidateID string, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)

	rows, err := s.pool.Query(ctx,
		`SELECT id, candidate_id, session_id, topic, payload, transcript, pii_redacted, created_at
		 FROM assessment_reports WHERE candidate_id=$1 ORDER BY created_at DESC LIMIT $2`,
		candidateID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r                   Record
			payload, transcript []byte
		)
		if err := rows.Scan(&r.ID, &r.CandidateID, &r.SessionID, &r.Topic, &payload, &transcript, &r.PIIRedacted, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if err := decodeJSONColumns(&r, payload, transcript); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func encodeJSONColumns(record Record) (payload, transcript []byte, err error) {
	payload, err = json.Marshal(record.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	lines := record.Transcript
	if lines == nil {
		lines = []TranscriptLine{}
	}
	transcript, err = json.Marshal(lines)
	if err != nil {
		return nil, nil, fmt.Errorf("encode transcript: %w", err)
	}
	return payload, transcript, nil
}

func decodeJSONColumns(r *Record, payload, transcript []byte) error {
	if err := json.Unmarshal(payload, &r.Payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &r.Transcript); err != nil {
			return fmt.Errorf("decode transcript: %w", err)
		}
	}
	return nil
}
