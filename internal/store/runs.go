package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// runTimeLayout has fixed-width fractions so stored times sort as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InsertImportRun records a finished run and sets its ID.
func (s *Store) InsertImportRun(ctx context.Context, run *ImportRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		"INSERT INTO import_runs (id, jurisdiction_id, started_at, finished_at, created, updated, unchanged, failed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		run.ID, run.JurisdictionID,
		run.StartedAt.UTC().Format(runTimeLayout), run.FinishedAt.UTC().Format(runTimeLayout),
		run.Created, run.Updated, run.Unchanged, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// LastImport returns the most recent run for a jurisdiction, or nil.
func (s *Store) LastImport(ctx context.Context, jurisdictionID string) (*ImportRun, error) {
	run := &ImportRun{}
	var started, finished string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		"SELECT id, jurisdiction_id, started_at, finished_at, created, updated, unchanged, failed FROM import_runs WHERE jurisdiction_id = ? ORDER BY finished_at DESC LIMIT 1"),
		jurisdictionID,
	).Scan(&run.ID, &run.JurisdictionID, &started, &finished, &run.Created, &run.Updated, &run.Unchanged, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last import: %w", err)
	}
	if run.StartedAt, err = time.Parse(runTimeLayout, started); err != nil {
		return nil, fmt.Errorf("last import: started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(runTimeLayout, finished); err != nil {
		return nil, fmt.Errorf("last import: finished_at: %w", err)
	}
	return run, nil
}
