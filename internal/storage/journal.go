package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/matflow/internal/model"
)

// RecordUpload appends one file outcome to the journal.
func (s *SQLiteStorage) RecordUpload(ctx context.Context, entry model.JournalEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJournalEntry(entry); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var materialID sql.NullInt64
	if entry.MaterialID != nil {
		materialID = sql.NullInt64{Int64: int64(*entry.MaterialID), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_journal (batch_id, filename, product_name, material_type, status, detail, material_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.BatchID, entry.Filename, entry.ProductName, string(entry.MaterialType),
		entry.Status, entry.Detail, materialID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record upload of %s: %w", entry.Filename, err)
	}
	return nil
}

// JournalFilter narrows ListJournal.
type JournalFilter struct {
	BatchID string
	Status  string
	Limit   int
}

// ListJournal returns journal entries, newest first.
func (s *SQLiteStorage) ListJournal(ctx context.Context, filter JournalFilter) ([]model.JournalEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, batch_id, filename, COALESCE(product_name, ''), COALESCE(material_type, ''),
		       status, COALESCE(detail, ''), material_id, created_at
		FROM upload_journal
		WHERE 1 = 1`
	var args []any
	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.JournalEntry
	for rows.Next() {
		var (
			entry        model.JournalEntry
			materialType string
			materialID   sql.NullInt64
		)
		if err := rows.Scan(&entry.ID, &entry.BatchID, &entry.Filename, &entry.ProductName, &materialType,
			&entry.Status, &entry.Detail, &materialID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.MaterialType = model.MaterialType(materialType)
		if materialID.Valid {
			id := int(materialID.Int64)
			entry.MaterialID = &id
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal: %w", err)
	}
	return entries, nil
}

// StartBatch records the start of an upload run.
func (s *SQLiteStorage) StartBatch(ctx context.Context, id string, fileCount int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, file_count, started_at) VALUES (?, ?, ?)
	`, id, fileCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to start batch %s: %w", id, err)
	}
	return nil
}

// FinishBatch stores the totals of an upload run.
func (s *SQLiteStorage) FinishBatch(ctx context.Context, id string, result model.BatchResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE batches SET success_count = ?, failure_count = ?, finished_at = ? WHERE id = ?
	`, result.SuccessCount, result.FailureCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish batch %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish batch %s: %w", id, ErrBatchNotFound)
	}
	return nil
}

// ListBatches returns recent upload runs, newest first.
func (s *SQLiteStorage) ListBatches(ctx context.Context, limit int) ([]model.BatchSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_count, success_count, failure_count, started_at, finished_at
		FROM batches
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.BatchSummary
	for rows.Next() {
		var (
			b        model.BatchSummary
			finished sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.FileCount, &b.SuccessCount, &b.FailureCount, &b.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			b.FinishedAt = &t
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batches: %w", err)
	}
	return out, nil
}
