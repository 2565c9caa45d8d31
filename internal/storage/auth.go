package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/matflow/internal/common"
)

// SaveToken stores the bearer token for a backend, replacing any previous one.
func (s *SQLiteStorage) SaveToken(ctx context.Context, baseURL, token string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(baseURL, "baseURL"); err != nil {
		return err
	}
	if err := validateString(token, "token"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (base_url, token, saved_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(base_url) DO UPDATE SET token = excluded.token, saved_at = CURRENT_TIMESTAMP
	`, baseURL, token)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Token returns the stored token for a backend, or common.ErrNotFound.
func (s *SQLiteStorage) Token(ctx context.Context, baseURL string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}

	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM auth_sessions WHERE base_url = ?`, baseURL).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no token for %s: %w", baseURL, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

// DeleteToken forgets the token for a backend. It reports whether one existed.
func (s *SQLiteStorage) DeleteToken(ctx context.Context, baseURL string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE base_url = ?`, baseURL)
	if err != nil {
		return false, fmt.Errorf("failed to delete token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete token: %w", err)
	}
	return n > 0, nil
}
