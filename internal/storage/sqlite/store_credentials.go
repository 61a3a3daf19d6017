package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/outpost-fi/sovereign/internal/challenge"
	"github.com/outpost-fi/sovereign/internal/storage"
)

// PutCredential stores a registered authenticator credential.
func (s *Store) PutCredential(ctx context.Context, credential challenge.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credential.ID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if len(credential.PublicKey) == 0 {
		return fmt.Errorf("credential public key is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("credential user id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO credentials (id, public_key, algorithm, sign_count, user_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		credential.ID,
		credential.PublicKey,
		string(credential.Algorithm),
		credential.SignCount,
		credential.UserID,
		toMillis(credential.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// GetCredential fetches one registered credential.
func (s *Store) GetCredential(ctx context.Context, credentialID string) (challenge.Credential, error) {
	if err := ctx.Err(); err != nil {
		return challenge.Credential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return challenge.Credential{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, public_key, algorithm, sign_count, user_id, created_at
FROM credentials
WHERE id = ?
`, credentialID)

	var credential challenge.Credential
	var algorithm string
	var createdAt int64
	if err := row.Scan(
		&credential.ID,
		&credential.PublicKey,
		&algorithm,
		&credential.SignCount,
		&credential.UserID,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return challenge.Credential{}, storage.ErrNotFound
		}
		return challenge.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	credential.Algorithm = challenge.Algorithm(algorithm)
	credential.CreatedAt = fromMillis(createdAt)
	return credential, nil
}

// UpdateSignCount persists a credential's advanced sign counter.
func (s *Store) UpdateSignCount(ctx context.Context, credentialID string, signCount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE credentials SET sign_count = ? WHERE id = ?`,
		signCount, credentialID)
	if err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
