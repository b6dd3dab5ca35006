package sqlstore

import (
	"context"

	"github.com/pliu/easyrent/internal/models"
)

func (s *SQLStore) PutPublicKey(ctx context.Context, key *models.PublicKey) (bool, error) {
	if key.UpdatedAt.IsZero() {
		key.UpdatedAt = now()
	}

	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM public_keys WHERE user_id = ?)")
	if err := s.q.QueryRowContext(ctx, query, key.UserID).Scan(&exists); err != nil {
		return false, err
	}

	query = s.rebind(`
		INSERT INTO public_keys (user_id, public_key, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET public_key = excluded.public_key, updated_at = excluded.updated_at
	`)
	if _, err := s.q.ExecContext(ctx, query, key.UserID, key.PEM, key.UpdatedAt); err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *SQLStore) GetPublicKey(ctx context.Context, userID models.ID) (*models.PublicKey, error) {
	var key models.PublicKey
	query := s.rebind("SELECT user_id, public_key, updated_at FROM public_keys WHERE user_id = ?")
	err := s.q.QueryRowContext(ctx, query, userID).Scan(&key.UserID, &key.PEM, &key.UpdatedAt)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &key, nil
}
