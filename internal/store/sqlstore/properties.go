package sqlstore

import (
	"context"

	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store"
)

func (s *SQLStore) CreateProperty(ctx context.Context, p *models.Property) error {
	if p.ID.Empty() {
		p.ID = models.NewID()
	}
	if p.Status == "" {
		p.Status = models.PropertyAvailable
	}
	query := s.rebind("INSERT INTO properties (id, owner_id, title, status) VALUES (?, ?, ?, ?)")
	_, err := s.q.ExecContext(ctx, query, p.ID, p.OwnerID, p.Title, p.Status)
	return err
}

func (s *SQLStore) GetProperty(ctx context.Context, id models.ID) (*models.Property, error) {
	return s.getProperty(ctx, id, "")
}

func (s *SQLStore) LockProperty(ctx context.Context, id models.ID) (*models.Property, error) {
	suffix := ""
	// SQLite has no row locks; its single connection already serializes
	// the transaction.
	if s.driverName == "postgres" && s.inTx {
		suffix = " FOR UPDATE"
	}
	return s.getProperty(ctx, id, suffix)
}

func (s *SQLStore) getProperty(ctx context.Context, id models.ID, suffix string) (*models.Property, error) {
	var p models.Property
	query := s.rebind("SELECT id, owner_id, title, status FROM properties WHERE id = ?" + suffix)
	err := s.q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.OwnerID, &p.Title, &p.Status)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &p, nil
}

func (s *SQLStore) SetPropertyStatus(ctx context.Context, id models.ID, status models.PropertyStatus) error {
	query := s.rebind("UPDATE properties SET status = ? WHERE id = ?")
	result, err := s.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
