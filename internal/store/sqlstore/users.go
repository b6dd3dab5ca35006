package sqlstore

import (
	"context"

	"github.com/pliu/easyrent/internal/models"
)

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.Empty() {
		user.ID = models.NewID()
	}
	if user.Role == "" {
		user.Role = models.RoleRenter
	}
	query := s.rebind("INSERT INTO users (id, name, email, role) VALUES (?, ?, ?, ?)")
	_, err := s.q.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Role)
	return err
}

func (s *SQLStore) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, name, email, role FROM users WHERE id = ?")
	err := s.q.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &user, nil
}
