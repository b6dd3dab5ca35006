package sqlstore

import (
	"context"
	"database/sql"

	"github.com/pliu/easyrent/internal/models"
)

const messageColumns = "id, property_id, sender_id, receiver_id, content, created_at, is_read"

func (s *SQLStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID.Empty() {
		msg.ID = models.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	query := s.rebind("INSERT INTO messages (" + messageColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	_, err := s.q.ExecContext(ctx, query,
		msg.ID, msg.PropertyID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt, msg.Read)
	return err
}

func (s *SQLStore) History(ctx context.Context, propertyID, a, b models.ID) ([]models.Message, error) {
	query := s.rebind(`
		SELECT ` + messageColumns + `
		FROM messages
		WHERE property_id = ?
		  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		ORDER BY seq ASC
	`)
	rows, err := s.q.QueryContext(ctx, query, propertyID, a, b, b, a)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (s *SQLStore) MarkRead(ctx context.Context, propertyID, receiverID, senderID models.ID) (int64, error) {
	query := s.rebind(`
		UPDATE messages SET is_read = ?
		WHERE property_id = ? AND receiver_id = ? AND sender_id = ? AND is_read = ?
	`)
	result, err := s.q.ExecContext(ctx, query, true, propertyID, receiverID, senderID, false)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Undelivered returns the oldest messages addressed to receiverID that no
// connection has claimed yet.
func (s *SQLStore) Undelivered(ctx context.Context, receiverID models.ID, limit int) ([]models.Message, error) {
	query := s.rebind(`
		SELECT ` + messageColumns + `
		FROM messages
		WHERE receiver_id = ? AND delivered = ?
		ORDER BY seq ASC
		LIMIT ?
	`)
	rows, err := s.q.QueryContext(ctx, query, receiverID, false, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ClaimDelivery flags id as delivered. It reports false when the message was
// already claimed.
func (s *SQLStore) ClaimDelivery(ctx context.Context, id models.ID) (bool, error) {
	query := s.rebind("UPDATE messages SET delivered = ? WHERE id = ? AND delivered = ?")
	result, err := s.q.ExecContext(ctx, query, true, id, false)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

// ReleaseDelivery puts id back in the undelivered set after a failed push.
func (s *SQLStore) ReleaseDelivery(ctx context.Context, id models.ID) error {
	query := s.rebind("UPDATE messages SET delivered = ? WHERE id = ?")
	_, err := s.q.ExecContext(ctx, query, false, id)
	return err
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.PropertyID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt, &m.Read); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
