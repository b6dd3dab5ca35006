package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store"
)

const dealColumns = `id, property_id, owner_id, renter_id, start_date, end_date, monthly_rent,
	security_deposit, terms, owner_signed, owner_signed_at, renter_signed, renter_signed_at,
	status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*models.Deal, error) {
	var d models.Deal
	var ownerAt, renterAt sql.NullTime
	err := row.Scan(&d.ID, &d.PropertyID, &d.OwnerID, &d.RenterID, &d.StartDate, &d.EndDate,
		&d.MonthlyRent, &d.SecurityDeposit, &d.Terms,
		&d.Signatures.Owner.Signed, &ownerAt, &d.Signatures.Renter.Signed, &renterAt,
		&d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Signatures.Owner.SignedAt = timePtr(ownerAt)
	d.Signatures.Renter.SignedAt = timePtr(renterAt)
	return &d, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// CreateDeal inserts deal. A second active deal on the same property is
// rejected by the deals_one_active_per_property index and reported as
// store.ErrActiveDealExists.
func (s *SQLStore) CreateDeal(ctx context.Context, deal *models.Deal) error {
	if deal.ID.Empty() {
		deal.ID = models.NewID()
	}
	ts := now()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = ts
	}
	deal.UpdatedAt = ts

	query := s.rebind(`INSERT INTO deals (` + dealColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.q.ExecContext(ctx, query,
		deal.ID, deal.PropertyID, deal.OwnerID, deal.RenterID, deal.StartDate, deal.EndDate,
		deal.MonthlyRent, deal.SecurityDeposit, deal.Terms,
		deal.Signatures.Owner.Signed, nullTime(deal.Signatures.Owner.SignedAt),
		deal.Signatures.Renter.Signed, nullTime(deal.Signatures.Renter.SignedAt),
		deal.Status, deal.CreatedAt, deal.UpdatedAt)
	return mapWriteErr(err)
}

// SaveDeal persists signature slots and status. Lease terms are fixed at
// creation and not rewritten.
func (s *SQLStore) SaveDeal(ctx context.Context, deal *models.Deal) error {
	deal.UpdatedAt = now()
	query := s.rebind(`
		UPDATE deals
		SET owner_signed = ?, owner_signed_at = ?, renter_signed = ?, renter_signed_at = ?,
		    status = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.q.ExecContext(ctx, query,
		deal.Signatures.Owner.Signed, nullTime(deal.Signatures.Owner.SignedAt),
		deal.Signatures.Renter.Signed, nullTime(deal.Signatures.Renter.SignedAt),
		deal.Status, deal.UpdatedAt, deal.ID)
	if err != nil {
		return mapWriteErr(err)
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

func (s *SQLStore) GetDeal(ctx context.Context, id models.ID) (*models.Deal, error) {
	query := s.rebind("SELECT " + dealColumns + " FROM deals WHERE id = ?")
	d, err := scanDeal(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return d, nil
}

func (s *SQLStore) FindDeal(ctx context.Context, propertyID, ownerID, renterID models.ID, status models.DealStatus) (*models.Deal, error) {
	query := s.rebind(`SELECT ` + dealColumns + ` FROM deals
		WHERE property_id = ? AND owner_id = ? AND renter_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`)
	d, err := scanDeal(s.q.QueryRowContext(ctx, query, propertyID, ownerID, renterID, status))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return d, nil
}

func (s *SQLStore) FindActiveDeal(ctx context.Context, propertyID models.ID) (*models.Deal, error) {
	query := s.rebind(`SELECT ` + dealColumns + ` FROM deals
		WHERE property_id = ? AND status IN (?, ?)
		LIMIT 1`)
	d, err := scanDeal(s.q.QueryRowContext(ctx, query, propertyID, models.DealPending, models.DealCompleted))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return d, nil
}

func (s *SQLStore) ListDealsForUser(ctx context.Context, userID models.ID) ([]models.Deal, error) {
	query := s.rebind(`SELECT ` + dealColumns + ` FROM deals
		WHERE owner_id = ? OR renter_id = ?
		ORDER BY created_at DESC, id`)
	rows, err := s.q.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deals := []models.Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}
