package store

import (
	"context"
	"errors"

	"github.com/pliu/easyrent/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrActiveDealExists is returned when inserting a deal would leave two
	// active deals on one property.
	ErrActiveDealExists = errors.New("property already has an active deal")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id models.ID) (*models.User, error)
}

// PropertyStore is the narrow slice of the listing service the core touches.
type PropertyStore interface {
	CreateProperty(ctx context.Context, p *models.Property) error
	GetProperty(ctx context.Context, id models.ID) (*models.Property, error)
	// LockProperty reads the property and, where the database supports it,
	// holds a row lock until the surrounding transaction ends.
	LockProperty(ctx context.Context, id models.ID) (*models.Property, error)
	SetPropertyStatus(ctx context.Context, id models.ID, status models.PropertyStatus) error
}

type KeyStore interface {
	// PutPublicKey upserts and reports whether the key was newly created.
	PutPublicKey(ctx context.Context, key *models.PublicKey) (bool, error)
	GetPublicKey(ctx context.Context, userID models.ID) (*models.PublicKey, error)
}

type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	// History returns the conversation between a and b about a property in
	// insertion order. The pair is unordered.
	History(ctx context.Context, propertyID, a, b models.ID) ([]models.Message, error)
	MarkRead(ctx context.Context, propertyID, receiverID, senderID models.ID) (int64, error)
	// Undelivered lists messages to receiverID not yet pushed to any
	// connection, oldest first. ClaimDelivery is the compare-and-set that
	// makes each message reach at most one push.
	Undelivered(ctx context.Context, receiverID models.ID, limit int) ([]models.Message, error)
	ClaimDelivery(ctx context.Context, id models.ID) (bool, error)
	ReleaseDelivery(ctx context.Context, id models.ID) error
}

type DealStore interface {
	CreateDeal(ctx context.Context, deal *models.Deal) error
	SaveDeal(ctx context.Context, deal *models.Deal) error
	GetDeal(ctx context.Context, id models.ID) (*models.Deal, error)
	FindDeal(ctx context.Context, propertyID, ownerID, renterID models.ID, status models.DealStatus) (*models.Deal, error)
	FindActiveDeal(ctx context.Context, propertyID models.ID) (*models.Deal, error)
	ListDealsForUser(ctx context.Context, userID models.ID) ([]models.Deal, error)
}

type Store interface {
	UserStore
	PropertyStore
	KeyStore
	MessageStore
	DealStore

	// WithTx runs fn against a transactional view of the store. fn's error
	// rolls the transaction back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
