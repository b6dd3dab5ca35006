// Package keys holds the one current public signing key per user. Private
// keys never reach the server.
package keys

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/logger"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/signing"
	"github.com/pliu/easyrent/internal/store"
)

type Registry struct {
	store store.KeyStore
	log   logger.Logger
}

func NewRegistry(s store.KeyStore, log logger.Logger) *Registry {
	return &Registry{store: s, log: log}
}

// Put stores pemText as userID's current key, replacing any earlier one.
// caller must be userID or an admin. The bool reports whether this is the
// user's first key.
func (r *Registry) Put(ctx context.Context, caller *models.User, userID models.ID, pemText string) (bool, error) {
	if userID.Empty() {
		return false, apperr.Validation("userId is required")
	}
	if strings.TrimSpace(pemText) == "" {
		return false, apperr.Validation("publicKey is required")
	}
	if caller == nil || (caller.ID != userID && caller.Role != models.RoleAdmin) {
		return false, apperr.Forbidden("cannot register a key for another user")
	}
	if _, err := signing.ParsePublicKeyPEM(pemText); err != nil {
		return false, apperr.Wrap(err, apperr.CodeValidation, "", "invalid public key: "+err.Error())
	}

	created, err := r.store.PutPublicKey(ctx, &models.PublicKey{
		UserID: userID,
		PEM:    strings.TrimSpace(pemText),
	})
	if err != nil {
		return false, apperr.Persistence(err, "failed to store public key")
	}

	r.log.Info("public key registered",
		logger.String("user_id", userID.String()),
		logger.Bool("rotated", !created),
	)
	return created, nil
}

// Get returns the stored record. A missing key is NOT_FOUND/KEY so clients
// can provision one instead of treating it as a rejection.
func (r *Registry) Get(ctx context.Context, userID models.ID) (*models.PublicKey, error) {
	key, err := r.store.GetPublicKey(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(apperr.ReasonKey, "no public key registered for user")
	}
	if err != nil {
		return nil, apperr.Persistence(err, "failed to load public key")
	}
	return key, nil
}

// PublicKey returns userID's parsed RSA key.
func (r *Registry) PublicKey(ctx context.Context, userID models.ID) (*rsa.PublicKey, error) {
	rec, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	pub, err := signing.ParsePublicKeyPEM(rec.PEM)
	if err != nil {
		// Keys are validated on Put, so this only happens with rows written
		// by something else.
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "stored public key is unusable")
	}
	return pub, nil
}
