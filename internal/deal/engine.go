// Package deal runs the lease negotiation state machine:
//
//	NoDeal -> pending -> completed
//	             \-----> cancelled
//
// Every transition is checked against the caller's registered public key and
// applied together with the property status change in one transaction.
package deal

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/logger"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/signing"
	"github.com/pliu/easyrent/internal/store"
)

// KeySource resolves a user's current public key. A missing key must be
// reported as NOT_FOUND/KEY.
type KeySource interface {
	PublicKey(ctx context.Context, userID models.ID) (*rsa.PublicKey, error)
}

// Recorder receives transition and rejection counts.
type Recorder interface {
	DealTransition(status string)
	DealRejected(op, code, reason string)
}

type nopRecorder struct{}

func (nopRecorder) DealTransition(string)               {}
func (nopRecorder) DealRejected(string, string, string) {}

type Engine struct {
	store     store.Store
	keys      KeySource
	log       logger.Logger
	notifiers []Notifier
	recorder  Recorder
	locks     *propertyLocks
	now       func() time.Time
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifiers = append(e.notifiers, n) }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(s store.Store, keys KeySource, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		keys:     keys,
		log:      log,
		recorder: nopRecorder{},
		locks:    newPropertyLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateInput is a deal proposal. Signature covers the creation payload
// built from PropertyID, OwnerID, RenterID, Terms and Timestamp.
type CreateInput struct {
	PropertyID      models.ID
	OwnerID         models.ID
	RenterID        models.ID
	StartDate       time.Time
	EndDate         time.Time
	MonthlyRent     float64
	SecurityDeposit float64
	Terms           string
	Timestamp       string
	Signature       signing.Signature
}

func (in *CreateInput) validate() error {
	switch {
	case in.PropertyID.Empty():
		return apperr.Validation("propertyId is required")
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return apperr.Validation("startDate and endDate are required")
	case !in.EndDate.After(in.StartDate):
		return apperr.Validation("endDate must be after startDate")
	case in.MonthlyRent < 0 || in.SecurityDeposit < 0:
		return apperr.Validation("monthlyRent and securityDeposit must not be negative")
	case in.Signature == "":
		return apperr.Validation("signature is required")
	}
	return nil
}

// Create opens a pending deal signed by caller. When the same renter already
// holds the active deal on the property and caller has signed it, that deal
// is returned unchanged with created=false. A party that has not signed it
// gets CONFLICT/SIGNATURE_REQUIRED and must call Sign.
func (e *Engine) Create(ctx context.Context, caller models.ID, in CreateInput) (*models.Deal, bool, error) {
	d, created, err := e.create(ctx, caller, in)
	if err != nil {
		e.reject("create", err)
		return nil, false, err
	}
	if created {
		e.recorder.DealTransition(string(models.DealPending))
		e.log.Info("deal created",
			logger.String("deal_id", d.ID.String()),
			logger.String("property_id", d.PropertyID.String()),
			logger.String("caller", caller.String()),
		)
		e.notify(ctx, Event{Type: EventCreated, Deal: d, Actor: caller})
	}
	return d, created, nil
}

func (e *Engine) create(ctx context.Context, caller models.ID, in CreateInput) (*models.Deal, bool, error) {
	if in.RenterID.Empty() {
		in.RenterID = caller
	}
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	// Fetched ahead of the transaction; any failure is reported at the
	// signature step.
	pub, keyErr := e.keys.PublicKey(ctx, caller)

	unlock := e.locks.lock(in.PropertyID)
	defer unlock()

	var (
		result  *models.Deal
		created bool
	)
	err := e.store.WithTx(ctx, func(tx store.Store) error {
		property, err := tx.LockProperty(ctx, in.PropertyID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(apperr.ReasonProperty, "property not found")
		}
		if err != nil {
			return apperr.Persistence(err, "failed to load property")
		}
		if !property.Status.OpenForDeals() {
			return apperr.Conflict(apperr.ReasonPropertyUnavailable,
				"property is not available for deals (status: "+string(property.Status)+")")
		}

		ownerID := in.OwnerID
		if ownerID.Empty() {
			ownerID = property.OwnerID
		}
		if caller != ownerID && caller != in.RenterID {
			return apperr.Forbidden("not authorized to create this deal")
		}
		if ownerID != property.OwnerID {
			return apperr.Validation("ownerId does not own this property")
		}
		if ownerID == in.RenterID {
			return apperr.Validation("owner and renter must be different users")
		}

		existing, err := tx.FindActiveDeal(ctx, in.PropertyID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			existing = nil
		case err != nil:
			return apperr.Persistence(err, "failed to check active deals")
		case existing.RenterID != in.RenterID:
			return apperr.Conflict(apperr.ReasonCompetingDeal, "another renter has an active deal for this property")
		}

		if keyErr != nil {
			return keyErr
		}
		payload, err := signing.Canonicalize(signing.Payload{
			PropertyID: in.PropertyID,
			OwnerID:    ownerID,
			RenterID:   in.RenterID,
			Terms:      in.Terms,
			Timestamp:  in.Timestamp,
		}, true)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "", "failed to build signing payload")
		}
		if err := signing.VerifyErr(pub, payload, in.Signature); err != nil {
			e.log.Warn("deal creation signature rejected",
				logger.String("property_id", in.PropertyID.String()),
				logger.String("caller", caller.String()),
				logger.Error(err),
			)
			return apperr.BadSignature("signature verification failed")
		}

		if existing != nil {
			// The counterparty opened this deal on its own terms. A creation
			// signature cannot stand in for signing it.
			party, _ := existing.PartyOf(caller)
			if existing.Status == models.DealPending && !existing.Slot(party).Signed {
				return apperr.Conflict(apperr.ReasonSignatureRequired,
					"a pending deal for this renter already exists; sign it instead (deal "+existing.ID.String()+")")
			}
			result = existing
			return nil
		}

		at := e.now()
		d := &models.Deal{
			PropertyID:      in.PropertyID,
			OwnerID:         ownerID,
			RenterID:        in.RenterID,
			StartDate:       in.StartDate,
			EndDate:         in.EndDate,
			MonthlyRent:     in.MonthlyRent,
			SecurityDeposit: in.SecurityDeposit,
			Terms:           in.Terms,
			Status:          models.DealPending,
			CreatedAt:       at,
		}
		creator, _ := d.PartyOf(caller)
		*d.Slot(creator) = models.SignatureSlot{Signed: true, SignedAt: &at}

		if err := tx.CreateDeal(ctx, d); err != nil {
			if errors.Is(err, store.ErrActiveDealExists) {
				return apperr.Conflict(apperr.ReasonCompetingDeal, "another renter has an active deal for this property")
			}
			return apperr.Persistence(err, "failed to save deal")
		}
		if err := tx.SetPropertyStatus(ctx, in.PropertyID, models.PropertyPending); err != nil {
			return apperr.Persistence(err, "failed to update property status")
		}
		result, created = d, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// SignInput selects the deal to sign either by DealID or by the
// (PropertyID, OwnerID, RenterID) triple.
type SignInput struct {
	DealID     models.ID
	PropertyID models.ID
	OwnerID    models.ID
	RenterID   models.ID
	Signature  signing.Signature
}

// Sign adds caller's signature to a pending deal, completing it once both
// parties have signed.
func (e *Engine) Sign(ctx context.Context, caller models.ID, in SignInput) (*models.Deal, error) {
	d, err := e.sign(ctx, caller, in)
	if err != nil {
		e.reject("sign", err)
		return nil, err
	}

	e.recorder.DealTransition(string(d.Status))
	e.log.Info("deal signed",
		logger.String("deal_id", d.ID.String()),
		logger.String("status", string(d.Status)),
		logger.String("caller", caller.String()),
	)
	ev := EventSigned
	if d.Status == models.DealCompleted {
		ev = EventCompleted
	}
	e.notify(ctx, Event{Type: ev, Deal: d, Actor: caller})
	return d, nil
}

func (e *Engine) sign(ctx context.Context, caller models.ID, in SignInput) (*models.Deal, error) {
	propertyID := in.PropertyID
	if in.DealID.Empty() {
		if in.PropertyID.Empty() || in.OwnerID.Empty() || in.RenterID.Empty() {
			return nil, apperr.Validation("propertyId, ownerId and renterId are required")
		}
	} else {
		d, err := e.store.GetDeal(ctx, in.DealID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(apperr.ReasonDeal, "deal not found")
		}
		if err != nil {
			return nil, apperr.Persistence(err, "failed to load deal")
		}
		propertyID = d.PropertyID
	}

	pub, keyErr := e.keys.PublicKey(ctx, caller)

	unlock := e.locks.lock(propertyID)
	defer unlock()

	var result *models.Deal
	err := e.store.WithTx(ctx, func(tx store.Store) error {
		d, err := e.findPending(ctx, tx, in)
		if err != nil {
			return err
		}

		property, err := tx.LockProperty(ctx, d.PropertyID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(apperr.ReasonProperty, "property not found")
		}
		if err != nil {
			return apperr.Persistence(err, "failed to load property")
		}
		if !property.Status.OpenForDeals() {
			return apperr.Conflict(apperr.ReasonPropertyUnavailable,
				"property is not available for deals (status: "+string(property.Status)+")")
		}

		party, ok := d.PartyOf(caller)
		if !ok {
			return apperr.Forbidden("not authorized to sign this deal")
		}
		slot := d.Slot(party)
		if slot.Signed {
			return apperr.Conflict(apperr.ReasonAlreadySigned, "you have already signed this deal")
		}

		if keyErr != nil {
			return keyErr
		}
		payload, err := signing.Canonicalize(signing.Payload{
			PropertyID: d.PropertyID,
			OwnerID:    d.OwnerID,
			RenterID:   d.RenterID,
		}, false)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "", "failed to build signing payload")
		}
		if err := signing.VerifyErr(pub, payload, in.Signature); err != nil {
			e.log.Warn("deal signature rejected",
				logger.String("deal_id", d.ID.String()),
				logger.String("caller", caller.String()),
				logger.Error(err),
			)
			return apperr.BadSignature("signature verification failed")
		}

		at := e.now()
		*slot = models.SignatureSlot{Signed: true, SignedAt: &at}
		if d.FullySigned() {
			d.Status = models.DealCompleted
			if err := tx.SetPropertyStatus(ctx, d.PropertyID, models.PropertyRented); err != nil {
				return apperr.Persistence(err, "failed to update property status")
			}
		}
		if err := tx.SaveDeal(ctx, d); err != nil {
			return apperr.Persistence(err, "failed to save deal")
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) findPending(ctx context.Context, tx store.Store, in SignInput) (*models.Deal, error) {
	var (
		d   *models.Deal
		err error
	)
	if in.DealID.Empty() {
		d, err = tx.FindDeal(ctx, in.PropertyID, in.OwnerID, in.RenterID, models.DealPending)
	} else {
		d, err = tx.GetDeal(ctx, in.DealID)
	}
	if errors.Is(err, store.ErrNotFound) || (err == nil && d.Status != models.DealPending) {
		return nil, apperr.NotFound(apperr.ReasonDeal, "no pending deal found for this property, owner and renter")
	}
	if err != nil {
		return nil, apperr.Persistence(err, "failed to load deal")
	}
	return d, nil
}

// Cancel moves a pending deal to cancelled and releases the property.
func (e *Engine) Cancel(ctx context.Context, caller models.ID, dealID models.ID) (*models.Deal, error) {
	d, err := e.cancel(ctx, caller, dealID)
	if err != nil {
		e.reject("cancel", err)
		return nil, err
	}
	e.recorder.DealTransition(string(models.DealCancelled))
	e.log.Info("deal cancelled",
		logger.String("deal_id", d.ID.String()),
		logger.String("caller", caller.String()),
	)
	e.notify(ctx, Event{Type: EventCancelled, Deal: d, Actor: caller})
	return d, nil
}

func (e *Engine) cancel(ctx context.Context, caller models.ID, dealID models.ID) (*models.Deal, error) {
	current, err := e.load(ctx, e.store, dealID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(current.PropertyID)
	defer unlock()

	var result *models.Deal
	err = e.store.WithTx(ctx, func(tx store.Store) error {
		d, err := e.load(ctx, tx, dealID)
		if err != nil {
			return err
		}
		if _, ok := d.PartyOf(caller); !ok {
			return apperr.Forbidden("not authorized to cancel this deal")
		}
		if d.Status != models.DealPending {
			return apperr.Conflict(apperr.ReasonDealClosed, "deal is already "+string(d.Status))
		}

		d.Status = models.DealCancelled
		if err := tx.SaveDeal(ctx, d); err != nil {
			return apperr.Persistence(err, "failed to save deal")
		}
		err = tx.SetPropertyStatus(ctx, d.PropertyID, models.PropertyAvailable)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return apperr.Persistence(err, "failed to update property status")
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a deal visible to caller.
func (e *Engine) Get(ctx context.Context, caller *models.User, dealID models.ID) (*models.Deal, error) {
	d, err := e.load(ctx, e.store, dealID)
	if err != nil {
		return nil, err
	}
	if _, ok := d.PartyOf(caller.ID); !ok && caller.Role != models.RoleAdmin {
		return nil, apperr.Forbidden("not authorized to view this deal")
	}
	return d, nil
}

// List returns the deals where caller is owner or renter, newest first.
func (e *Engine) List(ctx context.Context, caller models.ID) ([]models.Deal, error) {
	deals, err := e.store.ListDealsForUser(ctx, caller)
	if err != nil {
		return nil, apperr.Persistence(err, "failed to list deals")
	}
	return deals, nil
}

func (e *Engine) load(ctx context.Context, s store.DealStore, dealID models.ID) (*models.Deal, error) {
	if dealID.Empty() {
		return nil, apperr.Validation("deal id is required")
	}
	d, err := s.GetDeal(ctx, dealID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(apperr.ReasonDeal, "deal not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err, "failed to load deal")
	}
	return d, nil
}

func (e *Engine) reject(op string, err error) {
	ae := apperr.As(err)
	e.recorder.DealRejected(op, string(ae.Code), string(ae.Reason))
	if ae.Code == apperr.CodePersistence || ae.Code == apperr.CodeInternal {
		e.log.Error("deal operation failed", logger.String("op", op), logger.Error(err))
		return
	}
	e.log.Debug("deal operation rejected",
		logger.String("op", op),
		logger.String("code", string(ae.Code)),
		logger.String("reason", string(ae.Reason)),
	)
}
