package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/deal"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/signing"
)

type DealHandler struct {
	Engine *deal.Engine
}

type createDealRequest struct {
	PropertyID      models.ID         `json:"propertyId"`
	OwnerID         models.ID         `json:"ownerId"`
	RenterID        models.ID         `json:"renterId"`
	StartDate       Date              `json:"startDate"`
	EndDate         Date              `json:"endDate"`
	MonthlyRent     float64           `json:"monthlyRent"`
	SecurityDeposit float64           `json:"securityDeposit"`
	Terms           string            `json:"terms"`
	Timestamp       models.Text       `json:"timestamp"`
	Signature       signing.Signature `json:"signature"`
}

type signDealRequest struct {
	PropertyID models.ID         `json:"propertyId"`
	OwnerID    models.ID         `json:"ownerId"`
	RenterID   models.ID         `json:"renterId"`
	Signature  signing.Signature `json:"signature"`
}

// CreateDeal answers 201 for a new deal and 200 when the caller's existing
// active deal is returned instead.
func (h *DealHandler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createDealRequest
	if err := decodeJSON(r, &req); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	d, created, err := h.Engine.Create(r.Context(), user.ID, deal.CreateInput{
		PropertyID:      req.PropertyID,
		OwnerID:         req.OwnerID,
		RenterID:        req.RenterID,
		StartDate:       req.StartDate.Time,
		EndDate:         req.EndDate.Time,
		MonthlyRent:     req.MonthlyRent,
		SecurityDeposit: req.SecurityDeposit,
		Terms:           req.Terms,
		Timestamp:       string(req.Timestamp),
		Signature:       req.Signature,
	})
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, d)
}

// SignDeal handles both PUT /deals/sign and PUT /deals/{id}/sign.
func (h *DealHandler) SignDeal(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req signDealRequest
	if err := decodeJSON(r, &req); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	d, err := h.Engine.Sign(r.Context(), user.ID, deal.SignInput{
		DealID:     models.ID(mux.Vars(r)["id"]),
		PropertyID: req.PropertyID,
		OwnerID:    req.OwnerID,
		RenterID:   req.RenterID,
		Signature:  req.Signature,
	})
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DealHandler) CancelDeal(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	d, err := h.Engine.Cancel(r.Context(), user.ID, models.ID(mux.Vars(r)["id"]))
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DealHandler) GetDeals(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	deals, err := h.Engine.List(r.Context(), user.ID)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deals)
}

func (h *DealHandler) GetDeal(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	d, err := h.Engine.Get(r.Context(), user, models.ID(mux.Vars(r)["id"]))
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
