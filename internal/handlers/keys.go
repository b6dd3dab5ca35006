package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/keys"
	"github.com/pliu/easyrent/internal/models"
)

type KeyHandler struct {
	Keys *keys.Registry
}

type putKeyRequest struct {
	UserID    models.ID `json:"userId"`
	PublicKey string    `json:"publicKey"`
}

// PutKey registers or rotates the caller's public key.
func (h *KeyHandler) PutKey(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req putKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	if req.UserID.Empty() {
		req.UserID = user.ID
	}

	created, err := h.Keys.Put(r.Context(), user, req.UserID, req.PublicKey)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	if created {
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Public key stored"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Public key updated"})
}

func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	key, err := h.Keys.Get(r.Context(), models.ID(mux.Vars(r)["userId"]))
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}
