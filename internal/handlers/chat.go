package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pliu/easyrent/internal/apperr"
	"github.com/pliu/easyrent/internal/logger"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store"
	"github.com/pliu/easyrent/internal/ws"
)

type ChatHandler struct {
	Store store.MessageStore
	Hub   *ws.Hub
	Log   logger.Logger
}

type readReceipt struct {
	Type       string    `json:"type"`
	PropertyID models.ID `json:"propertyId"`
	ReaderID   models.ID `json:"readerId"`
	Count      int64     `json:"count"`
}

// conversation reads the route vars and checks the caller is one of the pair.
// It returns the caller and the other participant.
func conversation(w http.ResponseWriter, r *http.Request) (propertyID, self, other models.ID, ok bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return "", "", "", false
	}
	vars := mux.Vars(r)
	propertyID = models.ID(vars["propertyId"])
	a, b := models.ID(vars["userId"]), models.ID(vars["receiverId"])

	switch user.ID {
	case a:
		return propertyID, a, b, true
	case b:
		return propertyID, b, a, true
	}
	apperr.WriteHTTP(w, apperr.Forbidden("not a participant in this conversation"))
	return "", "", "", false
}

// GetHistory returns the conversation in the order it was sent.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	propertyID, self, other, ok := conversation(w, r)
	if !ok {
		return
	}

	messages, err := h.Store.History(r.Context(), propertyID, self, other)
	if err != nil {
		h.Log.Error("failed to load chat history", logger.Error(err))
		apperr.WriteHTTP(w, apperr.Persistence(err, "failed to load chat history"))
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// MarkRead marks messages the other participant sent to the caller as read
// and tells the sender if they are online.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	propertyID, self, other, ok := conversation(w, r)
	if !ok {
		return
	}

	n, err := h.Store.MarkRead(r.Context(), propertyID, self, other)
	if err != nil {
		h.Log.Error("failed to mark messages read", logger.Error(err))
		apperr.WriteHTTP(w, apperr.Persistence(err, "failed to mark messages read"))
		return
	}

	if n > 0 && h.Hub != nil {
		h.Hub.SendNotification(other, readReceipt{
			Type:       ws.TypeRead,
			PropertyID: propertyID,
			ReaderID:   self,
			Count:      n,
		})
	}

	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
