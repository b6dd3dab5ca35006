package deal

import (
	"context"

	"github.com/pliu/easyrent/internal/models"
)

type EventType string

const (
	EventCreated   EventType = "created"
	EventSigned    EventType = "signed"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
)

// Event describes a committed transition. Actor is the user who caused it.
type Event struct {
	Type  EventType    `json:"event"`
	Deal  *models.Deal `json:"deal"`
	Actor models.ID    `json:"actor"`
}

// Recipient is the party that did not cause the event.
func (ev Event) Recipient() models.ID {
	if party, ok := ev.Deal.PartyOf(ev.Actor); ok {
		return ev.Deal.Counterparty(party)
	}
	return ""
}

// Notifier is told about every committed transition. Implementations must
// not block; delivery is best-effort.
type Notifier interface {
	DealChanged(ctx context.Context, ev Event)
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	for _, n := range e.notifiers {
		n.DealChanged(ctx, ev)
	}
}
