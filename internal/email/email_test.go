package email

import (
	"context"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pliu/easyrent/internal/deal"
	"github.com/pliu/easyrent/internal/logger"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store"
)

type fakeUsers map[models.ID]*models.User

func (f fakeUsers) CreateUser(ctx context.Context, u *models.User) error { return nil }

func (f fakeUsers) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

var _ store.UserStore = fakeUsers(nil)

type sentMail struct {
	addr string
	to   []string
	msg  string
}

func testDeal() *models.Deal {
	return &models.Deal{
		ID:          "deal-1",
		PropertyID:  "prop-1",
		OwnerID:     "owner",
		RenterID:    "renter",
		StartDate:   time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2027, 10, 31, 0, 0, 0, 0, time.UTC),
		MonthlyRent: 1800,
		Terms:       "No <script> please",
		Status:      models.DealCompleted,
	}
}

func TestRenderDealCompleted(t *testing.T) {
	body, err := renderDealCompleted("Ada", testDeal())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Hi Ada", "deal-1", "2026-11-01", "1800.00", "&lt;script&gt;"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected body to contain %q", want)
		}
	}
}

func TestSendWithoutHostLogsOnly(t *testing.T) {
	s := NewSender("", "587", "", "", "noreply@example.com", logger.NewNop())
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("SMTP must not be used without a host")
		return nil
	}
	if err := s.SendDealCompleted("a@example.com", "Ada", testDeal()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestNotifierMailsBothPartiesOnCompletion(t *testing.T) {
	var mu sync.Mutex
	var sent []sentMail
	s := NewSender("smtp.example.com", "587", "u", "p", "noreply@example.com", logger.NewNop())
	s.sendMail = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, sentMail{addr: addr, to: to, msg: string(msg)})
		return nil
	}

	users := fakeUsers{
		"owner":  {ID: "owner", Name: "Olive", Email: "olive@example.com"},
		"renter": {ID: "renter", Name: "Remy", Email: "remy@example.com"},
	}
	n := NewNotifier(s, users, logger.NewNop())

	n.DealChanged(context.Background(), deal.Event{Type: deal.EventSigned, Deal: testDeal(), Actor: "owner"})
	n.Wait()
	if len(sent) != 0 {
		t.Fatalf("Expected no mail for a signed event, got %d", len(sent))
	}

	n.DealChanged(context.Background(), deal.Event{Type: deal.EventCompleted, Deal: testDeal(), Actor: "owner"})
	n.Wait()

	if len(sent) != 2 {
		t.Fatalf("Expected 2 mails, got %d", len(sent))
	}
	if sent[0].addr != "smtp.example.com:587" || sent[0].to[0] != "olive@example.com" || sent[1].to[0] != "remy@example.com" {
		t.Errorf("Unexpected recipients %+v", sent)
	}
	if !strings.Contains(sent[1].msg, "Subject: Your EasyRent deal is complete") || !strings.Contains(sent[1].msg, "Hi Remy") {
		t.Errorf("Unexpected message %q", sent[1].msg)
	}
}
