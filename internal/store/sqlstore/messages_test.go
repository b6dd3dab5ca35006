package sqlstore

import (
	"fmt"
	"testing"

	"github.com/pliu/easyrent/internal/models"
)

func TestAppendMessage(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	msg := &models.Message{PropertyID: "p1", SenderID: "a", ReceiverID: "b", Content: "Hello"}
	if err := testStore.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("Failed to save message: %v", err)
	}
	if msg.ID.Empty() || msg.CreatedAt.IsZero() {
		t.Fatalf("Expected id and timestamp to be assigned, got %+v", msg)
	}

	messages, err := testStore.History(ctx, "p1", "a", "b")
	if err != nil {
		t.Fatalf("Failed to get messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Content != "Hello" || messages[0].Read {
		t.Errorf("Unexpected message %+v", messages[0])
	}
}

func TestHistoryOrderAndPairSymmetry(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	for i := 0; i < 20; i++ {
		from, to := models.ID("a"), models.ID("b")
		if i%3 == 0 {
			from, to = to, from
		}
		testStore.AppendMessage(ctx, &models.Message{PropertyID: "p1", SenderID: from, ReceiverID: to, Content: fmt.Sprint(i)})
	}
	// noise: other property, other pair
	testStore.AppendMessage(ctx, &models.Message{PropertyID: "p2", SenderID: "a", ReceiverID: "b", Content: "x"})
	testStore.AppendMessage(ctx, &models.Message{PropertyID: "p1", SenderID: "a", ReceiverID: "c", Content: "y"})

	ab, err := testStore.History(ctx, "p1", "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	ba, err := testStore.History(ctx, "p1", "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(ab) != 20 || len(ba) != 20 {
		t.Fatalf("Expected 20 messages each way, got %d and %d", len(ab), len(ba))
	}
	for i := range ab {
		if ab[i].Content != fmt.Sprint(i) {
			t.Errorf("Position %d: got %s", i, ab[i].Content)
		}
		if ab[i].ID != ba[i].ID {
			t.Errorf("Pair order changed the history at %d", i)
		}
	}
}

func TestMarkRead(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.AppendMessage(ctx, &models.Message{PropertyID: "p1", SenderID: "a", ReceiverID: "b", Content: "1"})
	testStore.AppendMessage(ctx, &models.Message{PropertyID: "p1", SenderID: "a", ReceiverID: "b", Content: "2"})
	testStore.AppendMessage(ctx, &models.Message{PropertyID: "p2", SenderID: "c", ReceiverID: "b", Content: "3"})

	n, err := testStore.MarkRead(ctx, "p1", "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2 messages marked, got %d", n)
	}

	n, _ = testStore.MarkRead(ctx, "p1", "b", "a")
	if n != 0 {
		t.Errorf("Expected a second mark to be a no-op, got %d", n)
	}

	p2, _ := testStore.History(ctx, "p2", "b", "c")
	if len(p2) != 1 || p2[0].Read {
		t.Errorf("Expected the p2 message to stay unread, got %+v", p2)
	}
}

func TestUndeliveredAndClaim(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	var msgs []*models.Message
	for _, content := range []string{"1", "2", "3"} {
		m := &models.Message{PropertyID: "p1", SenderID: "a", ReceiverID: "b", Content: content}
		if err := testStore.AppendMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
		msgs = append(msgs, m)
	}

	pending, err := testStore.Undelivered(ctx, "b", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 3 || pending[0].Content != "1" {
		t.Fatalf("Unexpected undelivered list %+v", pending)
	}

	limited, _ := testStore.Undelivered(ctx, "b", 2)
	if len(limited) != 2 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}

	claimed, err := testStore.ClaimDelivery(ctx, msgs[0].ID)
	if err != nil || !claimed {
		t.Fatalf("Expected first claim to win, got %v %v", claimed, err)
	}
	claimed, _ = testStore.ClaimDelivery(ctx, msgs[0].ID)
	if claimed {
		t.Error("Expected second claim to lose")
	}

	// Reading does not affect delivery.
	testStore.MarkRead(ctx, "p1", "b", "a")

	pending, _ = testStore.Undelivered(ctx, "b", 10)
	if len(pending) != 2 || pending[0].Content != "2" {
		t.Errorf("Expected messages 2 and 3, got %+v", pending)
	}

	if err := testStore.ReleaseDelivery(ctx, msgs[0].ID); err != nil {
		t.Fatal(err)
	}
	pending, _ = testStore.Undelivered(ctx, "b", 10)
	if len(pending) != 3 || pending[0].Content != "1" {
		t.Errorf("Expected a released message back in order, got %+v", pending)
	}
}
