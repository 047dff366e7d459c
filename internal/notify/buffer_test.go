package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/pokojowo/realtime/internal/wire"
)

func note(id string) wire.Notification {
	return wire.Notification{Type: "new_message", MessageID: id, ChatID: "c1"}
}

func TestBuffer_DuplicateIgnored(t *testing.T) {
	b := NewBuffer(20)

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if !b.Add(note("m1"), nil, first) {
		t.Fatal("first Add rejected")
	}
	b.MarkRead("m1")

	if b.Add(note("m1"), nil, first.Add(time.Minute)) {
		t.Error("duplicate Add stored")
	}

	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}

	got := b.Items()[0]
	if !got.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt overwritten: got %v, want %v", got.CreatedAt, first)
	}
	if !got.Read {
		t.Error("read state overwritten by duplicate")
	}
}

func TestBuffer_EvictsOldestBeyondCapacity(t *testing.T) {
	b := NewBuffer(20)

	base := time.Now()
	for i := 0; i < 25; i++ {
		b.Add(note(fmt.Sprintf("m%02d", i)), nil, base.Add(time.Duration(i)*time.Second))
	}

	if b.Len() != 20 {
		t.Fatalf("Len = %d, want 20", b.Len())
	}

	items := b.Items()
	if items[0].ID != "m24" {
		t.Errorf("newest = %s, want m24", items[0].ID)
	}
	if items[len(items)-1].ID != "m05" {
		t.Errorf("oldest = %s, want m05 (m00-m04 evicted)", items[len(items)-1].ID)
	}
}

func TestBuffer_NewestFirst(t *testing.T) {
	b := NewBuffer(20)

	now := time.Now()
	b.Add(note("m1"), nil, now)
	b.Add(note("m2"), nil, now.Add(time.Second))

	items := b.Items()
	if items[0].ID != "m2" || items[1].ID != "m1" {
		t.Errorf("order = [%s %s], want [m2 m1]", items[0].ID, items[1].ID)
	}
}

func TestBuffer_ReadTracking(t *testing.T) {
	b := NewBuffer(20)

	now := time.Now()
	b.Add(note("m1"), nil, now)
	b.Add(note("m2"), nil, now)
	b.Add(note("m3"), nil, now)

	if got := b.UnreadCount(); got != 3 {
		t.Fatalf("UnreadCount = %d, want 3", got)
	}

	b.MarkRead("m2")
	if got := b.UnreadCount(); got != 2 {
		t.Errorf("UnreadCount after MarkRead = %d, want 2", got)
	}

	b.MarkRead("no-such-id") // no-op
	if got := b.UnreadCount(); got != 2 {
		t.Errorf("UnreadCount after unknown MarkRead = %d, want 2", got)
	}

	b.MarkAllRead()
	if got := b.UnreadCount(); got != 0 {
		t.Errorf("UnreadCount after MarkAllRead = %d, want 0", got)
	}
}

func TestBuffer_Clear(t *testing.T) {
	b := NewBuffer(20)
	b.Add(note("m1"), nil, time.Now())

	b.Clear()

	if b.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", b.Len())
	}
	// A cleared id may be stored again.
	if !b.Add(note("m1"), nil, time.Now()) {
		t.Error("Add after Clear rejected as duplicate")
	}
}

func TestNotificationID_FallsBackToLocal(t *testing.T) {
	n := wire.Notification{Type: "mutual_match"}

	a := NotificationID(n)
	b := NotificationID(n)

	if a == "" || b == "" {
		t.Fatal("empty fallback id")
	}
	if a == b {
		t.Error("fallback ids must be unique so they never dedup each other")
	}
}
