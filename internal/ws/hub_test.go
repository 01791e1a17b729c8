package ws

import (
	"reflect"
	"sort"
	"testing"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"go-chat-realtime/internal/models"
)

func testClient(connID, userID string) *Client {
	return newClient(nil, connID, models.User{ID: userID}, rate.NewLimiter(rate.Inf, 1))
}

type received struct {
	Type string          `json:"type"`
	Room string          `json:"room"`
	Data json.RawMessage `json:"data"`
}

// drain returns the event types queued for c.
func drain(t *testing.T, c *Client) []string {
	t.Helper()
	var types []string
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return types
			}
			var ev received
			if err := json.Unmarshal(payload, &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func TestHub_RoomRouting(t *testing.T) {
	h := NewHub()
	a1, a2, b := testClient("a1", "A"), testClient("a2", "A"), testClient("b", "B")
	for _, c := range []*Client{a1, a2, b} {
		h.Register(c)
	}
	h.Join(a1, "C1")
	h.Join(b, "C1")

	h.ToRoom("C1", "new-message", nil)
	h.ToRoomExcept("C1", "user-typing", nil, "b")
	h.ToUser("A", "unread-update", nil)

	if got := drain(t, a1); !reflect.DeepEqual(got, []string{"new-message", "user-typing", "unread-update"}) {
		t.Fatalf("a1 got %v", got)
	}
	if got := drain(t, a2); !reflect.DeepEqual(got, []string{"unread-update"}) {
		t.Fatalf("a2 got %v", got)
	}
	if got := drain(t, b); !reflect.DeepEqual(got, []string{"new-message"}) {
		t.Fatalf("b got %v", got)
	}

	users := h.RoomUsers("C1")
	sort.Strings(users)
	if !reflect.DeepEqual(users, []string{"A", "B"}) {
		t.Fatalf("RoomUsers = %v", users)
	}
}

func TestHub_JoinUserAndRemoveRoom(t *testing.T) {
	h := NewHub()
	a1, a2 := testClient("a1", "A"), testClient("a2", "A")
	h.Register(a1)
	h.Register(a2)

	h.JoinUser("A", "G")
	h.ToRoom("G", "group-updated", nil)
	if len(drain(t, a1)) != 1 || len(drain(t, a2)) != 1 {
		t.Fatalf("JoinUser did not subscribe every session")
	}

	h.RemoveRoom("G")
	h.ToRoom("G", "group-updated", nil)
	if got := drain(t, a1); len(got) != 0 {
		t.Fatalf("delivery after RemoveRoom: %v", got)
	}
	if a1.rooms["G"] {
		t.Fatalf("client still records removed room")
	}

	h.JoinConn("a2", "C9")
	h.JoinConn("missing", "C9")
	if got := h.RoomUsers("C9"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("RoomUsers(C9) = %v", got)
	}
}

func TestHub_UnregisterReportsLastSession(t *testing.T) {
	h := NewHub()
	a1, a2 := testClient("a1", "A"), testClient("a2", "A")
	h.Register(a1)
	h.Register(a2)
	h.Join(a1, "C1")

	rooms, last := h.Unregister(a1)
	if last || !reflect.DeepEqual(rooms, []string{"C1"}) {
		t.Fatalf("first Unregister = %v, %v", rooms, last)
	}
	if _, ok := <-a1.send; ok {
		t.Fatalf("send channel not closed")
	}
	if _, last := h.Unregister(a1); last {
		t.Fatalf("second Unregister reported last")
	}

	h.ToRoom("C1", "new-message", nil)
	if _, last := h.Unregister(a2); !last {
		t.Fatalf("Unregister of final session not last")
	}
	if h.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d", h.ClientCount())
	}
}

func TestHub_SlowClientIsClosed(t *testing.T) {
	h := NewHub()
	slow, fast := testClient("slow", "S"), testClient("fast", "F")
	h.Register(slow)
	h.Register(fast)

	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte(`{}`)
	}
	h.Broadcast("user-online", models.PresenceData{UserID: "X"}, "")

	if !slow.closed {
		t.Fatalf("slow client not closed")
	}
	if got := drain(t, fast); !reflect.DeepEqual(got, []string{"user-online"}) {
		t.Fatalf("fast got %v", got)
	}

	// Later deliveries skip the closed client instead of panicking.
	h.Broadcast("user-online", nil, "")
	if _, last := h.Unregister(slow); !last {
		t.Fatalf("Unregister(slow) not last")
	}
}
