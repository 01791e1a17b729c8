package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"go-chat-realtime/internal/models"
	"go-chat-realtime/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "chat_test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedConversation(t *testing.T, s *Store, id string, participants ...string) {
	t.Helper()
	err := s.CreateConversation(context.Background(), &models.Conversation{ID: id, Participants: participants})
	if err != nil {
		t.Fatalf("CreateConversation(%s): %v", id, err)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateUser(ctx, &models.User{ID: "u1", Name: "Ada", TokenVersion: 2}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u, err := s.FindUser(ctx, "u1")
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	if u.Name != "Ada" || u.TokenVersion != 2 {
		t.Fatalf("user = %+v", u)
	}

	seen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := s.TouchLastSeen(ctx, "u1", seen); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}
	u, _ = s.FindUser(ctx, "u1")
	if !u.LastSeen.Equal(seen) {
		t.Fatalf("LastSeen = %v, want %v", u.LastSeen, seen)
	}

	if _, err := s.FindUser(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindUser(nobody) err = %v", err)
	}
	if err := s.TouchLastSeen(ctx, "nobody", seen); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("TouchLastSeen(nobody) err = %v", err)
	}
}

func TestConversations_CreateFindList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedConversation(t, s, "c1", "a", "b")
	err := s.CreateConversation(ctx, &models.Conversation{
		ID: "g1", IsGroup: true, GroupName: "team", GroupAdmin: "a",
		Participants: []string{"a", "c", "b"},
	})
	if err != nil {
		t.Fatalf("CreateConversation(g1): %v", err)
	}

	g, err := s.FindConversation(ctx, "g1")
	if err != nil {
		t.Fatalf("FindConversation: %v", err)
	}
	if !g.IsGroup || g.GroupAdmin != "a" || !reflect.DeepEqual(g.Participants, []string{"a", "c", "b"}) {
		t.Fatalf("group = %+v", g)
	}

	ids, err := s.ConversationIDsFor(ctx, "b")
	if err != nil || !reflect.DeepEqual(ids, []string{"c1", "g1"}) {
		t.Fatalf("ConversationIDsFor(b) = %v, %v", ids, err)
	}
	ids, _ = s.ConversationIDsFor(ctx, "nobody")
	if len(ids) != 0 {
		t.Fatalf("ConversationIDsFor(nobody) = %v", ids)
	}

	if _, err := s.FindConversation(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindConversation(missing) err = %v", err)
	}
}

func TestAddParticipant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConversation(t, s, "g1", "a", "b")

	if err := s.AddParticipant(ctx, "g1", "c"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := s.AddParticipant(ctx, "g1", "c"); err != nil {
		t.Fatalf("AddParticipant again: %v", err)
	}
	g, _ := s.FindConversation(ctx, "g1")
	if len(g.Participants) != 3 || !g.IsParticipant("c") {
		t.Fatalf("participants = %v", g.Participants)
	}
	if err := s.AddParticipant(ctx, "missing", "c"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("AddParticipant(missing) err = %v", err)
	}
}

func TestRecordDelivery_IncrementsRecipientsOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConversation(t, s, "c1", "a", "b", "c")

	// a already has a settings entry; b and c get one lazily.
	if err := s.MarkRead(ctx, "c1", "a", time.Now()); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	at := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)
	counts, err := s.RecordDelivery(ctx, "c1", "m1", at, []string{"b", "c"})
	if err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	if !reflect.DeepEqual(counts, map[string]int{"b": 1, "c": 1}) {
		t.Fatalf("counts = %v", counts)
	}

	counts, _ = s.RecordDelivery(ctx, "c1", "m2", at.Add(time.Second), []string{"b", "c"})
	if !reflect.DeepEqual(counts, map[string]int{"b": 2, "c": 2}) {
		t.Fatalf("counts after second = %v", counts)
	}

	conv, _ := s.FindConversation(ctx, "c1")
	if conv.LastMessageID != "m2" || !conv.LastMessageAt.Equal(at.Add(time.Second)) {
		t.Fatalf("last message = %q at %v", conv.LastMessageID, conv.LastMessageAt)
	}
	if len(conv.UserSettings) != 3 {
		t.Fatalf("settings entries = %+v", conv.UserSettings)
	}
	if a := conv.SettingsFor("a"); a == nil || a.UnreadCount != 0 {
		t.Fatalf("sender settings = %+v", a)
	}
	if b := conv.SettingsFor("b"); b == nil || b.UnreadCount != 2 || !b.IsUnread {
		t.Fatalf("b settings = %+v", b)
	}

	if _, err := s.RecordDelivery(ctx, "missing", "m3", at, []string{"b"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("RecordDelivery(missing) err = %v", err)
	}
}

func TestRecordDelivery_LastMessageOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConversation(t, s, "c1", "a", "b")

	t1 := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(250 * time.Millisecond)

	// m1 was written first but its delivery lands after m2's.
	if _, err := s.RecordDelivery(ctx, "c1", "m2", t2, []string{"b"}); err != nil {
		t.Fatalf("RecordDelivery(m2): %v", err)
	}
	counts, err := s.RecordDelivery(ctx, "c1", "m1", t1, []string{"b"})
	if err != nil {
		t.Fatalf("RecordDelivery(m1): %v", err)
	}
	if counts["b"] != 2 {
		t.Fatalf("late delivery not counted: %v", counts)
	}

	conv, _ := s.FindConversation(ctx, "c1")
	if conv.LastMessageID != "m2" || !conv.LastMessageAt.Equal(t2) {
		t.Fatalf("last message = %q at %v, want m2 at %v", conv.LastMessageID, conv.LastMessageAt, t2)
	}
}

func TestRecordDelivery_ConcurrentSendsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConversation(t, s, "c1", "a", "b", "c")

	const sends = 25
	var wg sync.WaitGroup
	errs := make(chan error, sends)
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// alternate senders a and c; b receives every message
			other := "c"
			if i%2 == 1 {
				other = "a"
			}
			if _, err := s.RecordDelivery(ctx, "c1", fmt.Sprintf("m%d", i), time.Now(), []string{"b", other}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordDelivery: %v", err)
	}

	b, err := s.Settings(ctx, "c1", "b")
	if err != nil {
		t.Fatalf("Settings(b): %v", err)
	}
	if b.UnreadCount != sends {
		t.Fatalf("b unread = %d, want %d", b.UnreadCount, sends)
	}
	a, _ := s.Settings(ctx, "c1", "a")
	c, _ := s.Settings(ctx, "c1", "c")
	if a.UnreadCount+c.UnreadCount != sends {
		t.Fatalf("a+c unread = %d, want %d", a.UnreadCount+c.UnreadCount, sends)
	}
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConversation(t, s, "c1", "a", "b")

	_, _ = s.RecordDelivery(ctx, "c1", "m1", time.Now(), []string{"b"})
	readAt := time.Date(2026, 5, 5, 11, 0, 0, 0, time.UTC)
	if err := s.MarkRead(ctx, "c1", "b", readAt); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	b, _ := s.Settings(ctx, "c1", "b")
	if b.UnreadCount != 0 || b.IsUnread || b.LastReadAt == nil || !b.LastReadAt.Equal(readAt) {
		t.Fatalf("settings = %+v", b)
	}
	if _, err := s.Settings(ctx, "c1", "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Settings(nobody) err = %v", err)
	}
}

func TestMessages_ReactionsAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConversation(t, s, "c1", "a", "b")

	m := &models.Message{ID: "m1", ConversationID: "c1", SenderID: "a", Content: "hi", MessageType: "text"}
	if err := s.CreateMessage(ctx, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	steps := []struct {
		user, emoji string
		want        []models.Reaction
	}{
		{"a", "👍", []models.Reaction{{UserID: "a", Emoji: "👍"}}},
		{"b", "👍", []models.Reaction{{UserID: "a", Emoji: "👍"}, {UserID: "b", Emoji: "👍"}}},
		{"a", "😂", []models.Reaction{{UserID: "a", Emoji: "😂"}, {UserID: "b", Emoji: "👍"}}},
		{"b", "👍", []models.Reaction{{UserID: "a", Emoji: "😂"}}},
	}
	for i, st := range steps {
		got, err := s.ToggleReaction(ctx, "m1", st.user, st.emoji)
		if err != nil {
			t.Fatalf("step %d ToggleReaction: %v", i, err)
		}
		if !reflect.DeepEqual(got, st.want) {
			t.Fatalf("step %d reactions = %+v, want %+v", i, got, st.want)
		}
	}

	stored, err := s.FindMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("FindMessage: %v", err)
	}
	if !reflect.DeepEqual(stored.Reactions, steps[len(steps)-1].want) {
		t.Fatalf("stored reactions = %+v", stored.Reactions)
	}

	if err := s.SoftDeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("SoftDeleteMessage: %v", err)
	}
	stored, _ = s.FindMessage(ctx, "m1")
	if !stored.IsDeleted || stored.Content != "hi" {
		t.Fatalf("after soft delete = %+v", stored)
	}

	if _, err := s.ToggleReaction(ctx, "missing", "a", "👍"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("ToggleReaction(missing) err = %v", err)
	}
	if err := s.SoftDeleteMessage(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("SoftDeleteMessage(missing) err = %v", err)
	}

	if err := s.PurgeMessage(ctx, "m1"); err != nil {
		t.Fatalf("PurgeMessage: %v", err)
	}
	if _, err := s.FindMessage(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindMessage after purge err = %v", err)
	}
	if err := s.PurgeMessage(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second PurgeMessage err = %v", err)
	}
}

func TestDeleteConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConversation(t, s, "g1", "a", "b")
	seedConversation(t, s, "c2", "a", "b")

	_ = s.CreateMessage(ctx, &models.Message{ID: "m1", ConversationID: "g1", SenderID: "a", MessageType: "text"})
	_ = s.CreateMessage(ctx, &models.Message{ID: "m2", ConversationID: "c2", SenderID: "a", MessageType: "text"})
	_, _ = s.ToggleReaction(ctx, "m1", "b", "👍")
	_, _ = s.RecordDelivery(ctx, "g1", "m1", time.Now(), []string{"b"})

	if err := s.DeleteConversation(ctx, "g1"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := s.FindConversation(ctx, "g1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindConversation(g1) err = %v", err)
	}
	if _, err := s.FindMessage(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindMessage(m1) err = %v", err)
	}
	if _, err := s.FindMessage(ctx, "m2"); err != nil {
		t.Fatalf("other conversation's message removed: %v", err)
	}
	if ids, _ := s.ConversationIDsFor(ctx, "a"); !reflect.DeepEqual(ids, []string{"c2"}) {
		t.Fatalf("ConversationIDsFor(a) = %v", ids)
	}
	if err := s.DeleteConversation(ctx, "g1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second DeleteConversation err = %v", err)
	}
}
