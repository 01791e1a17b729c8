package presence

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"go-chat-realtime/internal/metrics"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func backends(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"local": NewLocalStore(),
		"redis": rs,
	}
}

func mustConn(t *testing.T, s Store, userID string) (string, bool) {
	t.Helper()
	c, ok, err := s.Connection(context.Background(), userID)
	if err != nil {
		t.Fatalf("Connection(%s): %v", userID, err)
	}
	return c, ok
}

func TestStore_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.SetOnline(ctx, "a", "c1")
			_ = s.SetOnline(ctx, "a", "c2")

			if c, ok := mustConn(t, s, "a"); !ok || c != "c2" {
				t.Fatalf("Connection(a) = %q,%v want c2", c, ok)
			}

			// The stale connection closing keeps the newer mapping.
			_ = s.SetOffline(ctx, "a", "c1")
			if c, ok := mustConn(t, s, "a"); !ok || c != "c2" {
				t.Fatalf("after stale offline Connection(a) = %q,%v want c2", c, ok)
			}
			if _, ok, _ := s.User(ctx, "c1"); ok {
				t.Fatal("User(c1) still mapped")
			}

			_ = s.SetOffline(ctx, "a", "c2")
			if c, ok := mustConn(t, s, "a"); ok {
				t.Fatalf("after offline Connection(a) = %q, want none", c)
			}
			if _, ok, _ := s.User(ctx, "c2"); ok {
				t.Fatal("User(c2) still mapped")
			}
		})
	}
}

func TestStore_IdempotentAndListing(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.SetOnline(ctx, "a", "c1")
			_ = s.SetOnline(ctx, "a", "c1")
			_ = s.SetOnline(ctx, "b", "c2")

			if u, ok, err := s.User(ctx, "c2"); err != nil || !ok || u != "b" {
				t.Fatalf("User(c2) = %q,%v,%v", u, ok, err)
			}
			online, err := s.Online(ctx)
			if err != nil {
				t.Fatalf("Online: %v", err)
			}
			want := map[string]string{"a": "c1", "b": "c2"}
			if !reflect.DeepEqual(online, want) {
				t.Fatalf("Online = %v, want %v", online, want)
			}

			// Offline for an unknown pair is harmless.
			if err := s.SetOffline(ctx, "zz", "nope"); err != nil {
				t.Fatalf("SetOffline unknown: %v", err)
			}
		})
	}
}

type op struct {
	online bool
	user   string
	conn   string
}

// TestStore_BackendEquivalence replays the same operations against both
// backends and compares everything observable after each step.
func TestStore_BackendEquivalence(t *testing.T) {
	ctx := context.Background()
	local := NewLocalStore()
	durable, _ := newRedisStore(t)

	users := []string{"a", "b", "c"}
	var ops []op
	for i := 0; i < 60; i++ {
		ops = append(ops, op{
			online: i%3 != 2,
			user:   users[(i*7)%len(users)],
			conn:   fmt.Sprintf("c%d", (i*5)%4),
		})
	}

	for i, o := range ops {
		for _, s := range []Store{local, durable} {
			var err error
			if o.online {
				err = s.SetOnline(ctx, o.user, o.conn)
			} else {
				err = s.SetOffline(ctx, o.user, o.conn)
			}
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}

		lo, _ := local.Online(ctx)
		do, _ := durable.Online(ctx)
		if !reflect.DeepEqual(lo, do) {
			t.Fatalf("step %d (%+v): local %v != redis %v", i, o, lo, do)
		}
		for c := 0; c < 4; c++ {
			conn := fmt.Sprintf("c%d", c)
			lu, lok, _ := local.User(ctx, conn)
			du, dok, _ := durable.User(ctx, conn)
			if lu != du || lok != dok {
				t.Fatalf("step %d: User(%s) local %q,%v redis %q,%v", i, conn, lu, lok, du, dok)
			}
		}
	}
}

// flakyStore fails the first n calls and records every call.
type flakyStore struct {
	Store
	failures int
	calls    int
}

var errDown = errors.New("backend down")

func (f *flakyStore) fail() error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errDown
	}
	return nil
}

func (f *flakyStore) SetOnline(ctx context.Context, u, c string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.SetOnline(ctx, u, c)
}

func (f *flakyStore) Connection(ctx context.Context, u string) (string, bool, error) {
	if err := f.fail(); err != nil {
		return "", false, err
	}
	return f.Store.Connection(ctx, u)
}

func TestResilient_TransientFailureDegradesOneCall(t *testing.T) {
	ctx := context.Background()
	durable, _ := newRedisStore(t)
	flaky := &flakyStore{Store: durable, failures: 1}
	r := NewResilient(flaky, NewLocalStore())

	base := testutil.ToFloat64(metrics.BackendFallbacks.WithLabelValues("presence", "set_online"))

	// First write fails on the durable path and lands in the local store.
	if err := r.SetOnline(ctx, "a", "c1"); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	if got := testutil.ToFloat64(metrics.BackendFallbacks.WithLabelValues("presence", "set_online")); got != base+1 {
		t.Fatalf("fallbacks = %v, want %v", got, base+1)
	}

	// The durable path is still tried on the next call.
	if err := r.SetOnline(ctx, "b", "c2"); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	if flaky.calls != 2 {
		t.Fatalf("durable calls = %d, want 2", flaky.calls)
	}
	if c, ok, _ := durable.Connection(ctx, "b"); !ok || c != "c2" {
		t.Fatalf("durable Connection(b) = %q,%v", c, ok)
	}
	if !r.Durable() {
		t.Fatal("Durable() cleared after a transient failure")
	}
}

func TestResilient_ReadFallsBackToMirroredWrite(t *testing.T) {
	ctx := context.Background()
	durable, _ := newRedisStore(t)
	flaky := &flakyStore{Store: durable}
	r := NewResilient(flaky, NewLocalStore())

	_ = r.SetOnline(ctx, "a", "c1")
	flaky.failures = 1

	if c, ok, err := r.Connection(ctx, "a"); err != nil || !ok || c != "c1" {
		t.Fatalf("fallback Connection(a) = %q,%v,%v", c, ok, err)
	}
}

func TestResilient_UnavailableAtStartupUsesLocal(t *testing.T) {
	ctx := context.Background()
	r := NewResilient(nil, NewLocalStore())
	if r.Durable() {
		t.Fatal("Durable() = true without a backend")
	}
	_ = r.SetOnline(ctx, "a", "c1")
	if u, ok, _ := r.User(ctx, "c1"); !ok || u != "a" {
		t.Fatalf("User(c1) = %q,%v", u, ok)
	}
	_ = r.SetOffline(ctx, "a", "c1")
	if online, _ := r.Online(ctx); len(online) != 0 {
		t.Fatalf("Online = %v, want empty", online)
	}
}

func TestResilient_RedisGoesAway(t *testing.T) {
	ctx := context.Background()
	durable, mr := newRedisStore(t)
	r := NewResilient(durable, NewLocalStore())

	_ = r.SetOnline(ctx, "a", "c1")
	mr.Close()

	// Every call still answers, served by the local store.
	_ = r.SetOnline(ctx, "b", "c2")
	online, err := r.Online(ctx)
	if err != nil {
		t.Fatalf("Online: %v", err)
	}
	want := map[string]string{"a": "c1", "b": "c2"}
	if !reflect.DeepEqual(online, want) {
		t.Fatalf("Online = %v, want %v", online, want)
	}
}
