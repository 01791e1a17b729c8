package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestProbe_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := Probe(context.Background(), "redis://"+mr.Addr(), 2, time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	defer c.Close()

	if err := c.Redis().Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("SET through probed client: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Fatalf("miniredis k = %q", got)
	}
}

func TestProbe_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	start := time.Now()
	_, err := Probe(context.Background(), "redis://"+addr, 2, 200*time.Millisecond)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	// Two bounded attempts plus one retry delay, not an open-ended loop.
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("probe took %v", elapsed)
	}
}

func TestProbe_BadInput(t *testing.T) {
	if _, err := Probe(context.Background(), "", 2, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("empty url err = %v", err)
	}
	if _, err := Probe(context.Background(), "http://nope", 2, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("bad scheme err = %v", err)
	}
}
