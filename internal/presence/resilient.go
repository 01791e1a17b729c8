package presence

import (
	"context"
	"log/slog"

	"go-chat-realtime/internal/metrics"
)

// Resilient tries the durable store first and serves the call from the
// local store when it fails. A failure affects that call only; the next call
// tries the durable store again. Writes are mirrored into the local store so
// a fallback read sees what was written before the failure.
//
// A nil durable store means the backend was unavailable at startup and only
// the local store is used.
type Resilient struct {
	durable Store
	local   *LocalStore
}

func NewResilient(durable Store, local *LocalStore) *Resilient {
	return &Resilient{durable: durable, local: local}
}

// Durable reports whether a durable backend is configured.
func (r *Resilient) Durable() bool {
	return r.durable != nil
}

func (r *Resilient) fallback(op string, err error) {
	metrics.BackendFallbacks.WithLabelValues("presence", op).Inc()
	slog.Warn("[PRESENCE] Durable store failed, using local store", "op", op, "error", err)
}

func (r *Resilient) SetOnline(ctx context.Context, userID, connID string) error {
	_ = r.local.SetOnline(ctx, userID, connID)
	if r.durable != nil {
		if err := r.durable.SetOnline(ctx, userID, connID); err != nil {
			r.fallback("set_online", err)
		}
	}
	return nil
}

func (r *Resilient) SetOffline(ctx context.Context, userID, connID string) error {
	_ = r.local.SetOffline(ctx, userID, connID)
	if r.durable != nil {
		if err := r.durable.SetOffline(ctx, userID, connID); err != nil {
			r.fallback("set_offline", err)
		}
	}
	return nil
}

func (r *Resilient) Connection(ctx context.Context, userID string) (string, bool, error) {
	if r.durable != nil {
		connID, ok, err := r.durable.Connection(ctx, userID)
		if err == nil {
			return connID, ok, nil
		}
		r.fallback("connection", err)
	}
	return r.local.Connection(ctx, userID)
}

func (r *Resilient) User(ctx context.Context, connID string) (string, bool, error) {
	if r.durable != nil {
		userID, ok, err := r.durable.User(ctx, connID)
		if err == nil {
			return userID, ok, nil
		}
		r.fallback("user", err)
	}
	return r.local.User(ctx, connID)
}

func (r *Resilient) Online(ctx context.Context) (map[string]string, error) {
	if r.durable != nil {
		online, err := r.durable.Online(ctx)
		if err == nil {
			return online, nil
		}
		r.fallback("online", err)
	}
	return r.local.Online(ctx)
}
