package typing

import (
	"context"
	"log/slog"

	"go-chat-realtime/internal/metrics"
)

// Resilient serves typing state from the durable store when one is
// configured and from the local store when a durable call fails. Writes go
// to both so a fallback read is not empty.
type Resilient struct {
	durable Store
	local   *LocalStore
}

func NewResilient(durable Store, local *LocalStore) *Resilient {
	return &Resilient{durable: durable, local: local}
}

func (r *Resilient) fallback(op string, err error) {
	metrics.BackendFallbacks.WithLabelValues("typing", op).Inc()
	slog.Warn("[TYPING] Durable store failed, using local store", "op", op, "error", err)
}

func (r *Resilient) Start(ctx context.Context, conversationID, userID string) error {
	_ = r.local.Start(ctx, conversationID, userID)
	if r.durable != nil {
		if err := r.durable.Start(ctx, conversationID, userID); err != nil {
			r.fallback("start", err)
		}
	}
	return nil
}

func (r *Resilient) Stop(ctx context.Context, conversationID, userID string) error {
	_ = r.local.Stop(ctx, conversationID, userID)
	if r.durable != nil {
		if err := r.durable.Stop(ctx, conversationID, userID); err != nil {
			r.fallback("stop", err)
		}
	}
	return nil
}

func (r *Resilient) List(ctx context.Context, conversationID string) ([]string, error) {
	if r.durable != nil {
		users, err := r.durable.List(ctx, conversationID)
		if err == nil {
			return users, nil
		}
		r.fallback("list", err)
	}
	return r.local.List(ctx, conversationID)
}
