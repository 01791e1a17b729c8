package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"go-chat-realtime/internal/auth"
	"go-chat-realtime/internal/chat"
	"go-chat-realtime/internal/metrics"
	"go-chat-realtime/internal/models"
	"go-chat-realtime/internal/presence"
	"go-chat-realtime/internal/store"
)

// teardownTimeout bounds the backend calls made after a connection closes.
const teardownTimeout = 5 * time.Second

// GateConfig tunes the handshake and per-session limits.
type GateConfig struct {
	// AllowedOrigins lists accepted Origin values; empty accepts any.
	AllowedOrigins []string
	EventRate      float64
	EventBurst     int
}

// Gate authenticates websocket handshakes and owns the session lifecycle.
type Gate struct {
	hub      *Hub
	verifier *auth.Verifier
	users    store.Store
	presence presence.Store
	chat     *chat.Service
	upgrader websocket.Upgrader
	cfg      GateConfig
	now      func() time.Time
}

func NewGate(hub *Hub, verifier *auth.Verifier, users store.Store, pres presence.Store, svc *chat.Service, cfg GateConfig) *Gate {
	if cfg.EventRate <= 0 {
		cfg.EventRate = 20
	}
	if cfg.EventBurst < 1 {
		cfg.EventBurst = 40
	}
	g := &Gate{
		hub:      hub,
		verifier: verifier,
		users:    users,
		presence: pres,
		chat:     svc,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gate) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// Authenticate resolves the user behind a handshake. Every failure is an
// *auth.AuthError.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (*models.User, error) {
	token := auth.ExtractTokenFromRequest(r)
	if token == "" {
		return nil, auth.Reject(auth.ErrMissingToken)
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := g.users.FindUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, auth.Reject(auth.ErrUserNotFound)
		}
		return nil, auth.Reject(fmt.Errorf("load user: %w", err))
	}

	// A bumped token version revokes every token issued before it.
	if claims.TokenVersion != nil && *claims.TokenVersion != user.TokenVersion {
		return nil, auth.Reject(fmt.Errorf("%w: token revoked", auth.ErrInvalidToken))
	}
	return user, nil
}

// ServeHTTP runs the handshake. Authentication happens before the upgrade so
// a rejected connection gets a plain 401.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	slog.Debug("[WS] New WebSocket connection request", "from", remoteAddr)

	user, err := g.Authenticate(r.Context(), r)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			slog.Warn("[WS] Handshake rejected", "from", remoteAddr, "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		slog.Error("[WS] Handshake failed", "from", remoteAddr, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[WS] Failed to upgrade connection", "user", user.ID, "error", err)
		return
	}

	client := newClient(conn, uuid.NewString(), *user,
		rate.NewLimiter(rate.Limit(g.cfg.EventRate), g.cfg.EventBurst))
	client.setState(StateAuthenticating)
	g.openSession(r.Context(), client)

	go client.WritePump()
	go client.ReadPump(g.handle, g.closeSession)
}

// openSession moves an authenticated session into the hub: presence, lastSeen,
// the online announcement and its rooms.
func (g *Gate) openSession(ctx context.Context, client *Client) {
	ctx = context.WithoutCancel(ctx)
	userID := client.user.ID

	g.hub.Register(client)
	client.setState(StateAuthenticated)
	metrics.SessionsActive.Inc()

	if err := g.presence.SetOnline(ctx, userID, client.connID); err != nil {
		slog.Error("[WS] Failed to record presence", "user", userID, "error", err)
	}
	if err := g.users.TouchLastSeen(ctx, userID, g.now()); err != nil {
		slog.Warn("[WS] Failed to update last seen", "user", userID, "error", err)
	}

	g.hub.Broadcast(models.EventUserOnline, models.PresenceData{UserID: userID, Name: client.user.Name}, client.connID)

	ids, err := g.chat.ConversationIDs(ctx, userID)
	if err != nil {
		slog.Error("[WS] Failed to load conversations", "user", userID, "error", err)
	}
	for _, id := range ids {
		g.hub.Join(client, id)
	}

	slog.Info("[WS] Session authenticated", "user", userID, "conn", client.connID, "rooms", len(ids))
}

// closeSession tears a session down. Presence moves to another live session of the
// same user if one remains; otherwise the user goes offline.
func (g *Gate) closeSession(client *Client) {
	rooms, last := g.hub.Unregister(client)
	if client.State() == StateDisconnected {
		return
	}
	client.setState(StateDisconnected)
	metrics.SessionsActive.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	userID := client.user.ID
	if err := g.presence.SetOffline(ctx, userID, client.connID); err != nil {
		slog.Error("[WS] Failed to clear presence", "user", userID, "error", err)
	}

	if !last {
		if _, ok, err := g.presence.Connection(ctx, userID); err == nil && !ok {
			if remaining := g.hub.Sessions(userID); len(remaining) > 0 {
				_ = g.presence.SetOnline(ctx, userID, remaining[0])
			}
		}
		slog.Info("[WS] Session closed", "user", userID, "conn", client.connID)
		return
	}

	g.chat.ClearTyping(ctx, client.user, rooms)

	lastSeen := g.now()
	if err := g.users.TouchLastSeen(ctx, userID, lastSeen); err != nil {
		slog.Warn("[WS] Failed to update last seen", "user", userID, "error", err)
	}
	g.hub.Broadcast(models.EventUserOffline, models.PresenceData{UserID: userID, LastSeen: &lastSeen}, "")

	slog.Info("[WS] User offline", "user", userID, "conn", client.connID)
}
