package ws

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"go-chat-realtime/internal/chat"
	"go-chat-realtime/internal/metrics"
	"go-chat-realtime/internal/models"
)

// handlerTimeout bounds the backend work done for one inbound event.
const handlerTimeout = 10 * time.Second

type eventHandler func(ctx context.Context, svc *chat.Service, actor chat.Actor, data json.RawMessage) error

// decode unmarshals data into T and calls fn with it.
func decode[T any](fn func(ctx context.Context, svc *chat.Service, actor chat.Actor, req T) error) eventHandler {
	return func(ctx context.Context, svc *chat.Service, actor chat.Actor, data json.RawMessage) error {
		var req T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return errors.Join(chat.ErrInvalidInput, err)
			}
		}
		return fn(ctx, svc, actor, req)
	}
}

var handlers = map[string]eventHandler{
	models.EventJoinConversation: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.ConversationRef) error {
		return svc.Join(ctx, a, req.ConversationID)
	}),
	models.EventSendMessage: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.SendMessageData) error {
		_, err := svc.SendMessage(ctx, a, req)
		return err
	}),
	models.EventTypingStart: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.ConversationRef) error {
		return svc.StartTyping(ctx, a, req.ConversationID)
	}),
	models.EventTypingStop: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.ConversationRef) error {
		return svc.StopTyping(ctx, a, req.ConversationID)
	}),
	models.EventSendReaction: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.ReactionData) error {
		_, err := svc.React(ctx, a, req)
		return err
	}),
	models.EventDeleteMessage: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.MessageRef) error {
		return svc.DeleteMessage(ctx, a, req)
	}),
	models.EventMarkConversationRead: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.ConversationRef) error {
		return svc.MarkRead(ctx, a, req.ConversationID)
	}),
	models.EventGroupCreated: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.ConversationRef) error {
		return svc.GroupCreated(ctx, a, req.ConversationID)
	}),
	models.EventGroupUpdate: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.ConversationRef) error {
		return svc.GroupUpdated(ctx, a, req.ConversationID)
	}),
	models.EventAddMember: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.AddMemberData) error {
		return svc.MemberAdded(ctx, a, req)
	}),
	models.EventDeleteGroup: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.ConversationRef) error {
		return svc.DeleteGroup(ctx, a, req.ConversationID)
	}),
	models.EventFriendRequestSent: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.FriendRequestData) error {
		return svc.FriendRequestSent(ctx, a, req)
	}),
	models.EventFriendRequestAccepted: decode(func(ctx context.Context, svc *chat.Service, a chat.Actor, req models.FriendRequestData) error {
		return svc.FriendRequestAccepted(ctx, a, req)
	}),
}

// handle dispatches one inbound frame. Failures are logged and dropped;
// only the handshake ever terminates a session.
func (g *Gate) handle(client *Client, message []byte) {
	if client.State() != StateAuthenticated {
		return
	}

	var msg models.InboundEvent
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Error("[CLIENT] Error unmarshaling message", "user", client.user.ID, "conn", client.connID, "error", err)
		return
	}

	h, ok := handlers[msg.Type]
	if !ok {
		metrics.EventsTotal.WithLabelValues("unknown").Inc()
		slog.Warn("[CLIENT] Unknown event type", "type", msg.Type, "user", client.user.ID)
		return
	}
	metrics.EventsTotal.WithLabelValues(msg.Type).Inc()

	if !client.limiter.Allow() {
		slog.Warn("[CLIENT] Rate limited, event dropped", "type", msg.Type, "user", client.user.ID, "conn", client.connID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	actor := chat.Actor{User: client.user, ConnID: client.connID}
	if err := h(ctx, g.chat, actor, msg.Data); err != nil {
		logDropped(msg.Type, client, err)
	}
}

func logDropped(event string, client *Client, err error) {
	var perr *chat.PersistenceError
	if errors.As(err, &perr) {
		slog.Error("[CHAT] Event abandoned", "type", event, "user", client.user.ID, "error", err)
		return
	}
	slog.Warn("[CHAT] Event dropped", "type", event, "user", client.user.ID, "error", err)
}
