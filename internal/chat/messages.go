package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go-chat-realtime/internal/metrics"
	"go-chat-realtime/internal/models"
)

const defaultMessageType = "text"

// SendMessage persists a message, updates the conversation aggregate and
// fans out. Events are emitted only after every write succeeded: first an
// unread-update to each recipient, then new-message to the conversation room.
func (s *Service) SendMessage(ctx context.Context, actor Actor, req models.SendMessageData) (*models.Message, error) {
	msg, err := s.sendMessage(ctx, actor, req)
	if err != nil {
		metrics.DroppedSends.WithLabelValues(dropReason(err)).Inc()
		return nil, err
	}
	return msg, nil
}

func (s *Service) sendMessage(ctx context.Context, actor Actor, req models.SendMessageData) (*models.Message, error) {
	if strings.TrimSpace(req.Content) == "" && req.FileURL == "" {
		return nil, ErrInvalidInput
	}
	conv, err := s.conversationFor(ctx, req.ConversationID, actor.User.ID)
	if err != nil {
		return nil, err
	}

	msgType := req.MessageType
	if msgType == "" {
		msgType = defaultMessageType
	}
	msg := &models.Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		SenderID:       actor.User.ID,
		Content:        req.Content,
		MessageType:    msgType,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
		FileSize:       req.FileSize,
		MimeType:       req.MimeType,
		Duration:       req.Duration,
		Reactions:      []models.Reaction{},
		CreatedAt:      s.now(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, &PersistenceError{Op: "create message", Err: err}
	}

	recipients := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p != actor.User.ID {
			recipients = append(recipients, p)
		}
	}
	counts, err := s.store.RecordDelivery(ctx, conv.ID, msg.ID, msg.CreatedAt, recipients)
	if err != nil {
		// Nobody was told about the message, so it must not linger in history.
		if perr := s.store.PurgeMessage(ctx, msg.ID); perr != nil {
			slog.Error("[CHAT] Failed to purge undelivered message", "message", msg.ID, "error", perr)
		}
		return nil, &PersistenceError{Op: "record delivery", Err: err}
	}

	if s.isTyping(ctx, conv.ID, actor.User.ID) {
		s.stopTyping(ctx, actor, conv.ID)
	}

	for _, uid := range recipients {
		s.emit.ToUser(uid, models.EventUnreadUpdate, models.UnreadData{
			ConversationID: conv.ID,
			UnreadCount:    counts[uid],
		})
	}
	s.emit.ToRoom(conv.ID, models.EventNewMessage, models.NewMessageData{
		ConversationID: conv.ID,
		Message: models.MessageData{
			ID:          msg.ID,
			Content:     msg.Content,
			MessageType: msg.MessageType,
			FileURL:     msg.FileURL,
			FileName:    msg.FileName,
			FileSize:    msg.FileSize,
			MimeType:    msg.MimeType,
			Duration:    msg.Duration,
			Sender:      actor.sender(),
			CreatedAt:   msg.CreatedAt,
		},
	})
	return msg, nil
}

func dropReason(err error) string {
	var perr *PersistenceError
	switch {
	case errors.As(err, &perr):
		return "persist"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, ErrConversationNotFound):
		return "not_found"
	default:
		return "invalid"
	}
}

// React toggles the actor's reaction on a message and broadcasts the
// resulting reaction list.
func (s *Service) React(ctx context.Context, actor Actor, req models.ReactionData) ([]models.Reaction, error) {
	if req.Emoji == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.conversationFor(ctx, req.ConversationID, actor.User.ID); err != nil {
		return nil, err
	}
	if _, err := s.messageIn(ctx, req.ConversationID, req.MessageID); err != nil {
		return nil, err
	}

	reactions, err := s.store.ToggleReaction(ctx, req.MessageID, actor.User.ID, req.Emoji)
	if err != nil {
		return nil, &PersistenceError{Op: "toggle reaction", Err: err}
	}

	s.emit.ToRoom(req.ConversationID, models.EventMessageReaction, models.ReactionUpdateData{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		Reactions:      reactions,
	})
	return reactions, nil
}

// DeleteMessage soft-deletes a message. Only its sender may delete it.
func (s *Service) DeleteMessage(ctx context.Context, actor Actor, req models.MessageRef) error {
	if _, err := s.conversationFor(ctx, req.ConversationID, actor.User.ID); err != nil {
		return err
	}
	msg, err := s.messageIn(ctx, req.ConversationID, req.MessageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actor.User.ID {
		return ErrForbidden
	}
	if !msg.IsDeleted {
		if err := s.store.SoftDeleteMessage(ctx, msg.ID); err != nil {
			return &PersistenceError{Op: "delete message", Err: err}
		}
	}

	s.emit.ToRoom(req.ConversationID, models.EventMessageDeleted, models.MessageDeletedData{
		ConversationID: req.ConversationID,
		MessageID:      msg.ID,
	})
	return nil
}

// MarkRead resets the actor's unread counter. Other sessions in the room
// learn about the read; the actor's own sessions get a zero unread-update.
func (s *Service) MarkRead(ctx context.Context, actor Actor, conversationID string) error {
	if _, err := s.conversationFor(ctx, conversationID, actor.User.ID); err != nil {
		return err
	}
	at := s.now()
	if err := s.store.MarkRead(ctx, conversationID, actor.User.ID, at); err != nil {
		return &PersistenceError{Op: "mark read", Err: err}
	}

	s.emit.ToRoomExcept(conversationID, models.EventConversationRead, models.ConversationReadData{
		ConversationID: conversationID,
		UserID:         actor.User.ID,
		ReadAt:         at,
	}, actor.ConnID)
	s.emit.ToUser(actor.User.ID, models.EventUnreadUpdate, models.UnreadData{
		ConversationID: conversationID,
		UnreadCount:    0,
	})
	return nil
}

// StartTyping records the actor as typing and tells the rest of the room.
func (s *Service) StartTyping(ctx context.Context, actor Actor, conversationID string) error {
	if _, err := s.conversationFor(ctx, conversationID, actor.User.ID); err != nil {
		return err
	}
	if err := s.typing.Start(ctx, conversationID, actor.User.ID); err != nil {
		slog.Warn("[TYPING] Start failed", "user", actor.User.ID, "conversation", conversationID, "error", err)
	}
	s.emit.ToRoomExcept(conversationID, models.EventUserTyping, models.TypingData{
		ConversationID: conversationID,
		UserID:         actor.User.ID,
		Name:           actor.User.Name,
	}, actor.ConnID)
	return nil
}

func (s *Service) StopTyping(ctx context.Context, actor Actor, conversationID string) error {
	if _, err := s.conversationFor(ctx, conversationID, actor.User.ID); err != nil {
		return err
	}
	s.stopTyping(ctx, actor, conversationID)
	return nil
}

func (s *Service) stopTyping(ctx context.Context, actor Actor, conversationID string) {
	if err := s.typing.Stop(ctx, conversationID, actor.User.ID); err != nil {
		slog.Warn("[TYPING] Stop failed", "user", actor.User.ID, "conversation", conversationID, "error", err)
	}
	s.emit.ToRoomExcept(conversationID, models.EventUserStoppedTyping, models.TypingData{
		ConversationID: conversationID,
		UserID:         actor.User.ID,
		Name:           actor.User.Name,
	}, actor.ConnID)
}

func (s *Service) isTyping(ctx context.Context, conversationID, userID string) bool {
	users, err := s.typing.List(ctx, conversationID)
	if err != nil {
		slog.Warn("[TYPING] List failed", "conversation", conversationID, "error", err)
		return false
	}
	for _, u := range users {
		if u == userID {
			return true
		}
	}
	return false
}

// ClearTyping drops user from the typing set of every listed conversation
// it is still typing in. Used when the user's last session closes.
func (s *Service) ClearTyping(ctx context.Context, user models.User, conversationIDs []string) {
	for _, convID := range conversationIDs {
		if !s.isTyping(ctx, convID, user.ID) {
			continue
		}
		if err := s.typing.Stop(ctx, convID, user.ID); err != nil {
			slog.Warn("[TYPING] Stop failed", "user", user.ID, "conversation", convID, "error", err)
		}
		s.emit.ToRoom(convID, models.EventUserStoppedTyping, models.TypingData{
			ConversationID: convID,
			UserID:         user.ID,
			Name:           user.Name,
		})
	}
}
