// Package chat coordinates conversation mutations: it authorizes the actor,
// persists through the document store and only then emits events.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-chat-realtime/internal/models"
	"go-chat-realtime/internal/store"
	"go-chat-realtime/internal/typing"
)

var (
	ErrNotParticipant       = errors.New("chat: user is not a participant")
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrMessageNotFound      = errors.New("chat: message not found")
	ErrForbidden            = errors.New("chat: operation not permitted")
	ErrInvalidInput         = errors.New("chat: invalid input")
)

// PersistenceError wraps a document-store failure during a mutation.
// Nothing is emitted when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("chat: persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Emitter delivers events to rooms and sessions.
type Emitter interface {
	ToRoom(room, event string, data interface{})
	// ToRoomExcept skips the session identified by exceptConnID.
	ToRoomExcept(room, event string, data interface{}, exceptConnID string)
	// ToUser targets every live session of userID.
	ToUser(userID, event string, data interface{})
	// JoinUser adds every live session of userID to room.
	JoinUser(userID, room string)
	JoinConn(connID, room string)
	// RemoveRoom detaches every session from room.
	RemoveRoom(room string)
}

// Actor is the authenticated user behind an inbound event and the session it
// arrived on.
type Actor struct {
	User   models.User
	ConnID string
}

func (a Actor) sender() models.SenderData {
	return models.SenderData{ID: a.User.ID, Name: a.User.Name, Avatar: a.User.Avatar}
}

type Service struct {
	store  store.Store
	typing typing.Store
	emit   Emitter
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the message id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(st store.Store, ty typing.Store, emit Emitter, opts ...Option) *Service {
	s := &Service{
		store:  st,
		typing: ty,
		emit:   emit,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// conversationFor loads the conversation and checks userID participates.
func (s *Service) conversationFor(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidInput
	}
	conv, err := s.store.FindConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load conversation", Err: err}
	}
	if !conv.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// messageIn loads messageID and checks it belongs to conversationID.
func (s *Service) messageIn(ctx context.Context, conversationID, messageID string) (*models.Message, error) {
	if messageID == "" {
		return nil, ErrInvalidInput
	}
	msg, err := s.store.FindMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load message", Err: err}
	}
	if msg.ConversationID != conversationID {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// Join subscribes the actor's session to a conversation room it
// participates in.
func (s *Service) Join(ctx context.Context, actor Actor, conversationID string) error {
	if _, err := s.conversationFor(ctx, conversationID, actor.User.ID); err != nil {
		return err
	}
	s.emit.JoinConn(actor.ConnID, conversationID)
	return nil
}

// ConversationIDs lists the rooms a freshly authenticated session joins.
func (s *Service) ConversationIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.store.ConversationIDsFor(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list conversations", Err: err}
	}
	return ids, nil
}
