// Package store defines the document-store collaborator the realtime layer
// persists users, conversations and messages through. Implementations live
// in the sqlstore and mongostore subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"go-chat-realtime/internal/models"
)

// ErrNotFound is returned when the addressed document does not exist.
var ErrNotFound = errors.New("not found")

type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUser(ctx context.Context, id string) (*models.User, error)
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error

	CreateConversation(ctx context.Context, c *models.Conversation) error
	FindConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ConversationIDsFor lists the conversations userID participates in.
	ConversationIDsFor(ctx context.Context, userID string) ([]string, error)
	// AddParticipant is a no-op when userID already participates.
	AddParticipant(ctx context.Context, conversationID, userID string) error
	// DeleteConversation removes the conversation and every message in it.
	DeleteConversation(ctx context.Context, conversationID string) error

	CreateMessage(ctx context.Context, m *models.Message) error
	FindMessage(ctx context.Context, id string) (*models.Message, error)
	// ToggleReaction applies models.Message.ToggleReaction atomically and
	// returns the resulting reactions.
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error)
	SoftDeleteMessage(ctx context.Context, messageID string) error
	// PurgeMessage removes a message outright. It undoes a CreateMessage
	// whose delivery could not be recorded.
	PurgeMessage(ctx context.Context, messageID string) error

	// RecordDelivery points the conversation at messageID unless it already
	// points at a later message, and increments the unread counter of every
	// recipient by one, creating missing settings entries. It returns the new
	// counter per recipient. Increments are per-field, so concurrent
	// deliveries never lose an update.
	RecordDelivery(ctx context.Context, conversationID, messageID string, at time.Time, recipients []string) (map[string]int, error)
	// MarkRead zeroes userID's counter and stamps lastReadAt.
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error
	Settings(ctx context.Context, conversationID, userID string) (*models.UserSettings, error)

	Close() error
}
