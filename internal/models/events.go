package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Client -> server events.
const (
	EventJoinConversation      = "join-conversation"
	EventSendMessage           = "send-message"
	EventTypingStart           = "typing-start"
	EventTypingStop            = "typing-stop"
	EventSendReaction          = "send-reaction"
	EventDeleteMessage         = "delete-message"
	EventMarkConversationRead  = "mark-conversation-read"
	EventGroupCreated          = "group-created"
	EventGroupUpdate           = "group-update"
	EventAddMember             = "add-member"
	EventDeleteGroup           = "delete-group"
	EventFriendRequestSent     = "friend-request-sent"
	EventFriendRequestAccepted = "friend-request-accepted"
)

// Server -> client events.
const (
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventUnreadUpdate      = "unread-update"
	EventMessageReaction   = "message-reaction"
	EventMessageDeleted    = "message-deleted"
	EventConversationRead  = "conversation-read"
	EventNewFriendRequest  = "new-friend-request"
	EventRequestAccepted   = "request-accepted"
	EventGroupJoined       = "group-joined"
	EventGroupUpdated      = "group-updated"
	EventGroupDeleted      = "group-deleted"
)

// Event is the envelope written to every client.
type Event struct {
	Type      string      `json:"type"`
	Room      string      `json:"room,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(eventType, room string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Room:      room,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// InboundEvent is the envelope read from clients. Data is decoded per type.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound payloads

type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

type SendMessageData struct {
	ConversationID string  `json:"conversationId"`
	Content        string  `json:"content"`
	MessageType    string  `json:"messageType"`
	FileURL        string  `json:"fileUrl,omitempty"`
	FileName       string  `json:"fileName,omitempty"`
	FileSize       int64   `json:"fileSize,omitempty"`
	MimeType       string  `json:"mimeType,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
}

type ReactionData struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Emoji          string `json:"emoji"`
}

type MessageRef struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type AddMemberData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type FriendRequestData struct {
	TargetUserID string          `json:"targetUserId"`
	Request      json.RawMessage `json:"request,omitempty"`
	Conversation json.RawMessage `json:"conversation,omitempty"`
}

// Outbound payloads

type SenderData struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type MessageData struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	MessageType string     `json:"messageType"`
	FileURL     string     `json:"fileUrl,omitempty"`
	FileName    string     `json:"fileName,omitempty"`
	FileSize    int64      `json:"fileSize,omitempty"`
	MimeType    string     `json:"mimeType,omitempty"`
	Duration    float64    `json:"duration,omitempty"`
	Sender      SenderData `json:"sender"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type NewMessageData struct {
	ConversationID string      `json:"conversationId"`
	Message        MessageData `json:"message"`
}

type TypingData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Name           string `json:"name,omitempty"`
}

type PresenceData struct {
	UserID   string     `json:"userId"`
	Name     string     `json:"name,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type UnreadData struct {
	ConversationID string `json:"conversationId"`
	UnreadCount    int    `json:"unreadCount"`
}

type ReactionUpdateData struct {
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId"`
	Reactions      []Reaction `json:"reactions"`
}

type MessageDeletedData struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type ConversationReadData struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

type GroupData struct {
	ConversationID string        `json:"conversationId"`
	Conversation   *Conversation `json:"conversation,omitempty"`
}

type FriendRequestEventData struct {
	From         SenderData      `json:"from"`
	Request      json.RawMessage `json:"request,omitempty"`
	Conversation json.RawMessage `json:"conversation,omitempty"`
}
