package mongostore

import (
	"time"

	"go-chat-realtime/internal/models"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Avatar       string    `bson:"avatar,omitempty"`
	TokenVersion int       `bson:"tokenVersion"`
	LastSeen     time.Time `bson:"lastSeen"`
}

type settingsDoc struct {
	UserID           string     `bson:"userId"`
	UnreadCount      int        `bson:"unreadCount"`
	IsUnread         bool       `bson:"isUnread"`
	MutedUntil       *time.Time `bson:"mutedUntil,omitempty"`
	ClearedHistoryAt *time.Time `bson:"clearedHistoryAt,omitempty"`
	LastReadAt       *time.Time `bson:"lastReadAt,omitempty"`
}

type conversationDoc struct {
	ID            string        `bson:"_id"`
	Participants  []string      `bson:"participants"`
	IsGroup       bool          `bson:"isGroup"`
	GroupName     string        `bson:"groupName,omitempty"`
	GroupAvatar   string        `bson:"groupAvatar,omitempty"`
	GroupAdmin    string        `bson:"groupAdmin,omitempty"`
	LastMessageID string        `bson:"lastMessage,omitempty"`
	LastMessageAt time.Time     `bson:"lastMessageAt"`
	UserSettings  []settingsDoc `bson:"userSettings"`
	CreatedAt     time.Time     `bson:"createdAt"`
}

type reactionDoc struct {
	UserID string `bson:"user"`
	Emoji  string `bson:"emoji"`
}

type messageDoc struct {
	ID             string        `bson:"_id"`
	ConversationID string        `bson:"conversationId"`
	SenderID       string        `bson:"sender"`
	Content        string        `bson:"content"`
	MessageType    string        `bson:"messageType"`
	FileURL        string        `bson:"fileUrl,omitempty"`
	FileName       string        `bson:"fileName,omitempty"`
	FileSize       int64         `bson:"fileSize,omitempty"`
	MimeType       string        `bson:"mimeType,omitempty"`
	Duration       float64       `bson:"duration,omitempty"`
	Reactions      []reactionDoc `bson:"reactions"`
	IsDeleted      bool          `bson:"isDeleted"`
	CreatedAt      time.Time     `bson:"createdAt"`
}

func userToDoc(u *models.User) *userDoc {
	return &userDoc{ID: u.ID, Name: u.Name, Avatar: u.Avatar, TokenVersion: u.TokenVersion, LastSeen: u.LastSeen}
}

func (d *userDoc) toModel() *models.User {
	return &models.User{ID: d.ID, Name: d.Name, Avatar: d.Avatar, TokenVersion: d.TokenVersion, LastSeen: d.LastSeen}
}

func settingsToDoc(s models.UserSettings) settingsDoc {
	return settingsDoc(s)
}

func (d settingsDoc) toModel() models.UserSettings {
	return models.UserSettings(d)
}

func conversationToDoc(c *models.Conversation) *conversationDoc {
	d := &conversationDoc{
		ID:            c.ID,
		Participants:  append([]string{}, c.Participants...),
		IsGroup:       c.IsGroup,
		GroupName:     c.GroupName,
		GroupAvatar:   c.GroupAvatar,
		GroupAdmin:    c.GroupAdmin,
		LastMessageID: c.LastMessageID,
		LastMessageAt: c.LastMessageAt,
		UserSettings:  make([]settingsDoc, 0, len(c.UserSettings)),
		CreatedAt:     c.CreatedAt,
	}
	for _, s := range c.UserSettings {
		d.UserSettings = append(d.UserSettings, settingsToDoc(s))
	}
	return d
}

func (d *conversationDoc) toModel() *models.Conversation {
	c := &models.Conversation{
		ID:            d.ID,
		Participants:  append([]string{}, d.Participants...),
		IsGroup:       d.IsGroup,
		GroupName:     d.GroupName,
		GroupAvatar:   d.GroupAvatar,
		GroupAdmin:    d.GroupAdmin,
		LastMessageID: d.LastMessageID,
		LastMessageAt: d.LastMessageAt,
		CreatedAt:     d.CreatedAt,
	}
	for _, s := range d.UserSettings {
		c.UserSettings = append(c.UserSettings, s.toModel())
	}
	return c
}

func reactionsToDocs(rs []models.Reaction) []reactionDoc {
	out := make([]reactionDoc, 0, len(rs))
	for _, r := range rs {
		out = append(out, reactionDoc{UserID: r.UserID, Emoji: r.Emoji})
	}
	return out
}

func reactionsFromDocs(ds []reactionDoc) []models.Reaction {
	out := make([]models.Reaction, 0, len(ds))
	for _, d := range ds {
		out = append(out, models.Reaction{UserID: d.UserID, Emoji: d.Emoji})
	}
	return out
}

func messageToDoc(m *models.Message) *messageDoc {
	return &messageDoc{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		MessageType:    m.MessageType,
		FileURL:        m.FileURL,
		FileName:       m.FileName,
		FileSize:       m.FileSize,
		MimeType:       m.MimeType,
		Duration:       m.Duration,
		Reactions:      reactionsToDocs(m.Reactions),
		IsDeleted:      m.IsDeleted,
		CreatedAt:      m.CreatedAt,
	}
}

func (d *messageDoc) toModel() *models.Message {
	return &models.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		MessageType:    d.MessageType,
		FileURL:        d.FileURL,
		FileName:       d.FileName,
		FileSize:       d.FileSize,
		MimeType:       d.MimeType,
		Duration:       d.Duration,
		Reactions:      reactionsFromDocs(d.Reactions),
		IsDeleted:      d.IsDeleted,
		CreatedAt:      d.CreatedAt,
	}
}
