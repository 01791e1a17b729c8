package sqlstore

import (
	"time"

	"go-chat-realtime/internal/models"
)

type userRow struct {
	ID           string `gorm:"type:varchar(64);primaryKey"`
	Name         string `gorm:"type:varchar(64);not null"`
	Avatar       string `gorm:"type:text"`
	TokenVersion int    `gorm:"not null;default:0"`
	LastSeen     time.Time
}

func (userRow) TableName() string { return "users" }

type conversationRow struct {
	ID            string    `gorm:"type:varchar(64);primaryKey"`
	IsGroup       bool      `gorm:"not null;default:false"`
	GroupName     string    `gorm:"type:varchar(128)"`
	GroupAvatar   string    `gorm:"type:text"`
	GroupAdmin    string    `gorm:"type:varchar(64)"`
	LastMessageID string    `gorm:"type:varchar(64)"`
	LastMessageAt time.Time `gorm:"index"`
	CreatedAt     time.Time
}

func (conversationRow) TableName() string { return "conversations" }

// participantRow holds set membership; one row per (conversation, user).
type participantRow struct {
	ConversationID string `gorm:"type:varchar(64);primaryKey"`
	UserID         string `gorm:"type:varchar(64);primaryKey;index"`
	JoinedAt       time.Time
}

func (participantRow) TableName() string { return "conversation_participants" }

// settingsRow is the per-participant settings entry. The composite key
// keeps it unique per (conversation, user).
type settingsRow struct {
	ConversationID   string `gorm:"type:varchar(64);primaryKey"`
	UserID           string `gorm:"type:varchar(64);primaryKey"`
	UnreadCount      int    `gorm:"not null;default:0"`
	IsUnread         bool   `gorm:"not null;default:false"`
	MutedUntil       *time.Time
	ClearedHistoryAt *time.Time
	LastReadAt       *time.Time
}

func (settingsRow) TableName() string { return "user_settings" }

type messageRow struct {
	ID             string `gorm:"type:varchar(64);primaryKey"`
	ConversationID string `gorm:"type:varchar(64);not null;index:idx_conversation_msgs,priority:1"`
	SenderID       string `gorm:"type:varchar(64);not null"`
	Content        string `gorm:"type:text"`
	MessageType    string `gorm:"type:varchar(16);not null;default:'text'"`
	FileURL        string `gorm:"type:text"`
	FileName       string `gorm:"type:text"`
	FileSize       int64
	MimeType       string `gorm:"type:varchar(128)"`
	Duration       float64
	IsDeleted      bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"index:idx_conversation_msgs,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

// reactionRow allows one reaction per user per message.
type reactionRow struct {
	MessageID string `gorm:"type:varchar(64);primaryKey"`
	UserID    string `gorm:"type:varchar(64);primaryKey"`
	Emoji     string `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time
}

func (reactionRow) TableName() string { return "reactions" }

func (r *userRow) toModel() *models.User {
	return &models.User{
		ID:           r.ID,
		Name:         r.Name,
		Avatar:       r.Avatar,
		TokenVersion: r.TokenVersion,
		LastSeen:     r.LastSeen,
	}
}

func (r *settingsRow) toModel() models.UserSettings {
	return models.UserSettings{
		UserID:           r.UserID,
		UnreadCount:      r.UnreadCount,
		IsUnread:         r.IsUnread,
		MutedUntil:       r.MutedUntil,
		ClearedHistoryAt: r.ClearedHistoryAt,
		LastReadAt:       r.LastReadAt,
	}
}

func messageFromModel(m *models.Message) *messageRow {
	return &messageRow{
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
		IsDeleted:      m.IsDeleted,
		CreatedAt:      m.CreatedAt,
	}
}

func (r *messageRow) toModel(reactions []reactionRow) *models.Message {
	m := &models.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Content:        r.Content,
		MessageType:    r.MessageType,
		FileURL:        r.FileURL,
		FileName:       r.FileName,
		FileSize:       r.FileSize,
		MimeType:       r.MimeType,
		Duration:       r.Duration,
		IsDeleted:      r.IsDeleted,
		CreatedAt:      r.CreatedAt,
		Reactions:      toReactions(reactions),
	}
	return m
}

func toReactions(rows []reactionRow) []models.Reaction {
	out := make([]models.Reaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}
	return out
}
