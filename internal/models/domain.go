package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	TokenVersion int       `json:"-"`
	LastSeen     time.Time `json:"lastSeen"`
}

// UserSettings is a participant's private view of a conversation.
// A conversation holds at most one entry per user.
type UserSettings struct {
	UserID           string     `json:"userId"`
	UnreadCount      int        `json:"unreadCount"`
	IsUnread         bool       `json:"isUnread"`
	MutedUntil       *time.Time `json:"mutedUntil,omitempty"`
	ClearedHistoryAt *time.Time `json:"clearedHistoryAt,omitempty"`
	LastReadAt       *time.Time `json:"lastReadAt,omitempty"`
}

type Conversation struct {
	ID            string         `json:"id"`
	Participants  []string       `json:"participants"`
	IsGroup       bool           `json:"isGroup"`
	GroupName     string         `json:"groupName,omitempty"`
	GroupAvatar   string         `json:"groupAvatar,omitempty"`
	GroupAdmin    string         `json:"groupAdmin,omitempty"`
	LastMessageID string         `json:"lastMessage,omitempty"`
	LastMessageAt time.Time      `json:"lastMessageAt"`
	UserSettings  []UserSettings `json:"userSettings,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func (c *Conversation) IsParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Public returns a copy safe to show every participant. Per-user settings
// stay private to their owner.
func (c *Conversation) Public() *Conversation {
	pub := *c
	pub.Participants = append([]string(nil), c.Participants...)
	pub.UserSettings = nil
	return &pub
}

// SettingsFor returns the settings entry of userID, or nil when none exists yet.
func (c *Conversation) SettingsFor(userID string) *UserSettings {
	for i := range c.UserSettings {
		if c.UserSettings[i].UserID == userID {
			return &c.UserSettings[i]
		}
	}
	return nil
}

type Reaction struct {
	UserID string `json:"user"`
	Emoji  string `json:"emoji"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"sender"`
	Content        string     `json:"content"`
	MessageType    string     `json:"messageType"`
	FileURL        string     `json:"fileUrl,omitempty"`
	FileName       string     `json:"fileName,omitempty"`
	FileSize       int64      `json:"fileSize,omitempty"`
	MimeType       string     `json:"mimeType,omitempty"`
	Duration       float64    `json:"duration,omitempty"`
	Reactions      []Reaction `json:"reactions"`
	IsDeleted      bool       `json:"isDeleted"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ToggleReaction applies emoji for userID: the same emoji again removes the
// user's reaction, a different one replaces it, otherwise it is appended.
// It reports whether the user holds a reaction afterwards.
func (m *Message) ToggleReaction(userID, emoji string) bool {
	for i, r := range m.Reactions {
		if r.UserID != userID {
			continue
		}
		if r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return false
		}
		m.Reactions[i].Emoji = emoji
		return true
	}
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji})
	return true
}
