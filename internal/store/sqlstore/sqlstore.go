// Package sqlstore implements store.Store on GORM with the pure-Go SQLite
// driver. Unread counters are single-statement upserts inside one
// transaction per delivery.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"go-chat-realtime/internal/models"
	"go-chat-realtime/internal/store"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the SQLite database at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// SQLite has a single writer; one pooled connection serializes
	// transactions instead of surfacing SQLITE_BUSY to callers.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	return New(db)
}

// New wraps an open database and applies migrations.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&userRow{},
		&conversationRow{},
		&participantRow{},
		&settingsRow{},
		&messageRow{},
		&reactionRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	row := &userRow{
		ID:           u.ID,
		Name:         u.Name,
		Avatar:       u.Avatar,
		TokenVersion: u.TokenVersion,
		LastSeen:     u.LastSeen,
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) FindUser(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

func (s *Store) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	tx := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Update("last_seen", at)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Conversations

func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastMessageAt.IsZero() {
		c.LastMessageAt = c.CreatedAt
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &conversationRow{
			ID:            c.ID,
			IsGroup:       c.IsGroup,
			GroupName:     c.GroupName,
			GroupAvatar:   c.GroupAvatar,
			GroupAdmin:    c.GroupAdmin,
			LastMessageID: c.LastMessageID,
			LastMessageAt: c.LastMessageAt,
			CreatedAt:     c.CreatedAt,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		for _, uid := range c.Participants {
			p := &participantRow{ConversationID: c.ID, UserID: uid, JoinedAt: c.CreatedAt}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error; err != nil {
				return err
			}
		}
		for _, us := range c.UserSettings {
			sr := &settingsRow{
				ConversationID:   c.ID,
				UserID:           us.UserID,
				UnreadCount:      us.UnreadCount,
				IsUnread:         us.IsUnread,
				MutedUntil:       us.MutedUntil,
				ClearedHistoryAt: us.ClearedHistoryAt,
				LastReadAt:       us.LastReadAt,
			}
			if err := tx.Create(sr).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) FindConversation(ctx context.Context, id string) (*models.Conversation, error) {
	db := s.db.WithContext(ctx)

	var row conversationRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}

	var participants []participantRow
	if err := db.Where("conversation_id = ?", id).Order("joined_at ASC").Order("rowid ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}

	var settings []settingsRow
	if err := db.Where("conversation_id = ?", id).Order("rowid ASC").Find(&settings).Error; err != nil {
		return nil, err
	}

	c := &models.Conversation{
		ID:            row.ID,
		IsGroup:       row.IsGroup,
		GroupName:     row.GroupName,
		GroupAvatar:   row.GroupAvatar,
		GroupAdmin:    row.GroupAdmin,
		LastMessageID: row.LastMessageID,
		LastMessageAt: row.LastMessageAt,
		CreatedAt:     row.CreatedAt,
		Participants:  make([]string, 0, len(participants)),
	}
	for _, p := range participants {
		c.Participants = append(c.Participants, p.UserID)
	}
	for i := range settings {
		c.UserSettings = append(c.UserSettings, settings[i].toModel())
	}
	return c, nil
}

func (s *Store) ConversationIDsFor(ctx context.Context, userID string) ([]string, error) {
	ids := make([]string, 0)
	err := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("user_id = ?", userID).
		Order("conversation_id ASC").
		Pluck("conversation_id", &ids).Error
	return ids, err
}

func (s *Store) AddParticipant(ctx context.Context, conversationID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&conversationRow{}).Where("id = ?", conversationID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		p := &participantRow{ConversationID: conversationID, UserID: userID, JoinedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error
	})
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msgIDs := tx.Model(&messageRow{}).Select("id").Where("conversation_id = ?", conversationID)
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&reactionRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&messageRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&settingsRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&participantRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", conversationID).Delete(&conversationRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// Messages

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	return s.db.WithContext(ctx).Create(messageFromModel(m)).Error
}

func (s *Store) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	db := s.db.WithContext(ctx)

	var row messageRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	reactions, err := listReactions(db, id)
	if err != nil {
		return nil, err
	}
	return row.toModel(reactions), nil
}

func listReactions(db *gorm.DB, messageID string) ([]reactionRow, error) {
	var rows []reactionRow
	err := db.Where("message_id = ?", messageID).Order("created_at ASC").Order("rowid ASC").Find(&rows).Error
	return rows, err
}

func (s *Store) ToggleReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	var out []models.Reaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&messageRow{}).Where("id = ?", messageID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}

		rows, err := listReactions(tx, messageID)
		if err != nil {
			return err
		}
		m := &models.Message{Reactions: toReactions(rows)}
		existed := false
		for _, r := range rows {
			if r.UserID == userID {
				existed = true
			}
		}

		held := m.ToggleReaction(userID, emoji)
		switch {
		case !held:
			err = tx.Where("message_id = ? AND user_id = ?", messageID, userID).Delete(&reactionRow{}).Error
		case existed:
			err = tx.Model(&reactionRow{}).Where("message_id = ? AND user_id = ?", messageID, userID).
				Update("emoji", emoji).Error
		default:
			err = tx.Create(&reactionRow{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: time.Now().UTC()}).Error
		}
		if err != nil {
			return err
		}
		out = m.Reactions
		return nil
	})
	return out, err
}

func (s *Store) SoftDeleteMessage(ctx context.Context, messageID string) error {
	tx := s.db.WithContext(ctx).Model(&messageRow{}).Where("id = ?", messageID).Update("is_deleted", true)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PurgeMessage hard-deletes a message and its reactions.
func (s *Store) PurgeMessage(ctx context.Context, messageID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&reactionRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", messageID).Delete(&messageRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// Aggregate counters

func (s *Store) RecordDelivery(ctx context.Context, conversationID, messageID string, at time.Time, recipients []string) (map[string]int, error) {
	at = at.UTC()
	counts := make(map[string]int, len(recipients))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// lastMessage only moves forward; a delivery older than the current
		// pointer still counts as unread.
		res := tx.Model(&conversationRow{}).
			Where("id = ? AND (last_message_id = '' OR last_message_at <= ?)", conversationID, at).
			Updates(map[string]interface{}{
				"last_message_id": messageID,
				"last_message_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&conversationRow{}).Where("id = ?", conversationID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return store.ErrNotFound
			}
		}

		for _, uid := range recipients {
			row := &settingsRow{ConversationID: conversationID, UserID: uid, UnreadCount: 1, IsUnread: true}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"unread_count": gorm.Expr("unread_count + 1"),
					"is_unread":    true,
				}),
			}).Create(row).Error
			if err != nil {
				return err
			}

			var n int
			if err := tx.Model(&settingsRow{}).Select("unread_count").
				Where("conversation_id = ? AND user_id = ?", conversationID, uid).
				Scan(&n).Error; err != nil {
				return err
			}
			counts[uid] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Store) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	row := &settingsRow{ConversationID: conversationID, UserID: userID, LastReadAt: &at}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"unread_count": 0,
			"is_unread":    false,
			"last_read_at": at,
		}),
	}).Create(row).Error
}

func (s *Store) Settings(ctx context.Context, conversationID, userID string) (*models.UserSettings, error) {
	var row settingsRow
	err := s.db.WithContext(ctx).Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	us := row.toModel()
	return &us, nil
}
