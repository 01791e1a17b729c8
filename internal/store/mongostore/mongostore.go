// Package mongostore implements store.Store on MongoDB. Conversations embed
// their per-user settings; counters move with $inc on the matched element.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-chat-realtime/internal/models"
	"go-chat-realtime/internal/store"
)

// Config represents the MongoDB connection settings.
type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	// ConnectTimeout bounds connect plus the initial ping.
	ConnectTimeout time.Duration
}

// reactionRetries bounds the optimistic compare-and-set on reactions.
const reactionRetries = 5

var errReactionConflict = errors.New("mongostore: reaction update kept conflicting")

type Store struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, errors.New("mongo uri and database are required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	cli, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(cctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := cli.Database(cfg.Database)
	s := &Store{
		client:        cli,
		users:         db.Collection(usersCollection),
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
	}
	if err := s.ensureIndexes(cctx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}},
	}); err != nil {
		return fmt.Errorf("conversation index: %w", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("message index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

func matched(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.users.InsertOne(ctx, userToDoc(u))
	return err
}

func (s *Store) FindUser(ctx context.Context, id string) (*models.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return d.toModel(), nil
}

func (s *Store) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	return matched(s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"lastSeen": at}}))
}

// Conversations

func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.LastMessageAt.IsZero() {
		c.LastMessageAt = c.CreatedAt
	}
	_, err := s.conversations.InsertOne(ctx, conversationToDoc(c))
	return err
}

func (s *Store) FindConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var d conversationDoc
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return d.toModel(), nil
}

func (s *Store) ConversationIDsFor(ctx context.Context, userID string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	ids := make([]string, 0)
	for cur.Next(ctx) {
		var d struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
	}
	return ids, cur.Err()
}

func (s *Store) AddParticipant(ctx context.Context, conversationID, userID string) error {
	return matched(s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$addToSet": bson.M{"participants": userID}},
	))
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	res, err := s.conversations.DeleteOne(ctx, bson.M{"_id": conversationID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	_, err = s.messages.DeleteMany(ctx, bson.M{"conversationId": conversationID})
	return err
}

// Messages

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	_, err := s.messages.InsertOne(ctx, messageToDoc(m))
	return err
}

func (s *Store) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	var d messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return d.toModel(), nil
}

// ToggleReaction reads the reactions, applies the toggle and writes back only
// if the array is unchanged since the read.
func (s *Store) ToggleReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	for attempt := 0; attempt < reactionRetries; attempt++ {
		var d messageDoc
		err := s.messages.FindOne(ctx, bson.M{"_id": messageID},
			options.FindOne().SetProjection(bson.M{"reactions": 1})).Decode(&d)
		if err != nil {
			return nil, notFound(err)
		}
		if d.Reactions == nil {
			d.Reactions = []reactionDoc{}
		}

		m := &models.Message{Reactions: reactionsFromDocs(d.Reactions)}
		m.ToggleReaction(userID, emoji)

		res, err := s.messages.UpdateOne(ctx,
			bson.M{"_id": messageID, "reactions": d.Reactions},
			bson.M{"$set": bson.M{"reactions": reactionsToDocs(m.Reactions)}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return m.Reactions, nil
		}
	}
	return nil, errReactionConflict
}

func (s *Store) SoftDeleteMessage(ctx context.Context, messageID string) error {
	return matched(s.messages.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{"$set": bson.M{"isDeleted": true}}))
}

func (s *Store) PurgeMessage(ctx context.Context, messageID string) error {
	res, err := s.messages.DeleteOne(ctx, bson.M{"_id": messageID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Aggregate counters

// ensureSettings pushes an empty settings entry for userID unless one exists.
// The $ne filter keeps the entry unique under concurrent pushes.
func (s *Store) ensureSettings(ctx context.Context, conversationID, userID string) error {
	_, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID, "userSettings.userId": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"userSettings": settingsDoc{UserID: userID}}},
	)
	return err
}

func (s *Store) RecordDelivery(ctx context.Context, conversationID, messageID string, at time.Time, recipients []string) (map[string]int, error) {
	// The pointer only moves forward; an older delivery still counts as unread.
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID, "$or": bson.A{
			bson.M{"lastMessage": bson.M{"$in": bson.A{nil, ""}}},
			bson.M{"lastMessageAt": bson.M{"$lte": at}},
		}},
		bson.M{"$set": bson.M{"lastMessage": messageID, "lastMessageAt": at}},
	)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		n, err := s.conversations.CountDocuments(ctx, bson.M{"_id": conversationID})
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, store.ErrNotFound
		}
	}

	counts := make(map[string]int, len(recipients))
	for _, uid := range recipients {
		if err := s.ensureSettings(ctx, conversationID, uid); err != nil {
			return nil, err
		}

		var d conversationDoc
		err := s.conversations.FindOneAndUpdate(ctx,
			bson.M{"_id": conversationID, "userSettings.userId": uid},
			bson.M{
				"$inc": bson.M{"userSettings.$.unreadCount": 1},
				"$set": bson.M{"userSettings.$.isUnread": true},
			},
			options.FindOneAndUpdate().
				SetReturnDocument(options.After).
				SetProjection(bson.M{"userSettings": 1}),
		).Decode(&d)
		if err != nil {
			return nil, notFound(err)
		}
		if us := d.toModel().SettingsFor(uid); us != nil {
			counts[uid] = us.UnreadCount
		}
	}
	return counts, nil
}

func (s *Store) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	if err := s.ensureSettings(ctx, conversationID, userID); err != nil {
		return err
	}
	return matched(s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID, "userSettings.userId": userID},
		bson.M{"$set": bson.M{
			"userSettings.$.unreadCount": 0,
			"userSettings.$.isUnread":    false,
			"userSettings.$.lastReadAt":  at,
		}},
	))
}

func (s *Store) Settings(ctx context.Context, conversationID, userID string) (*models.UserSettings, error) {
	c, err := s.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	us := c.SettingsFor(userID)
	if us == nil {
		return nil, store.ErrNotFound
	}
	out := *us
	return &out, nil
}
