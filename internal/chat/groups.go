package chat

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"go-chat-realtime/internal/models"
	"go-chat-realtime/internal/store"
)

func groupData(conv *models.Conversation) models.GroupData {
	return models.GroupData{ConversationID: conv.ID, Conversation: conv.Public()}
}

// GroupCreated announces a group the actor just created to the other
// participants and subscribes every live session of every participant.
func (s *Service) GroupCreated(ctx context.Context, actor Actor, conversationID string) error {
	conv, err := s.conversationFor(ctx, conversationID, actor.User.ID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrInvalidInput
	}

	data := groupData(conv)
	for _, uid := range conv.Participants {
		s.emit.JoinUser(uid, conv.ID)
		if uid != actor.User.ID {
			s.emit.ToUser(uid, models.EventGroupJoined, data)
		}
	}
	return nil
}

// GroupUpdated rebroadcasts the stored group to its room.
func (s *Service) GroupUpdated(ctx context.Context, actor Actor, conversationID string) error {
	conv, err := s.conversationFor(ctx, conversationID, actor.User.ID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrInvalidInput
	}
	s.emit.ToRoom(conv.ID, models.EventGroupUpdated, groupData(conv))
	return nil
}

// MemberAdded adds memberID to a group. Only the group admin may add.
// Adding an existing participant changes nothing but is still announced.
func (s *Service) MemberAdded(ctx context.Context, actor Actor, req models.AddMemberData) error {
	if req.UserID == "" {
		return ErrInvalidInput
	}
	conv, err := s.conversationFor(ctx, req.ConversationID, actor.User.ID)
	if err != nil {
		return err
	}
	if !conv.IsGroup || conv.GroupAdmin != actor.User.ID {
		return ErrForbidden
	}
	if _, err := s.store.FindUser(ctx, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidInput
		}
		return &PersistenceError{Op: "load member", Err: err}
	}
	if err := s.store.AddParticipant(ctx, conv.ID, req.UserID); err != nil {
		return &PersistenceError{Op: "add participant", Err: err}
	}
	conv, err = s.store.FindConversation(ctx, conv.ID)
	if err != nil {
		return &PersistenceError{Op: "reload conversation", Err: err}
	}

	data := groupData(conv)
	s.emit.JoinUser(req.UserID, conv.ID)
	s.emit.ToUser(req.UserID, models.EventGroupJoined, data)
	s.emit.ToRoom(conv.ID, models.EventGroupUpdated, data)
	return nil
}

// DeleteGroup removes a group and all its messages. Only the admin may
// delete; the room is told before it is dissolved.
func (s *Service) DeleteGroup(ctx context.Context, actor Actor, conversationID string) error {
	conv, err := s.conversationFor(ctx, conversationID, actor.User.ID)
	if err != nil {
		return err
	}
	if !conv.IsGroup || conv.GroupAdmin != actor.User.ID {
		return ErrForbidden
	}
	if err := s.store.DeleteConversation(ctx, conv.ID); err != nil {
		return &PersistenceError{Op: "delete conversation", Err: err}
	}

	s.emit.ToRoom(conv.ID, models.EventGroupDeleted, models.GroupData{ConversationID: conv.ID})
	s.emit.RemoveRoom(conv.ID)
	return nil
}

// FriendRequestSent relays a friend request to the target's sessions.
func (s *Service) FriendRequestSent(ctx context.Context, actor Actor, req models.FriendRequestData) error {
	if req.TargetUserID == "" || req.TargetUserID == actor.User.ID {
		return ErrInvalidInput
	}
	s.emit.ToUser(req.TargetUserID, models.EventNewFriendRequest, models.FriendRequestEventData{
		From:    actor.sender(),
		Request: req.Request,
	})
	return nil
}

// FriendRequestAccepted relays the acceptance. When it carries the direct
// conversation both users now share, their live sessions join its room.
func (s *Service) FriendRequestAccepted(ctx context.Context, actor Actor, req models.FriendRequestData) error {
	if req.TargetUserID == "" || req.TargetUserID == actor.User.ID {
		return ErrInvalidInput
	}

	if len(req.Conversation) > 0 {
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(req.Conversation, &ref); err == nil && ref.ID != "" {
			conv, err := s.conversationFor(ctx, ref.ID, actor.User.ID)
			if err != nil {
				return err
			}
			if !conv.IsParticipant(req.TargetUserID) {
				return ErrNotParticipant
			}
			s.emit.JoinUser(actor.User.ID, conv.ID)
			s.emit.JoinUser(req.TargetUserID, conv.ID)
		}
	}

	s.emit.ToUser(req.TargetUserID, models.EventRequestAccepted, models.FriendRequestEventData{
		From:         actor.sender(),
		Conversation: req.Conversation,
	})
	return nil
}
