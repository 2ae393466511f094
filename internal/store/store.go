// Package store implements spec §4.6: the Store Adapter, the durable
// persistence boundary for users, conversations, and messages. Grounded on
// the SQLite repository pattern in ashureev-shsh-labs's internal/store
// (schema-on-boot, WAL-mode connection, busy-timeout retry), adapted from a
// single-entity key-value shape to the relational users/conversations/
// messages model this domain needs.
package store

import (
	"context"
	"time"

	"github.com/webitel/chat-core/internal/domain/model"
)

// Store is the full Store Adapter surface (spec §4.6). It is the union of
// the narrower interfaces each domain package declares for itself
// (identitygate.UserLookup, presence.UserStore, room.ConversationStore,
// lifecycle.Store) — this package implements all of them at once, but no
// domain package imports this interface directly, only its own slice of it.
type Store interface {
	// Users
	FindUserByID(ctx context.Context, userID string) (*model.User, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	FindUsernameByID(ctx context.Context, userID string) (string, error)
	SetUserOnline(ctx context.Context, userID string, online bool) error

	// Conversations
	FindConversationByID(ctx context.Context, conversationID string) (*model.Conversation, error)
	FindOrCreateConversation(ctx context.Context, participantA, participantB string) (*model.Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)

	// Messages
	SendMessage(ctx context.Context, msg *model.Message, recipientID string) (*model.Conversation, error)
	FindMessageByID(ctx context.Context, messageID string) (*model.Message, error)
	TransitionDelivered(ctx context.Context, messageID string, at time.Time) (bool, error)
	TransitionRead(ctx context.Context, messageID, readerID string, at time.Time) (*model.Message, *model.Conversation, error)
	BulkTransitionRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]*model.Message, *model.Conversation, error)
	FindPendingInbound(ctx context.Context, userID string) ([]*model.Message, error)
	BulkTransitionDelivered(ctx context.Context, messageIDs []string, at time.Time) ([]*model.Message, error)

	Close() error
}
