package lifecycle

import (
	"context"
	"time"

	"github.com/webitel/chat-core/internal/domain/model"
)

// Store is the narrow slice of the Store Adapter (spec §4.6) the Message
// Lifecycle Engine depends on. SendMessage is the one operation the spec
// requires to be transactional: message insert, conversation meta update,
// and unread increment all commit together or not at all (spec §4.5 step 2).
type Store interface {
	FindConversationByID(ctx context.Context, conversationID string) (*model.Conversation, error)
	FindOrCreateConversation(ctx context.Context, participantA, participantB string) (*model.Conversation, error)
	FindUsernameByID(ctx context.Context, userID string) (string, error)

	// SendMessage persists msg with status=sent and atomically bumps
	// unreadCount[recipientID] and the conversation's last-message fields,
	// returning the updated conversation.
	SendMessage(ctx context.Context, msg *model.Message, recipientID string) (*model.Conversation, error)

	FindMessageByID(ctx context.Context, messageID string) (*model.Message, error)

	// TransitionDelivered moves messageID to delivered iff it is still
	// sent, setting deliveredAt. A no-op (ok=false, no error) if the
	// message has already advanced past sent.
	TransitionDelivered(ctx context.Context, messageID string, at time.Time) (ok bool, err error)

	// TransitionRead moves messageID to read on behalf of readerID,
	// decrementing unreadCount[readerID] if positive, returning the
	// updated message and conversation.
	TransitionRead(ctx context.Context, messageID, readerID string, at time.Time) (*model.Message, *model.Conversation, error)

	// BulkTransitionRead marks every unread inbound message in
	// conversationID as read for readerID in one transaction, zeroing
	// unreadCount[readerID].
	BulkTransitionRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]*model.Message, *model.Conversation, error)

	// FindPendingInbound returns every message addressed to userID
	// (sender != userID) still in status=sent, across all conversations
	// userID participates in (spec §4.5 "On recipient connect").
	FindPendingInbound(ctx context.Context, userID string) ([]*model.Message, error)

	// BulkTransitionDelivered marks every message in messageIDs as
	// delivered, skipping any that already advanced past sent.
	BulkTransitionDelivered(ctx context.Context, messageIDs []string, at time.Time) ([]*model.Message, error)
}
