package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/webitel/chat-core/internal/domain/model"
)

// ResilientStore wraps a Store's write paths in a circuit breaker so a
// struggling database degrades the Message Lifecycle Engine's error
// classification (spec §7's StoreTransient/StoreFatal split) instead of
// letting every session pile up on a slow backend. Grounded on
// RoseWrightdev-Video-Conferencing's SFUClient
// (pkg/sfu/client.go), same Settings/Execute shape, applied to SQL writes
// instead of an SFU RPC.
type ResilientStore struct {
	Store
	cb *gobreaker.CircuitBreaker[any]
}

// NewResilientStore wraps inner's write operations in a circuit breaker.
func NewResilientStore(inner Store) *ResilientStore {
	settings := gobreaker.Settings{
		Name:        "store-adapter",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &ResilientStore{Store: inner, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// execute runs fn through the breaker, translating an open-circuit
// rejection into a retryable error so lifecycle's classifyStoreErr treats
// it as KindStoreTransient rather than KindStoreFatal.
func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &wrappedErr{err: err, transient: true}
		}
		return zero, err
	}
	return result.(T), nil
}

func (r *ResilientStore) SendMessage(ctx context.Context, msg *model.Message, recipientID string) (*model.Conversation, error) {
	return execute(r.cb, func() (*model.Conversation, error) {
		return r.Store.SendMessage(ctx, msg, recipientID)
	})
}

func (r *ResilientStore) FindOrCreateConversation(ctx context.Context, participantA, participantB string) (*model.Conversation, error) {
	return execute(r.cb, func() (*model.Conversation, error) {
		return r.Store.FindOrCreateConversation(ctx, participantA, participantB)
	})
}

func (r *ResilientStore) TransitionDelivered(ctx context.Context, messageID string, at time.Time) (bool, error) {
	return execute(r.cb, func() (bool, error) {
		return r.Store.TransitionDelivered(ctx, messageID, at)
	})
}

func (r *ResilientStore) BulkTransitionDelivered(ctx context.Context, messageIDs []string, at time.Time) ([]*model.Message, error) {
	return execute(r.cb, func() ([]*model.Message, error) {
		return r.Store.BulkTransitionDelivered(ctx, messageIDs, at)
	})
}

type readResult struct {
	msg  *model.Message
	conv *model.Conversation
}

func (r *ResilientStore) TransitionRead(ctx context.Context, messageID, readerID string, at time.Time) (*model.Message, *model.Conversation, error) {
	res, err := execute(r.cb, func() (readResult, error) {
		msg, conv, err := r.Store.TransitionRead(ctx, messageID, readerID, at)
		return readResult{msg: msg, conv: conv}, err
	})
	return res.msg, res.conv, err
}

type bulkReadResult struct {
	messages []*model.Message
	conv     *model.Conversation
}

func (r *ResilientStore) BulkTransitionRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]*model.Message, *model.Conversation, error) {
	res, err := execute(r.cb, func() (bulkReadResult, error) {
		messages, conv, err := r.Store.BulkTransitionRead(ctx, conversationID, readerID, at)
		return bulkReadResult{messages: messages, conv: conv}, err
	})
	return res.messages, res.conv, err
}

func (r *ResilientStore) SetUserOnline(ctx context.Context, userID string, online bool) error {
	_, err := execute(r.cb, func() (struct{}, error) {
		return struct{}{}, r.Store.SetUserOnline(ctx, userID, online)
	})
	return err
}
