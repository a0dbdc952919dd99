// Package delivery validates, persists and routes direct messages: a send is
// durable once the store accepts it, real-time push to the receiver is best
// effort on top.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatrelay/internal/registry"
	"chatrelay/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrInvalidRecipient = errors.New("receiver not found")
	ErrInvalidPayload   = errors.New("empty or oversized body")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// MaxTextBytes caps the text part of a message body
const MaxTextBytes = 4096

// Storer is the persistence surface the service depends on
type Storer interface {
	UserByID(ctx context.Context, id int64) (storage.User, error)
	CreateMessage(ctx context.Context, sender, receiver int64, text, mediaURL string) (storage.Message, error)
	MessagesBetween(ctx context.Context, a, b int64, limit int, beforeID int64) ([]storage.Message, error)
	PeersByUserID(ctx context.Context, user int64) ([]storage.Peer, error)
}

// ChannelLookup resolves a user id to its live push channel if one exists
type ChannelLookup interface {
	Lookup(userID int64) (registry.Channel, bool)
}

// Service implements message send and conversation queries
type Service struct {
	logger   *zap.SugaredLogger
	store    Storer
	channels ChannelLookup
}

func NewService(logger *zap.SugaredLogger, store Storer, channels ChannelLookup) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		channels: channels,
	}
}

// Send persists a message from sender to receiver and returns the canonical
// record. After the store accepts the row a push to the receiver's live
// channel is attempted in a separate goroutine; a failed or impossible push
// never fails the send, the receiver picks the message up on its next fetch.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64, text, mediaURL string) (Message, error) {
	if text == "" && mediaURL == "" {
		return Message{}, ErrInvalidPayload
	}
	if len(text) > MaxTextBytes {
		return Message{}, ErrInvalidPayload
	}

	if _, err := s.store.UserByID(ctx, receiverID); err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			return Message{}, ErrInvalidRecipient
		}
		return Message{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	stored, err := s.store.CreateMessage(ctx, senderID, receiverID, text, mediaURL)
	if err != nil {
		if errors.Is(err, storage.ErrReceiverNotExist) {
			return Message{}, ErrInvalidRecipient
		}
		return Message{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	msg := fromStored(stored)
	go s.push(msg)

	return msg, nil
}

// push delivers msg to the receiver's registered channel if one is present.
// Failures are logged only, the message is already durable.
func (s *Service) push(msg Message) {
	ch, ok := s.channels.Lookup(msg.ReceiverID)
	if !ok {
		s.logger.Debugf("No live channel for user (id: %d), skipping push", msg.ReceiverID)
		return
	}

	payload, err := json.Marshal(Event{Type: EventNewMessage, Message: msg})
	if err != nil {
		s.logger.Errorf("marshaling push event: %v", err)
		return
	}

	if err := ch.Push(payload); err != nil {
		s.logger.Warnf("Push to user (id: %d) failed: %v", msg.ReceiverID, err)
	}
}

// ListConversation returns messages between userID and peerID sorted by
// creation time ascending. limit and beforeID page through long histories.
func (s *Service) ListConversation(ctx context.Context, userID, peerID int64, limit int, beforeID int64) ([]Message, error) {
	stored, err := s.store.MessagesBetween(ctx, userID, peerID, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	messages := make([]Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, fromStored(m))
	}

	return messages, nil
}

// ListPeers returns users with whom userID exchanged at least one message,
// most recently active first.
func (s *Service) ListPeers(ctx context.Context, userID int64) ([]Peer, error) {
	stored, err := s.store.PeersByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			return nil, storage.ErrUserNotExist
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	peers := make([]Peer, 0, len(stored))
	for _, p := range stored {
		peers = append(peers, Peer{
			ID:         p.User.ID,
			Username:   p.User.Username,
			LastActive: p.LastActive,
		})
	}

	return peers, nil
}
