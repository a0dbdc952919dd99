// Package client holds the UI-facing side of the chat core: a per-conversation
// message store with optimistic sends, an HTTP client for the message API and
// a websocket feed for pushed events.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatrelay/internal/delivery"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

var ErrNoRecipientSelected = errors.New("no recipient selected")

// Status annotates a conversation entry locally, it never travels on the wire
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is one entry of the conversation view. Provisional entries carry a
// TempID and no server id until reconciled.
type Message struct {
	ID         int64
	TempID     string
	SenderID   int64
	ReceiverID int64
	Body       string
	MediaURL   string
	CreatedAt  time.Time
	Status     Status
}

// Peer is the conversation partner selected in the UI
type Peer struct {
	ID       int64
	Username string
}

// API is the delivery surface the store talks to
type API interface {
	Send(ctx context.Context, receiverID int64, text, mediaURL string) (delivery.Message, error)
	ListConversation(ctx context.Context, peerID int64) ([]delivery.Message, error)
}

// Notifier surfaces transient user-visible errors, separately from in-place
// entry state
type Notifier interface {
	Notify(reason string)
}

// NotifierFunc adapts a plain function to the Notifier interface
type NotifierFunc func(reason string)

func (f NotifierFunc) Notify(reason string) { f(reason) }

// Store is the owned client-side state object: the only mutation surface of
// the conversation view. Optimistic inserts, send confirmations and incoming
// pushes all converge here and reconcile by id.
type Store struct {
	logger *zap.SugaredLogger
	api    API
	notify Notifier
	userID int64

	mu       sync.Mutex
	selected *Peer
	messages []Message
}

func NewStore(logger *zap.SugaredLogger, api API, notify Notifier, userID int64) *Store {
	return &Store{
		logger: logger,
		api:    api,
		notify: notify,
		userID: userID,
	}
}

// SendMessage inserts a provisional entry into the current conversation and
// kicks off the network send. It returns the temporary id of the provisional
// entry; reconciliation happens asynchronously when the send resolves.
// Each in-flight send reconciles independently by its own temporary id.
func (s *Store) SendMessage(ctx context.Context, text, mediaURL string) (string, error) {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		s.notify.Notify("No recipient selected")
		return "", ErrNoRecipientSelected
	}

	peerID := s.selected.ID
	tempID := xid.New().String()
	s.messages = append(s.messages, Message{
		TempID:     tempID,
		SenderID:   s.userID,
		ReceiverID: peerID,
		Body:       text,
		MediaURL:   mediaURL,
		CreatedAt:  time.Now(),
		Status:     StatusPending,
	})
	s.mu.Unlock()

	go s.resolve(ctx, tempID, peerID, text, mediaURL)

	return tempID, nil
}

// resolve performs the network send and reconciles the provisional entry.
// The selected peer is re-checked at apply time: a send outliving a
// conversation switch resolves into a view that no longer holds its
// provisional entry and is dropped.
func (s *Store) resolve(ctx context.Context, tempID string, peerID int64, text, mediaURL string) {
	sent, err := s.api.Send(ctx, peerID, text, mediaURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil || s.selected.ID != peerID {
		s.logger.Debugf("Dropping resolution of send (%s): conversation switched", tempID)
		return
	}

	idx := s.indexByTempID(tempID)
	if idx < 0 {
		return
	}

	if err != nil {
		s.messages[idx].Status = StatusFailed
		s.notify.Notify("Failed to send message: " + err.Error())
		return
	}

	s.messages[idx] = Message{
		ID:         sent.ID,
		SenderID:   sent.SenderID,
		ReceiverID: sent.ReceiverID,
		Body:       sent.Body,
		MediaURL:   sent.MediaURL,
		CreatedAt:  sent.CreatedAt,
		Status:     StatusSent,
	}
}

// ApplyIncoming merges a pushed message into the view. Applying the same
// message twice is a no-op, and messages for conversations other than the
// selected one are dropped (they stay durable server-side).
func (s *Store) ApplyIncoming(msg delivery.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return
	}
	if msg.SenderID != s.selected.ID && msg.ReceiverID != s.selected.ID {
		return
	}
	if s.containsID(msg.ID) {
		return
	}

	s.messages = append(s.messages, Message{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Body:       msg.Body,
		MediaURL:   msg.MediaURL,
		CreatedAt:  msg.CreatedAt,
		Status:     StatusSent,
	})
}

// SetSelectedPeer replaces the active conversation and fetches its history.
// Optimistic state of the previous conversation is discarded. A failed fetch
// leaves an empty view and notifies the user.
func (s *Store) SetSelectedPeer(ctx context.Context, peer Peer) {
	s.mu.Lock()
	p := peer
	s.selected = &p
	s.messages = nil
	s.mu.Unlock()

	fetched, err := s.api.ListConversation(ctx, peer.ID)
	if err != nil {
		s.notify.Notify("Failed to load messages: " + err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// the user may have moved on while the fetch was in flight
	if s.selected == nil || s.selected.ID != peer.ID {
		return
	}

	messages := make([]Message, 0, len(fetched))
	for _, m := range fetched {
		messages = append(messages, Message{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Body:       m.Body,
			MediaURL:   m.MediaURL,
			CreatedAt:  m.CreatedAt,
			Status:     StatusSent,
		})
	}
	s.messages = messages
}

// Clear resets the store to no peer and an empty view, used on logout
func (s *Store) Clear() {
	s.mu.Lock()
	s.selected = nil
	s.messages = nil
	s.mu.Unlock()
}

// SelectedPeer returns the active conversation partner if one is selected
func (s *Store) SelectedPeer() (Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return Peer{}, false
	}
	return *s.selected, true
}

// Messages returns a snapshot of the current conversation view
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}

func (s *Store) indexByTempID(tempID string) int {
	for i, m := range s.messages {
		if m.TempID == tempID {
			return i
		}
	}
	return -1
}

func (s *Store) containsID(id int64) bool {
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
