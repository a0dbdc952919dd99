package client

import (
	"encoding/json"
	"sync"

	"chatrelay/internal/delivery"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Feed connects the push channel to a Store. A feed holds at most one live
// subscription; states are exactly unsubscribed and subscribed.
type Feed struct {
	logger *zap.SugaredLogger
	url    string
	store  *Store

	mu      sync.Mutex
	current *Subscription
}

// Subscription is the handle returned by Subscribe. Closing it tears the
// channel down on every exit path: component teardown, logout, error.
type Subscription struct {
	feed *Feed
	conn *websocket.Conn
	once sync.Once
}

func NewFeed(logger *zap.SugaredLogger, url string, store *Store) *Feed {
	return &Feed{
		logger: logger,
		url:    url,
		store:  store,
	}
}

// Subscribe dials the push channel and starts applying newMessage events to
// the store. Subscribing while already subscribed is a no-op returning the
// live handle. After channel loss the feed returns to unsubscribed and the
// caller decides whether to subscribe again.
func (f *Feed) Subscribe() (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != nil {
		return f.current, nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{feed: f, conn: conn}
	f.current = sub

	go f.readLoop(sub)

	return sub, nil
}

// Subscribed reports whether a live subscription exists
func (f *Feed) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current != nil
}

func (f *Feed) readLoop(sub *Subscription) {
	defer f.detach(sub)

	for {
		_, raw, err := sub.conn.ReadMessage()
		if err != nil {
			f.logger.Debugf("Push channel closed: %v", err)
			return
		}

		var event delivery.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			f.logger.Warnf("Dropping malformed push event: %v", err)
			continue
		}

		if event.Type != delivery.EventNewMessage {
			f.logger.Debugf("Ignoring push event of type %q", event.Type)
			continue
		}

		f.store.ApplyIncoming(event.Message)
	}
}

// detach clears the live subscription if sub still is it
func (f *Feed) detach(sub *Subscription) {
	f.mu.Lock()
	if f.current == sub {
		f.current = nil
	}
	f.mu.Unlock()
}

// Close unsubscribes and closes the underlying connection. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.detach(s)
		_ = s.conn.Close()
	})
}
