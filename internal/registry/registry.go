// Package registry tracks which users currently hold a live push channel.
package registry

import (
	"sync"

	"go.uber.org/zap"
)

// Channel is a live push endpoint for a single connected client
type Channel interface {
	// Push delivers an event payload to the client. The error reports an
	// unreachable or backed-up client; the caller treats it as non-fatal.
	Push(payload []byte) error
	// Close tears the channel down. Safe to call more than once.
	Close()
}

// Registry maps user ids to at most one live channel each
type Registry struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	channels map[int64]Channel
}

func New(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		logger:   logger,
		channels: make(map[int64]Channel),
	}
}

// Register stores ch as the single live channel for userID. Any previously
// registered channel is closed, last writer wins.
func (r *Registry) Register(userID int64, ch Channel) {
	r.mu.Lock()
	prev := r.channels[userID]
	r.channels[userID] = ch
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
		r.logger.Debugf("Replaced channel for user (id: %d)", userID)
		return
	}

	r.logger.Debugf("Registered channel for user (id: %d)", userID)
}

// Unregister removes the mapping for userID only if ch is still the registered
// channel. A disconnect of a superseded socket must not tear down its successor.
func (r *Registry) Unregister(userID int64, ch Channel) {
	r.mu.Lock()
	if r.channels[userID] == ch {
		delete(r.channels, userID)
	}
	r.mu.Unlock()

	r.logger.Debugf("Unregistered channel for user (id: %d)", userID)
}

// Lookup returns the live channel for userID if one is registered
func (r *Registry) Lookup(userID int64) (Channel, bool) {
	r.mu.Lock()
	ch, ok := r.channels[userID]
	r.mu.Unlock()

	return ch, ok
}
