package delivery

import (
	"time"

	"chatrelay/internal/storage"
)

// Message is the wire shape exchanged over HTTP responses and the push channel.
// Delivery status is a client-local annotation and never appears here.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Body       string    `json:"body"`
	MediaURL   string    `json:"mediaUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Peer is a correspondent entry for the conversation list
type Peer struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	LastActive time.Time `json:"lastActive"`
}

// EventNewMessage labels the single server-to-client push event
const EventNewMessage = "newMessage"

// Event is the envelope pushed over a live channel
type Event struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

func fromStored(m storage.Message) Message {
	return Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Text,
		MediaURL:   m.MediaURL,
		CreatedAt:  m.CreatedAt,
	}
}
