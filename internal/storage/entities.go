package storage

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Text       string
	MediaURL   string
	CreatedAt  time.Time
}

// Peer is a correspondent of a user together with the time of the last
// message the two exchanged.
type Peer struct {
	User       User
	LastActive time.Time
}
