package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
)

// MessageRow carries the fields needed for a bulk message import
type MessageRow struct {
	SenderID   int64
	ReceiverID int64
	Text       string
	CreatedAt  time.Time
}

type messageBulk struct {
	rows []MessageRow
	idx  int
}

func (r MessageRow) toInterface() []interface{} {
	return []interface{}{r.SenderID, r.ReceiverID, r.Text, "", r.CreatedAt}
}

func copyFromMessages(rows []MessageRow) pgx.CopyFromSource {
	return &messageBulk{
		rows: rows,
		idx:  -1,
	}
}

func (mb *messageBulk) Next() bool {
	mb.idx++
	return mb.idx < len(mb.rows)
}

func (mb *messageBulk) Values() ([]interface{}, error) {
	return mb.rows[mb.idx].toInterface(), nil
}

func (mb *messageBulk) Err() error {
	return nil
}

// CopyMessages bulk inserts message history rows via CopyFrom and returns the
// number of copied rows. Rows get ids assigned by the database; the call is
// meant for history import and test seeding, not for the send path.
func (s *Store) CopyMessages(ctx context.Context, rows []MessageRow) (int64, error) {
	n, err := s.db.CopyFrom(
		ctx,
		pgx.Identifier{"messages"},
		[]string{"sender_id", "receiver_id", "text", "media_url", "created_at"},
		copyFromMessages(rows),
	)
	if err != nil {
		return 0, err
	}

	return n, nil
}
