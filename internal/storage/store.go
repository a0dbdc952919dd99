package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"chatrelay/internal/storage/zapadapter"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrUserExists       = errors.New("user already exists")
	ErrUserNotExist     = errors.New("user does not exist")
	ErrSenderNotExist   = errors.New("sender does not exist")
	ErrReceiverNotExist = errors.New("receiver does not exist")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// NewStore sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func NewStore(logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

// CreateUser creates user and returns its id.
func (s *Store) CreateUser(ctx context.Context, username string) (int64, error) {
	s.logger.Debugf("Creating user (%s)", username)

	var id int64
	sql := "insert into users (username, created_at) values ($1, $2) returning id"
	err := s.db.QueryRow(ctx, sql, username, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return 0, ErrUserExists
			}
		}
		return 0, err
	}

	s.logger.Debugf("Created user (%s) with id %d", username, id)

	return id, nil
}

// UserByID returns the user record for the provided id
func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	sql := "select id, trim(username), created_at from users where id = $1"
	err := s.db.QueryRow(ctx, sql, id).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}

	return u, nil
}

// CreateMessage persists a direct message and returns the full row
// with the server-assigned id and creation time
func (s *Store) CreateMessage(ctx context.Context, sender, receiver int64, text, mediaURL string) (Message, error) {
	s.logger.Debugf("Creating message from user (id: %d) to user (id: %d)", sender, receiver)

	m := Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		MediaURL:   mediaURL,
	}

	sql := `insert into messages (sender_id, receiver_id, text, media_url, created_at)
			values ($1, $2, $3, $4, $5)
			returning id, created_at`
	err := s.db.QueryRow(ctx, sql, sender, receiver, text, mediaURL, time.Now()).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.ForeignKeyViolation {
				switch pgErr.ConstraintName {
				case "messages_sender_id_fkey":
					return Message{}, ErrSenderNotExist
				case "messages_receiver_id_fkey":
					return Message{}, ErrReceiverNotExist
				}
			}
		}
		return Message{}, err
	}

	return m, nil
}

// MessagesBetween returns messages exchanged between two users sorted by creation time
// (from earliest to latest). A positive limit caps the result size; beforeID > 0
// restricts the result to messages with smaller ids and enables keyset pagination.
func (s *Store) MessagesBetween(ctx context.Context, a, b int64, limit int, beforeID int64) ([]Message, error) {
	s.logger.Debugf("Retrieving messages between users (ids: %d, %d)", a, b)

	sql := `select id, sender_id, receiver_id, text, media_url, created_at
			  from messages
			 where ((sender_id = $1 and receiver_id = $2) or (sender_id = $2 and receiver_id = $1))`
	args := []interface{}{a, b}

	if beforeID > 0 {
		sql += " and id < $3"
		args = append(args, beforeID)
	}
	sql += " order by created_at asc, id asc"
	if limit > 0 {
		sql += " limit " + strconv.Itoa(limit)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.MediaURL, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// PeersByUserID returns distinct correspondents of a user ordered by the time of
// the last exchanged message (from latest to oldest)
func (s *Store) PeersByUserID(ctx context.Context, user int64) ([]Peer, error) {
	s.logger.Debugf("Retrieving peers for user (id: %d)", user)

	// check if user exists
	var i int8
	sql := "select 1 from users where id = $1"
	err := s.db.QueryRow(ctx, sql, user).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotExist
		}
		return nil, err
	}

	sql = ` -- correspondents ordered by last message
			with peer_activity as (
				select case when sender_id = $1 then receiver_id else sender_id end as peer_id,
					   max(created_at) as last_active
				  from messages
				 where sender_id = $1 or receiver_id = $1
				 group by peer_id
			)

			select jsonb_build_object('id', users.id, 'username', trim(users.username), 'created_at', users.created_at),
				   peer_activity.last_active
			  from peer_activity
			  join users
				on users.id = peer_activity.peer_id
			 order by peer_activity.last_active desc`

	rows, err := s.db.Query(ctx, sql, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []Peer
	for rows.Next() {
		var (
			userJSON   pgtype.JSONB
			lastActive time.Time
		)
		err = rows.Scan(&userJSON, &lastActive)
		if err != nil {
			return nil, err
		}

		p := Peer{LastActive: lastActive}
		err = json.Unmarshal(userJSON.Bytes, &p.User)
		if err != nil {
			return nil, err
		}

		peers = append(peers, p)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d peers", len(peers))

	return peers, nil
}
