// Package session implements the auth seam: opaque bearer tokens mapped to
// user identities in redis with a TTL.
package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("no valid session")

const keyPrefix = "session:"

// Config defines fields used for connecting to redis
type Config struct {
	Addr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DB   int    `env:"REDIS_DB" envDefault:"0"`
}

// Store issues and resolves session tokens
type Store struct {
	logger *zap.SugaredLogger
	rdb    *redis.Client
	ttl    time.Duration
}

func NewStore(logger *zap.SugaredLogger, cfg Config, ttl time.Duration) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	return &Store{
		logger: logger,
		rdb:    rdb,
		ttl:    ttl,
	}
}

// Create issues a new session token for the provided user id
func (s *Store) Create(ctx context.Context, userID int64) (string, error) {
	token := xid.New().String()

	err := s.rdb.Set(ctx, keyPrefix+token, userID, s.ttl).Err()
	if err != nil {
		return "", err
	}

	s.logger.Debugf("Issued session for user (id: %d)", userID)

	return token, nil
}

// Identity resolves a session token to the user id it was issued for.
// Missing and expired tokens both map to ErrUnauthorized.
func (s *Store) Identity(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthorized
	}

	val, err := s.rdb.Get(ctx, keyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrUnauthorized
		}
		return 0, err
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, ErrUnauthorized
	}

	return id, nil
}

// Destroy invalidates a session token. Destroying an unknown token is a no-op.
func (s *Store) Destroy(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, keyPrefix+token).Err()
}

// Close releases the underlying redis client
func (s *Store) Close() error {
	return s.rdb.Close()
}
