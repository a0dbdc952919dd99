package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func bootstrap(t *testing.T) *Store {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	return NewStore(logger.Sugar(), Config{Addr: "localhost:6379"}, time.Minute)
}

func TestCreateIdentity(t *testing.T) {
	s := bootstrap(t)

	token, err := s.Create(context.Background(), 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := s.Identity(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestIdentityUnknownToken(t *testing.T) {
	s := bootstrap(t)

	_, err := s.Identity(context.Background(), "no-such-token")
	require.Equal(t, ErrUnauthorized, err)
}

func TestIdentityEmptyToken(t *testing.T) {
	s := bootstrap(t)

	_, err := s.Identity(context.Background(), "")
	require.Equal(t, ErrUnauthorized, err)
}

func TestDestroy(t *testing.T) {
	s := bootstrap(t)

	token, err := s.Create(context.Background(), 7)
	require.NoError(t, err)

	require.NoError(t, s.Destroy(context.Background(), token))

	_, err = s.Identity(context.Background(), token)
	require.Equal(t, ErrUnauthorized, err)
}
