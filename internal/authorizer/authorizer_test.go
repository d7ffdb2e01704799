package authorizer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenVerifyRoundtrip(t *testing.T) {
	key := []byte("shared-secret")
	tok, err := Token(key, "EXP", "10.0.0.5")
	require.NoError(t, err)
	require.True(t, Verify(key, "EXP", "10.0.0.5", tok))
	require.False(t, Verify(key, "EXP", "10.0.0.6", tok))
	require.False(t, Verify([]byte("wrong-key"), "EXP", "10.0.0.5", tok))
}

func TestAuthorizeAcceptsValidRequest(t *testing.T) {
	key := []byte("shared-secret")
	srv := NewServer(key, "EXP")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go srv.Serve(l)

	require.NoError(t, Authorize(l.Addr().String(), time.Second, key, "EXP", "10.0.0.5"))
	require.True(t, srv.IsAuthorized("10.0.0.5"))
}

func TestAuthorizeRejectsWrongFeed(t *testing.T) {
	key := []byte("shared-secret")
	srv := NewServer(key, "EXP")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go srv.Serve(l)

	err = Authorize(l.Addr().String(), time.Second, key, "OTHER", "10.0.0.5")
	require.Error(t, err)
	require.False(t, srv.IsAuthorized("10.0.0.5"))
}
