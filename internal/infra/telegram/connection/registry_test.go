package connection_test

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/go-faster/errors"
	"github.com/gotd/td/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/domain/transport/transporttest"
	"telegram-inbox/internal/infra/telegram/connection"
)

func TestRegistry_OneClientPerCredentials(t *testing.T) {
	t.Parallel()
	created := 0
	r := connection.NewRegistry(func(model.Credentials) (transport.Client, error) {
		created++
		return &transporttest.Fake{}, nil
	})

	a := model.Credentials{APIID: 1, APIHash: "a"}
	b := model.Credentials{APIID: 2, APIHash: "a"}

	c1, err := r.Acquire(a)
	require.NoError(t, err)
	c2, err := r.Acquire(a)
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	c3, err := r.Acquire(b)
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Release(a))
	require.NoError(t, r.Release(a))
	assert.True(t, c1.(*transporttest.Fake).Closed())
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Shutdown())
	assert.True(t, c3.(*transporttest.Fake).Closed())
	_, err = r.Acquire(a)
	assert.ErrorIs(t, err, connection.ErrClosed)
}

func TestRegistry_RejectsInvalidCredentials(t *testing.T) {
	t.Parallel()
	r := connection.NewRegistry(func(model.Credentials) (transport.Client, error) {
		t.Fatal("factory must not be called")
		return nil, nil
	})
	_, err := r.Acquire(model.Credentials{})
	assert.Equal(t, model.KindInvalidCredentials, model.KindOf(err))
}

func TestIsNetworkError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "connDead", err: errors.Wrap(pool.ErrConnDead, "invoke"), want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "netOpError", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
		{name: "rpcError", err: errors.New("PHONE_CODE_INVALID"), want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := connection.IsNetworkError(tc.err); got != tc.want {
				t.Fatalf("IsNetworkError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
