package demo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-inbox/internal/adapters/telegram/demo"
	"telegram-inbox/internal/domain/dialogs"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
)

var (
	testCreds = model.Credentials{APIID: 123, APIHash: "abc"}
	testPhone = "+15551234567"
	fixedNow  = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newClient(t *testing.T, password string) *demo.Client {
	t.Helper()
	c, err := demo.New(demo.Config{Password: password, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func signIn(t *testing.T, c *demo.Client) {
	t.Helper()
	ctx := context.Background()
	hash, err := c.SendCode(ctx, testPhone, testCreds)
	require.NoError(t, err)
	res, err := c.SignIn(ctx, testPhone, hash, "54321")
	require.NoError(t, err)
	require.Equal(t, transport.SignInAuthorized, res.Status)
}

func TestClient_SignInRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t, "")

	_, err := c.SendCode(ctx, "5551234", testCreds)
	assert.Equal(t, model.KindInvalidPhoneFormat, model.KindOf(err))

	hash, err := c.SendCode(ctx, testPhone, testCreds)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	_, err = c.SignIn(ctx, testPhone, hash, "1234")
	assert.Equal(t, model.KindInvalidCode, model.KindOf(err))

	_, err = c.SignIn(ctx, testPhone, "stale", "54321")
	assert.Equal(t, model.KindCodeExpired, model.KindOf(err))

	res, err := c.SignIn(ctx, testPhone, hash, "54321")
	require.NoError(t, err)
	assert.Equal(t, transport.SignInAuthorized, res.Status)
	assert.Equal(t, testPhone, res.User.Phone)
	assert.Equal(t, "Demo User", res.User.DisplayName)
}

func TestClient_PasswordFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t, "right")

	hash, err := c.SendCode(ctx, testPhone, testCreds)
	require.NoError(t, err)
	res, err := c.SignIn(ctx, testPhone, hash, "54321")
	require.NoError(t, err)
	assert.Equal(t, transport.SignInPasswordRequired, res.Status)

	_, err = c.CheckPassword(ctx, "wrong")
	assert.Equal(t, model.KindInvalidPassword, model.KindOf(err))

	user, err := c.CheckPassword(ctx, "right")
	require.NoError(t, err)
	assert.Equal(t, testPhone, user.Phone)
}

func TestClient_SessionRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t, "")

	_, err := c.ExportSession(ctx)
	assert.Equal(t, model.KindNotAuthenticated, model.KindOf(err))

	signIn(t, c)
	artifact, err := c.ExportSession(ctx)
	require.NoError(t, err)

	fresh := newClient(t, "")
	user, err := fresh.RestoreSession(ctx, artifact)
	require.NoError(t, err)
	assert.Equal(t, testPhone, user.Phone)

	_, err = fresh.RestoreSession(ctx, "not base64 !!")
	assert.Equal(t, model.KindNotAuthenticated, model.KindOf(err))
	_, err = fresh.RestoreSession(ctx, "e30=") // {}
	assert.Equal(t, model.KindNotAuthenticated, model.KindOf(err))
}

func TestClient_DialogsThroughFetcher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t, "")

	_, err := c.ListDialogs(ctx, 10)
	assert.Equal(t, model.KindNotAuthenticated, model.KindOf(err))

	signIn(t, c)
	chats, err := dialogs.NewFetcher(dialogs.Config{}).ListChats(ctx, c, 10)
	require.NoError(t, err)
	require.Len(t, chats, 3)

	assert.Equal(t, "Tech News", chats[0].Title)
	assert.Equal(t, model.ChatChannel, chats[0].Kind)
	assert.Equal(t, "John Doe", chats[1].Title)
	assert.Equal(t, model.ChatPrivate, chats[1].Kind)
	assert.Equal(t, 2, chats[1].UnreadCount)
	assert.Equal(t, "Design Team", chats[2].Title)
	assert.Equal(t, model.ChatGroup, chats[2].Kind)

	require.Len(t, chats[2].RecentMessages, 2)
	assert.Equal(t, "Alice", chats[2].RecentMessages[0].SenderDisplayName)
	assert.Equal(t, "Bob", chats[2].RecentMessages[1].SenderDisplayName)
	assert.Equal(t, fixedNow.Add(-time.Hour), chats[2].RecentMessages[0].Timestamp)
}

func TestClient_HistoryFailureDegrades(t *testing.T) {
	t.Parallel()
	fixture, err := demo.ParseFixture([]byte(`
self: {id: 1000, first_name: Demo}
users: [{id: 1, first_name: John}]
chats: [{id: 2, type: chat, title: Team}]
dialogs:
  - peer: user:1
    messages: [{id: 1, text: hi, ago: 1m}]
  - peer: chat:2
    history_fails: true
    messages: [{id: 2, text: yo, ago: 2m}]
`))
	require.NoError(t, err)

	ctx := context.Background()
	c, err := demo.New(demo.Config{Fixture: fixture})
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	signIn(t, c)

	chats, err := dialogs.NewFetcher(dialogs.Config{}).ListChats(ctx, c, 10)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Len(t, chats[0].RecentMessages, 1)
	assert.Empty(t, chats[1].RecentMessages)
	require.NotNil(t, chats[1].LastMessage)
}

func TestParseFixture_RejectsBadPeers(t *testing.T) {
	t.Parallel()
	_, err := demo.ParseFixture([]byte("dialogs: [{peer: 'robot:1'}]"))
	assert.Error(t, err)
	_, err = demo.ParseFixture([]byte("dialogs: [{peer: 'user'}]"))
	assert.Error(t, err)
}
