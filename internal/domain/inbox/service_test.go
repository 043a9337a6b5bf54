package inbox_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-inbox/internal/domain/auth"
	"telegram-inbox/internal/domain/credentials"
	"telegram-inbox/internal/domain/dialogs"
	"telegram-inbox/internal/domain/inbox"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/session"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/domain/transport/transporttest"
	"telegram-inbox/internal/infra/storage"
)

var (
	testCreds = model.Credentials{APIID: 123, APIHash: "abc"}
	testPhone = "+15551234567"
)

type fakeConnections struct {
	client   transport.Client
	released atomic.Int32
}

func (c *fakeConnections) Acquire(model.Credentials) (transport.Client, error) { return c.client, nil }

func (c *fakeConnections) Release(model.Credentials) error {
	c.released.Add(1)
	return nil
}

type env struct {
	kv       *storage.MemoryKV
	fake     *transporttest.Fake
	conns    *fakeConnections
	sessions *session.Manager
	svc      *inbox.Service
}

func newEnv(t *testing.T, fake *transporttest.Fake) *env {
	t.Helper()
	return newEnvWithTimeout(t, fake, 100*time.Millisecond)
}

func newEnvWithTimeout(t *testing.T, fake *transporttest.Fake, rpcTimeout time.Duration) *env {
	t.Helper()
	if fake.ListDialogsFn == nil {
		fake.ListDialogsFn = func(context.Context, int) (*transport.DialogTables, error) { return twoChats(), nil }
	}
	kv := storage.NewMemoryKV()
	conns := &fakeConnections{client: fake}
	sessions := session.NewManager(kv, rpcTimeout)
	machine := auth.NewMachine(conns, sessions, rpcTimeout)
	fetcher := dialogs.NewFetcher(dialogs.Config{Timeout: time.Second})
	svc := inbox.NewService(credentials.NewStore(kv), sessions, conns, machine, fetcher, inbox.Config{})
	return &env{kv: kv, fake: fake, conns: conns, sessions: sessions, svc: svc}
}

func twoChats() *transport.DialogTables {
	john := transport.Peer{Type: transport.PeerUser, ID: 10}
	team := transport.Peer{Type: transport.PeerChat, ID: 20}
	return &transport.DialogTables{
		Dialogs: []transport.Dialog{{Peer: john, TopMessage: 2}, {Peer: team, TopMessage: 1}},
		Users:   []transport.User{{ID: 10, FirstName: "John", LastName: "Doe"}},
		Chats:   []transport.Chat{{ID: 20, Type: transport.PeerChat, Title: "Design Team"}},
		Messages: []transport.Message{
			{ID: 2, Peer: john, Text: "Hey there!", Date: 1700000200},
			{ID: 1, Peer: team, Text: "Mockups", Date: 1700000100},
		},
	}
}

func login(t *testing.T, e *env) {
	t.Helper()
	ctx := context.Background()
	res, err := e.svc.SubmitPhoneNumber(ctx, testPhone, testCreds)
	require.NoError(t, err)
	require.Equal(t, model.StepCode, res.Step)
	res, err = e.svc.SubmitVerificationCode(ctx, "54321")
	require.NoError(t, err)
	require.Equal(t, model.StepComplete, res.Step)
}

func TestService_LoginScenario(t *testing.T) {
	t.Parallel()
	e := newEnv(t, &transporttest.Fake{})
	login(t, e)

	snap := e.svc.Snapshot()
	assert.Equal(t, model.StepComplete, snap.LoginStep)
	assert.True(t, snap.Session.IsLoggedIn)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	require.Len(t, snap.Chats, 2)
	assert.Equal(t, "John Doe", snap.Chats[0].Title)
	assert.Equal(t, "Design Team", snap.Chats[1].Title)

	saved, ok, err := e.svc.SavedCredentials(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testCreds, saved)
}

func TestService_TwoFactorScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, &transporttest.Fake{
		SignInFn: func(context.Context, string, string, string) (transport.SignInResult, error) {
			return transport.SignInResult{Status: transport.SignInPasswordRequired}, nil
		},
		CheckPasswordFn: func(_ context.Context, pw string) (transport.Authorization, error) {
			if pw != "right" {
				return transport.Authorization{}, model.NewError(model.KindInvalidPassword, nil)
			}
			return transport.Authorization{UserID: 1, DisplayName: "Me"}, nil
		},
	})

	_, err := e.svc.SubmitPhoneNumber(ctx, testPhone, testCreds)
	require.NoError(t, err)
	res, err := e.svc.SubmitVerificationCode(ctx, "54321")
	require.NoError(t, err)
	assert.Equal(t, model.StepTwoFactor, res.Step)

	res, err = e.svc.SubmitTwoFactorPassword(ctx, "wrong")
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, model.KindInvalidPassword, res.Rejection.Kind)
	snap := e.svc.Snapshot()
	assert.Equal(t, model.StepTwoFactor, snap.LoginStep)
	assert.False(t, snap.Session.IsLoggedIn)
	assert.Equal(t, model.KindInvalidPassword.UserMessage(), snap.Error)

	res, err = e.svc.SubmitTwoFactorPassword(ctx, "right")
	require.NoError(t, err)
	assert.Equal(t, model.StepComplete, res.Step)
	assert.Equal(t, "Me", e.svc.Snapshot().UserName)
	assert.Len(t, e.svc.Chats(), 2)
}

func TestService_ListChatsRequiresLogin(t *testing.T) {
	t.Parallel()
	e := newEnv(t, &transporttest.Fake{})

	_, err := e.svc.ListChats(context.Background(), 10)
	assert.Equal(t, model.KindNotAuthenticated, model.KindOf(err))
	assert.Empty(t, e.svc.Chats())
	assert.Zero(t, e.fake.Calls("ListDialogs"))
}

func TestService_ListChatsFailureKeepsPreviousList(t *testing.T) {
	t.Parallel()
	var fail atomic.Bool
	e := newEnv(t, &transporttest.Fake{})
	e.fake.ListDialogsFn = func(context.Context, int) (*transport.DialogTables, error) {
		if fail.Load() {
			return nil, errors.New("connection reset")
		}
		return twoChats(), nil
	}
	login(t, e)

	fail.Store(true)
	err := e.svc.RefreshChats(context.Background())
	assert.Equal(t, model.KindNetworkFailure, model.KindOf(err))
	assert.Len(t, e.svc.Chats(), 2)
	assert.NotEmpty(t, e.svc.Snapshot().Error)
}

func TestService_LogoutIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, &transporttest.Fake{
		LogOutFn: func(context.Context) error { return errors.New("network down") },
	})
	login(t, e)

	require.NoError(t, e.svc.Logout(ctx))
	first := e.svc.Snapshot()
	require.NoError(t, e.svc.Logout(ctx))
	second := e.svc.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, model.StepPhone, second.LoginStep)
	assert.False(t, second.Session.IsLoggedIn)
	assert.Empty(t, second.Chats)
	assert.Equal(t, 1, e.fake.Calls("LogOut"))
	assert.GreaterOrEqual(t, e.conns.released.Load(), int32(1))

	_, ok, err := e.sessions.Load(ctx, testCreds)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = e.svc.SavedCredentials(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_LogoutInterruptsFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	started := make(chan struct{})
	var once sync.Once
	e := newEnv(t, &transporttest.Fake{})
	login(t, e)

	e.fake.GetHistoryFn = func(ctx context.Context, _ transport.Peer, _ int) (*transport.HistoryTables, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}

	done := make(chan error, 1)
	go func() { done <- e.svc.RefreshChats(ctx) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("history fetch did not start")
	}
	require.NoError(t, e.svc.Logout(ctx))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not interrupted by logout")
	}

	snap := e.svc.Snapshot()
	assert.Empty(t, snap.Chats)
	assert.False(t, snap.Loading)
	assert.Equal(t, model.StepPhone, snap.LoginStep)
}

func TestService_FetchStartedDuringLogoutIsDropped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnvWithTimeout(t, &transporttest.Fake{}, 5*time.Second)
	login(t, e)

	logoutEntered := make(chan struct{})
	releaseLogout := make(chan struct{})
	fetchStarted := make(chan struct{})
	finishFetch := make(chan struct{})
	e.fake.LogOutFn = func(context.Context) error {
		close(logoutEntered)
		<-releaseLogout
		return nil
	}
	e.fake.ListDialogsFn = func(context.Context, int) (*transport.DialogTables, error) {
		close(fetchStarted)
		<-finishFetch
		return twoChats(), nil
	}

	logoutDone := make(chan error, 1)
	go func() { logoutDone <- e.svc.Logout(ctx) }()
	<-logoutEntered

	fetchDone := make(chan error, 1)
	go func() {
		_, err := e.svc.ListChats(ctx, 10)
		fetchDone <- err
	}()
	<-fetchStarted

	close(releaseLogout)
	require.NoError(t, <-logoutDone)
	close(finishFetch)
	require.Error(t, <-fetchDone)

	snap := e.svc.Snapshot()
	assert.Empty(t, snap.Chats)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, model.StepPhone, snap.LoginStep)
}

func TestService_Bootstrap(t *testing.T) {
	t.Parallel()

	t.Run("restoresWithoutHandshake", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		e := newEnv(t, &transporttest.Fake{})
		require.NoError(t, credentials.NewStore(e.kv).Save(ctx, testCreds))
		require.NoError(t, e.sessions.Persist(ctx, testCreds, model.Session{
			IsLoggedIn: true, PhoneNumber: testPhone, Artifact: transporttest.DefaultArtifact,
		}))

		res, err := e.svc.Bootstrap(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.StepComplete, res.Step)
		assert.Zero(t, e.fake.Calls("SendCode"))
		assert.Zero(t, e.fake.Calls("SignIn"))
		snap := e.svc.Snapshot()
		assert.Equal(t, testPhone, snap.Session.PhoneNumber)
		assert.Len(t, snap.Chats, 2)
	})

	t.Run("corruptArtifactFallsBackToPhone", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		e := newEnv(t, &transporttest.Fake{})
		require.NoError(t, credentials.NewStore(e.kv).Save(ctx, testCreds))
		require.NoError(t, e.sessions.Persist(ctx, testCreds, model.Session{IsLoggedIn: true, Artifact: "tampered"}))

		res, err := e.svc.Bootstrap(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.StepPhone, res.Step)
		require.NotNil(t, res.Rejection)
		assert.Equal(t, model.KindNotAuthenticated, res.Rejection.Kind)

		_, ok, err := e.sessions.Load(ctx, testCreds)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("nothingSaved", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, &transporttest.Fake{})
		res, err := e.svc.Bootstrap(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.StepPhone, res.Step)
		assert.Zero(t, e.fake.Calls("RestoreSession"))
	})
}

func TestService_Subscribe(t *testing.T) {
	t.Parallel()
	e := newEnv(t, &transporttest.Fake{})

	var mu sync.Mutex
	var steps []model.LoginStep
	unsubscribe := e.svc.Subscribe(func(s inbox.Snapshot) {
		mu.Lock()
		steps = append(steps, s.LoginStep)
		mu.Unlock()
	})

	_, err := e.svc.SubmitPhoneNumber(context.Background(), testPhone, testCreds)
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	_, err = e.svc.SubmitVerificationCode(context.Background(), "54321")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, steps)
	assert.Equal(t, model.StepCode, steps[len(steps)-1])
	assert.NotContains(t, steps, model.StepComplete)
}
