// Package mtproto — транспорт Telegram поверх gotd/td.
//
// Клиент gotd живёт в фоновой горутине (telegram.Client.Run), а методы
// транспорта выполняют RPC, пока она активна. Снимок MTProto-сессии хранится
// в памяти и наружу уходит только как непрозрачный артефакт (base64).
// Ошибки RPC классифицируются по типу (tgerr), без разбора текста.
package mtproto

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/infra/logger"
	"telegram-inbox/internal/support/version"
)

// Options — параметры MTProto-клиента.
type Options struct {
	Credentials model.Credentials
	// TestDC включает тестовый стенд Telegram.
	TestDC bool
	// ThrottleRPS ограничивает частоту RPC; 0 отключает ограничение.
	ThrottleRPS int
}

// Client — MTProto-транспорт одной пары учётных данных.
type Client struct {
	opts    Options
	storage *memoryStorage

	mu      sync.Mutex
	tg      *telegram.Client
	peerMgr *peers.Manager
	cancel  context.CancelFunc
	ready   chan struct{}
	done    chan struct{}
	runErr  error
	running bool
	self    *tg.User
}

var (
	_ transport.Client        = (*Client)(nil)
	_ transport.HistoryReader = (*Client)(nil)
)

// New создаёт транспорт без подключения.
func New(opts Options) (*Client, error) {
	if err := opts.Credentials.Validate(); err != nil {
		return nil, err
	}
	return &Client{opts: opts, storage: &memoryStorage{}}, nil
}

func (c *Client) newTelegramClient() *telegram.Client {
	options := telegram.Options{
		SessionStorage: c.storage,
		Middlewares:    []telegram.Middleware{floodwait.NewSimpleWaiter()},
		Device: telegram.DeviceConfig{
			DeviceModel: version.Name,
			AppVersion:  version.Version,
		},
	}
	if rps := c.opts.ThrottleRPS; rps > 0 {
		options.Middlewares = append(options.Middlewares, ratelimit.New(rate.Limit(rps), rps*2))
	}
	if c.opts.TestDC {
		options.DCList = dcs.Test()
	}
	if logger.IsDebugEnabled() {
		options.Logger = logger.Named("mtproto")
	}
	return telegram.NewClient(c.opts.Credentials.APIID, c.opts.Credentials.APIHash, options)
}

// Connect запускает фоновый цикл gotd и ждёт готовности соединения.
// На уже запущенном клиенте только ждёт готовности.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.startLocked()
	}
	ready, done := c.ready, c.done
	c.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-done:
		c.mu.Lock()
		err := c.runErr
		c.mu.Unlock()
		if err == nil {
			err = errors.New("telegram client stopped")
		}
		return classify(errors.Wrap(err, "connect"))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) startLocked() {
	client := c.newTelegramClient()
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan struct{})

	c.tg = client
	c.peerMgr = newPeerManager(client.API())
	c.cancel = cancel
	c.ready = ready
	c.done = done
	c.runErr = nil
	c.running = true

	go func() {
		defer close(done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("mtproto client stopped", zap.Error(err))
		}
		c.mu.Lock()
		if c.done == done {
			c.running = false
			c.runErr = err
		}
		c.mu.Unlock()
	}()
}

// stop останавливает фоновый цикл и ждёт его завершения.
func (c *Client) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// api возвращает RPC-клиента запущенного цикла.
func (c *Client) api() (*telegram.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.tg == nil {
		return nil, model.NewError(model.KindNetworkFailure, errors.New("telegram client is not connected"))
	}
	return c.tg, nil
}

func (c *Client) peerManager() *peers.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerMgr
}

// forgetPeers заменяет менеджер собеседников пустым: access_hash принадлежат аккаунту.
func (c *Client) forgetPeers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tg != nil {
		c.peerMgr = newPeerManager(c.tg.API())
	}
}

func (c *Client) setSelf(u *tg.User) {
	c.mu.Lock()
	c.self = u
	c.mu.Unlock()
}

func (c *Client) SendCode(ctx context.Context, phone string, creds model.Credentials) (string, error) {
	if creds != c.opts.Credentials {
		return "", model.NewError(model.KindInvalidCredentials, errors.New("client is bound to other credentials"))
	}
	client, err := c.api()
	if err != nil {
		return "", err
	}
	sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", classify(errors.Wrap(err, "send code"))
	}
	switch s := sent.(type) {
	case *tg.AuthSentCode:
		return s.PhoneCodeHash, nil
	default:
		return "", model.NewError(model.KindMalformedResponse, errors.Errorf("unexpected sent code type: %T", sent))
	}
}

func (c *Client) SignIn(ctx context.Context, phone, phoneCodeHash, code string) (transport.SignInResult, error) {
	client, err := c.api()
	if err != nil {
		return transport.SignInResult{}, err
	}
	a, err := client.Auth().SignIn(ctx, phone, code, phoneCodeHash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return transport.SignInResult{Status: transport.SignInPasswordRequired}, nil
	}
	if err != nil {
		return transport.SignInResult{}, classify(err)
	}
	user, _ := a.User.(*tg.User)
	c.setSelf(user)
	return transport.SignInResult{Status: transport.SignInAuthorized, User: authorization(user)}, nil
}

func (c *Client) CheckPassword(ctx context.Context, password string) (transport.Authorization, error) {
	client, err := c.api()
	if err != nil {
		return transport.Authorization{}, err
	}
	a, err := client.Auth().Password(ctx, password)
	if err != nil {
		return transport.Authorization{}, classify(err)
	}
	user, _ := a.User.(*tg.User)
	c.setSelf(user)
	return authorization(user), nil
}

func (c *Client) ListDialogs(ctx context.Context, limit int) (*transport.DialogTables, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	resp, err := client.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	if err != nil {
		return nil, classify(errors.Wrap(err, "get dialogs"))
	}
	batch, err := normalizeDialogsResponse(resp)
	if errors.Is(err, errDialogsNotModified) {
		return &transport.DialogTables{}, nil
	}
	if err != nil {
		return nil, model.NewError(model.KindMalformedResponse, err)
	}
	if mgr := c.peerManager(); mgr != nil {
		if aErr := mgr.Apply(ctx, batch.Users, batch.Chats); aErr != nil {
			logger.Warn("apply dialog peers failed", zap.Error(aErr))
		}
	}

	c.mu.Lock()
	self := c.self
	c.mu.Unlock()
	return convertDialogs(batch, self), nil
}

func (c *Client) GetHistory(ctx context.Context, peer transport.Peer, limit int) (*transport.HistoryTables, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	mgr := c.peerManager()
	if mgr == nil {
		return nil, model.NewError(model.KindNetworkFailure, errors.New("telegram client is not connected"))
	}
	input, err := inputPeer(ctx, mgr, peer)
	if err != nil {
		return nil, err
	}
	resp, err := client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{Peer: input, Limit: limit})
	if err != nil {
		return nil, classify(errors.Wrap(err, "get history"))
	}
	h, err := convertHistory(resp)
	if err != nil {
		return nil, model.NewError(model.KindMalformedResponse, err)
	}
	return h, nil
}

func (c *Client) LogOut(ctx context.Context) error {
	client, err := c.api()
	if err != nil {
		return err
	}
	if _, err := client.API().AuthLogOut(ctx); err != nil {
		return classify(errors.Wrap(err, "log out"))
	}
	c.storage.reset()
	c.forgetPeers()
	c.setSelf(nil)
	return nil
}

func (c *Client) ExportSession(context.Context) (string, error) {
	artifact, err := c.storage.export()
	if err != nil {
		return "", model.NewError(model.KindMalformedResponse, err)
	}
	return artifact, nil
}

// RestoreSession перезапускает клиент с импортированным снимком и проверяет
// авторизацию запросом статуса. При любой неудаче клиент останавливается, а
// снимок забывается: следующий вход начнётся с чистой сессии.
func (c *Client) RestoreSession(ctx context.Context, artifact string) (transport.Authorization, error) {
	c.stop()
	if err := c.storage.load(ctx, artifact); err != nil {
		c.abandonRestore()
		return transport.Authorization{}, model.NewError(model.KindNotAuthenticated, err)
	}
	user, err := c.checkRestored(ctx)
	if err != nil {
		c.abandonRestore()
		return transport.Authorization{}, err
	}
	c.setSelf(user)
	return authorization(user), nil
}

func (c *Client) checkRestored(ctx context.Context) (*tg.User, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return nil, classify(errors.Wrap(err, "auth status"))
	}
	if !status.Authorized || status.User == nil {
		return nil, model.NewError(model.KindNotAuthenticated, errors.New("session is not authorized"))
	}
	return status.User, nil
}

func (c *Client) abandonRestore() {
	c.stop()
	c.storage.reset()
	c.setSelf(nil)
}

// Close останавливает фоновый цикл.
func (c *Client) Close() error {
	c.stop()
	return nil
}
