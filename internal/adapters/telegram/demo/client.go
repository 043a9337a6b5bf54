// Package demo — имитация Telegram для показа дашборда без реального аккаунта.
//
// Поведение повторяет настоящий вход: код отправляется на номер в
// международном формате, принимается любой пятизначный код, при заданном
// пароле включается шаг 2FA. Диалоги берутся из YAML-фикстуры. Каждый вызов
// выдерживает случайную задержку, чтобы интерфейс видел состояние загрузки.
package demo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/rand/v2"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/infra/logger"
)

const artifactVersion = 1

var (
	phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{5}$`)
)

// Config — параметры демо-бэкенда.
type Config struct {
	Fixture *Fixture
	// Password — облачный пароль; пустой отключает шаг 2FA.
	Password string
	// Delay — верхняя граница имитируемой задержки вызова.
	Delay time.Duration
	// Now — источник времени; nil означает time.Now.
	Now func() time.Time
}

// Client — демо-транспорт. Потокобезопасен.
type Client struct {
	cfg Config

	mu              sync.Mutex
	connected       bool
	phone           string
	phoneCodeHash   string
	awaitingPasswd  bool
	authorized      bool
	authorizedPhone string
}

var (
	_ transport.Client        = (*Client)(nil)
	_ transport.HistoryReader = (*Client)(nil)
)

// New создаёт демо-клиента. Без фикстуры используется встроенная.
func New(cfg Config) (*Client, error) {
	if cfg.Fixture == nil {
		f, err := LoadFixture("")
		if err != nil {
			return nil, err
		}
		cfg.Fixture = f
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{cfg: cfg}, nil
}

// sessionArtifact — содержимое демо-артефакта.
type sessionArtifact struct {
	Version int    `json:"v"`
	Phone   string `json:"phone"`
	UserID  int64  `json:"uid"`
	Issued  int64  `json:"iat"`
}

// wait выдерживает задержку из [Delay/2, Delay), прерываясь по ctx.
func (c *Client) wait(ctx context.Context) error {
	if c.cfg.Delay <= 0 {
		return ctx.Err()
	}
	half := int64(c.cfg.Delay / 2)
	delay := time.Duration(half + rand.Int64N(half+1)) // #nosec G404
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) Connect(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *Client) SendCode(ctx context.Context, phone string, creds model.Credentials) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	if err := creds.Validate(); err != nil {
		return "", err
	}
	if !phonePattern.MatchString(phone) {
		return "", model.NewError(model.KindInvalidPhoneFormat, errors.Errorf("phone %q is not in international format", phone))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return "", model.NewError(model.KindNetworkFailure, errors.New("demo client is not connected"))
	}
	c.phone = phone
	c.phoneCodeHash = uuid.NewString()
	c.awaitingPasswd = false
	logger.Info("demo: verification code sent, any 5-digit code is accepted")
	return c.phoneCodeHash, nil
}

func (c *Client) SignIn(ctx context.Context, phone, phoneCodeHash, code string) (transport.SignInResult, error) {
	if err := c.wait(ctx); err != nil {
		return transport.SignInResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phoneCodeHash == "" || phoneCodeHash != c.phoneCodeHash || phone != c.phone {
		return transport.SignInResult{}, model.NewError(model.KindCodeExpired, errors.New("phone code hash is stale"))
	}
	if !codePattern.MatchString(code) {
		return transport.SignInResult{}, model.NewError(model.KindInvalidCode, errors.New("code must be 5 digits"))
	}
	if c.cfg.Password != "" {
		c.awaitingPasswd = true
		return transport.SignInResult{Status: transport.SignInPasswordRequired}, nil
	}
	return transport.SignInResult{Status: transport.SignInAuthorized, User: c.authorizeLocked(phone)}, nil
}

func (c *Client) CheckPassword(ctx context.Context, password string) (transport.Authorization, error) {
	if err := c.wait(ctx); err != nil {
		return transport.Authorization{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.awaitingPasswd {
		return transport.Authorization{}, model.NewError(model.KindInvalidState, errors.New("password was not requested"))
	}
	if password != c.cfg.Password {
		return transport.Authorization{}, model.NewError(model.KindInvalidPassword, errors.New("password mismatch"))
	}
	c.awaitingPasswd = false
	return c.authorizeLocked(c.phone), nil
}

func (c *Client) authorizeLocked(phone string) transport.Authorization {
	c.authorized = true
	c.authorizedPhone = phone
	c.phoneCodeHash = ""
	return c.self(phone)
}

func (c *Client) self(phone string) transport.Authorization {
	s := c.cfg.Fixture.Self
	name := s.FirstName
	if s.LastName != "" {
		name += " " + s.LastName
	}
	return transport.Authorization{UserID: s.ID, DisplayName: name, Username: s.Username, Phone: phone}
}

func (c *Client) requireAuth() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authorized {
		return model.NewError(model.KindNotAuthenticated, errors.New("demo client is not authorized"))
	}
	return nil
}

// ListDialogs отдаёт диалоги фикстуры, последняя активность сверху.
func (c *Client) ListDialogs(ctx context.Context, limit int) (*transport.DialogTables, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if err := c.requireAuth(); err != nil {
		return nil, err
	}

	f := c.cfg.Fixture
	now := c.cfg.Now()
	self := f.Self.toUser()
	out := &transport.DialogTables{Users: f.users(), Chats: f.chats(), Self: &self}

	type entry struct {
		dialog transport.Dialog
		date   int
	}
	entries := make([]entry, 0, len(f.Dialogs))
	for _, d := range f.Dialogs {
		peer, err := parsePeer(d.Peer)
		if err != nil {
			return nil, model.NewError(model.KindMalformedResponse, err)
		}
		msgs := d.messages(peer, now)
		e := entry{dialog: transport.Dialog{Peer: peer, UnreadCount: d.Unread}}
		if len(msgs) > 0 {
			e.dialog.TopMessage = msgs[0].ID
			e.date = msgs[0].Date
			out.Messages = append(out.Messages, msgs[0])
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].date > entries[j].date })

	for _, e := range entries {
		if limit > 0 && len(out.Dialogs) >= limit {
			break
		}
		out.Dialogs = append(out.Dialogs, e.dialog)
	}
	return out, nil
}

// GetHistory отдаёт последние сообщения диалога.
func (c *Client) GetHistory(ctx context.Context, peer transport.Peer, limit int) (*transport.HistoryTables, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if err := c.requireAuth(); err != nil {
		return nil, err
	}

	f := c.cfg.Fixture
	for _, d := range f.Dialogs {
		p, err := parsePeer(d.Peer)
		if err != nil || p != peer {
			continue
		}
		if d.HistoryFails {
			return nil, errors.Errorf("demo: history of %s:%d is unavailable", peer.Type, peer.ID)
		}
		msgs := d.messages(peer, c.cfg.Now())
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[:limit]
		}
		return &transport.HistoryTables{Messages: msgs, Users: f.users(), Chats: f.chats()}, nil
	}
	return nil, errors.Errorf("demo: unknown peer %s:%d", peer.Type, peer.ID)
}

func (c *Client) LogOut(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorized = false
	c.authorizedPhone = ""
	c.phoneCodeHash = ""
	c.awaitingPasswd = false
	return nil
}

// ExportSession выпускает артефакт: base64 от JSON с номером и временем выдачи.
func (c *Client) ExportSession(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authorized {
		return "", model.NewError(model.KindNotAuthenticated, errors.New("nothing to export"))
	}
	raw, err := json.Marshal(sessionArtifact{
		Version: artifactVersion,
		Phone:   c.authorizedPhone,
		UserID:  c.cfg.Fixture.Self.ID,
		Issued:  c.cfg.Now().Unix(),
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal demo artifact")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// RestoreSession принимает только артефакты, выпущенные ExportSession.
func (c *Client) RestoreSession(ctx context.Context, artifact string) (transport.Authorization, error) {
	if err := c.wait(ctx); err != nil {
		return transport.Authorization{}, err
	}

	raw, err := base64.StdEncoding.DecodeString(artifact)
	if err != nil {
		return transport.Authorization{}, model.NewError(model.KindNotAuthenticated, errors.Wrap(err, "decode demo artifact"))
	}
	var a sessionArtifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return transport.Authorization{}, model.NewError(model.KindNotAuthenticated, errors.Wrap(err, "parse demo artifact"))
	}
	if a.Version != artifactVersion || a.UserID != c.cfg.Fixture.Self.ID || !phonePattern.MatchString(a.Phone) {
		return transport.Authorization{}, model.NewError(model.KindNotAuthenticated, errors.New("demo artifact does not match this account"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	c.authorized = true
	c.authorizedPhone = a.Phone
	logger.Debug("demo: session restored", zap.Int64("user_id", a.UserID))
	return c.self(a.Phone), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}
