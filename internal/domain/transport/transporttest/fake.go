// Package transporttest — подменный клиент Telegram для тестов домена.
package transporttest

import (
	"context"
	"sync"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
)

// Fake реализует transport.Client и transport.HistoryReader. Незаданные
// функции ведут себя как успешный вызов. Счётчики вызовов потокобезопасны.
type Fake struct {
	ConnectFn       func(ctx context.Context) error
	SendCodeFn      func(ctx context.Context, phone string, creds model.Credentials) (string, error)
	SignInFn        func(ctx context.Context, phone, hash, code string) (transport.SignInResult, error)
	CheckPasswordFn func(ctx context.Context, password string) (transport.Authorization, error)
	ListDialogsFn   func(ctx context.Context, limit int) (*transport.DialogTables, error)
	GetHistoryFn    func(ctx context.Context, peer transport.Peer, limit int) (*transport.HistoryTables, error)
	LogOutFn        func(ctx context.Context) error
	ExportFn        func(ctx context.Context) (string, error)
	RestoreFn       func(ctx context.Context, artifact string) (transport.Authorization, error)

	mu     sync.Mutex
	calls  map[string]int
	closed bool
}

var (
	_ transport.Client        = (*Fake)(nil)
	_ transport.HistoryReader = (*Fake)(nil)
)

// DefaultArtifact — артефакт, который Fake выдаёт по умолчанию.
const DefaultArtifact = "fake-artifact"

func (f *Fake) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

// Calls возвращает число вызовов метода name.
func (f *Fake) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// Closed сообщает, вызывался ли Close.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Connect(ctx context.Context) error {
	f.hit("Connect")
	if f.ConnectFn != nil {
		return f.ConnectFn(ctx)
	}
	return nil
}

func (f *Fake) SendCode(ctx context.Context, phone string, creds model.Credentials) (string, error) {
	f.hit("SendCode")
	if f.SendCodeFn != nil {
		return f.SendCodeFn(ctx, phone, creds)
	}
	return "hash", nil
}

func (f *Fake) SignIn(ctx context.Context, phone, hash, code string) (transport.SignInResult, error) {
	f.hit("SignIn")
	if f.SignInFn != nil {
		return f.SignInFn(ctx, phone, hash, code)
	}
	return transport.SignInResult{Status: transport.SignInAuthorized, User: transport.Authorization{UserID: 1, DisplayName: "Me"}}, nil
}

func (f *Fake) CheckPassword(ctx context.Context, password string) (transport.Authorization, error) {
	f.hit("CheckPassword")
	if f.CheckPasswordFn != nil {
		return f.CheckPasswordFn(ctx, password)
	}
	return transport.Authorization{UserID: 1, DisplayName: "Me"}, nil
}

func (f *Fake) ListDialogs(ctx context.Context, limit int) (*transport.DialogTables, error) {
	f.hit("ListDialogs")
	if f.ListDialogsFn != nil {
		return f.ListDialogsFn(ctx, limit)
	}
	return &transport.DialogTables{}, nil
}

func (f *Fake) GetHistory(ctx context.Context, peer transport.Peer, limit int) (*transport.HistoryTables, error) {
	f.hit("GetHistory")
	if f.GetHistoryFn != nil {
		return f.GetHistoryFn(ctx, peer, limit)
	}
	return &transport.HistoryTables{}, nil
}

func (f *Fake) LogOut(ctx context.Context) error {
	f.hit("LogOut")
	if f.LogOutFn != nil {
		return f.LogOutFn(ctx)
	}
	return nil
}

func (f *Fake) ExportSession(ctx context.Context) (string, error) {
	f.hit("ExportSession")
	if f.ExportFn != nil {
		return f.ExportFn(ctx)
	}
	return DefaultArtifact, nil
}

func (f *Fake) RestoreSession(ctx context.Context, artifact string) (transport.Authorization, error) {
	f.hit("RestoreSession")
	if f.RestoreFn != nil {
		return f.RestoreFn(ctx, artifact)
	}
	if artifact != DefaultArtifact {
		return transport.Authorization{}, model.NewError(model.KindNotAuthenticated, nil)
	}
	return transport.Authorization{UserID: 1, DisplayName: "Me"}, nil
}

func (f *Fake) Close() error {
	f.hit("Close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// WithoutHistory скрывает HistoryReader у обёрнутого клиента.
type WithoutHistory struct {
	transport.Client
}
