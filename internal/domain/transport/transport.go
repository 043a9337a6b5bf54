// Package transport описывает контракт сетевого клиента Telegram, на который
// опираются машина авторизации и выборка диалогов. Реализации (демо-бэкенд и
// MTProto на gotd) выбираются при сборке приложения; домен знает только
// интерфейс и «сырые» таблицы ответа.
//
// Штатные отказы (неверный код, просроченный код, неверный пароль) реализации
// возвращают как *model.Error с соответствующим классом. Требование 2FA —
// не ошибка, а типизированный исход SignInResult.
package transport

import (
	"context"

	"telegram-inbox/internal/domain/model"
)

// SignInStatus — исход шага sign in.
type SignInStatus int

const (
	// SignInAuthorized — вход завершён, сессия выпущена.
	SignInAuthorized SignInStatus = iota
	// SignInPasswordRequired — аккаунт защищён облачным паролем.
	SignInPasswordRequired
)

// Authorization описывает авторизованного пользователя.
type Authorization struct {
	UserID      int64
	DisplayName string
	Username    string
	// Phone — номер аккаунта, если транспорт его знает.
	Phone string
}

// SignInResult — типизированный ответ SignIn.
type SignInResult struct {
	Status SignInStatus
	User   Authorization
}

// Client — возможности транспорта. Все методы блокирующие и уважают ctx,
// однако ядро всё равно ограничивает их явным таймаутом.
type Client interface {
	// Connect устанавливает соединение; повторный вызов на живом клиенте — no-op.
	Connect(ctx context.Context) error
	// SendCode запрашивает код подтверждения и возвращает phone_code_hash.
	SendCode(ctx context.Context, phone string, creds model.Credentials) (string, error)
	// SignIn погашает код.
	SignIn(ctx context.Context, phone, phoneCodeHash, code string) (SignInResult, error)
	// CheckPassword завершает вход паролем 2FA.
	CheckPassword(ctx context.Context, password string) (Authorization, error)
	// ListDialogs возвращает сырые таблицы диалогов, пользователей, чатов и сообщений.
	ListDialogs(ctx context.Context, limit int) (*DialogTables, error)
	// LogOut отзывает авторизацию на стороне Telegram.
	LogOut(ctx context.Context) error
	// ExportSession сериализует текущую авторизацию в непрозрачную строку.
	ExportSession(ctx context.Context) (string, error)
	// RestoreSession импортирует артефакт, подключается с ним и проверяет его
	// лёгким запросом «кто я». Connect перед ним не нужен. Непригодный
	// артефакт — ошибка класса NotAuthenticated.
	RestoreSession(ctx context.Context, artifact string) (Authorization, error)
	// Close освобождает соединение.
	Close() error
}

// HistoryReader — необязательная возможность: чтение последних сообщений чата.
type HistoryReader interface {
	GetHistory(ctx context.Context, peer Peer, limit int) (*HistoryTables, error)
}
