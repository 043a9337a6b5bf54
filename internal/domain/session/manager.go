// Package session сохраняет снимок авторизации Telegram между запусками,
// отдаёт его при старте и уничтожает при выходе.
//
// Снимок хранится JSON-ом под ключом telegram_session:<scope>, где scope
// выводится из пары учётных данных: разные пары не конфликтуют. Битые или
// противоречивые данные считаются промахом кэша и удаляются молча.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-inbox/internal/domain/credentials"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/infra/concurrency"
	"telegram-inbox/internal/infra/logger"
	"telegram-inbox/internal/infra/storage"
)

// KeyPrefix — пространство имён ключей сессии.
const KeyPrefix = "telegram_session"

// Key возвращает ключ хранилища для пары учётных данных.
func Key(creds model.Credentials) string {
	return KeyPrefix + ":" + creds.Key()
}

// Manager — персистентность сессии.
type Manager struct {
	kv      storage.KV
	creds   *credentials.Store
	timeout time.Duration
}

// NewManager создаёт менеджер. timeout ограничивает удалённый LogOut.
func NewManager(kv storage.KV, timeout time.Duration) *Manager {
	return &Manager{kv: kv, creds: credentials.NewStore(kv), timeout: timeout}
}

// Persist сериализует снимок. Снимок, нарушающий инвариант артефакта,
// не сохраняется.
func (m *Manager) Persist(ctx context.Context, creds model.Credentials, s model.Session) error {
	if !s.Valid() {
		return errors.Errorf("session: artifact presence does not match isLoggedIn=%t", s.IsLoggedIn)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	if err := m.kv.Set(ctx, Key(creds), string(raw)); err != nil {
		return errors.Wrap(err, "persist session")
	}
	return nil
}

// Load возвращает сохранённый снимок. ok=false — снимка нет или он битый.
func (m *Manager) Load(ctx context.Context, creds model.Credentials) (model.Session, bool, error) {
	key := Key(creds)
	raw, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		return model.Session{}, false, errors.Wrap(err, "load session")
	}
	if !ok {
		return model.Session{}, false, nil
	}

	var s model.Session
	if uErr := json.Unmarshal([]byte(raw), &s); uErr != nil || !s.Valid() || !s.IsLoggedIn {
		logger.Warn("stored telegram session is unusable, discarding", zap.String("scope", creds.Key()))
		if dErr := m.kv.Delete(ctx, key); dErr != nil {
			logger.Warn("discard session failed", zap.Error(dErr))
		}
		return model.Session{}, false, nil
	}
	return s, true, nil
}

// Discard удаляет только снимок сессии, учётные данные остаются.
func (m *Manager) Discard(ctx context.Context, creds model.Credentials) error {
	if err := m.kv.Delete(ctx, Key(creds)); err != nil {
		return errors.Wrap(err, "discard session")
	}
	return nil
}

// Clear удаляет снимок и связанные с ним учётные данные. Идемпотентен.
func (m *Manager) Clear(ctx context.Context, creds model.Credentials) error {
	if err := m.Discard(ctx, creds); err != nil {
		return err
	}
	return m.creds.Clear(ctx)
}

// Logout отзывает авторизацию на стороне Telegram (best-effort) и затем
// очищает локальное состояние. client может быть nil: тогда остаётся только
// локальная очистка. Ошибка удалённого вызова логируется и не возвращается.
func (m *Manager) Logout(ctx context.Context, creds model.Credentials, client transport.Client) error {
	if client != nil {
		err := concurrency.DoWithTimeout(ctx, m.timeout, "auth.logOut", client.LogOut)
		if err != nil {
			logger.Warn("remote logout failed, clearing local session anyway", zap.Error(err))
		}
	}
	// Локальная очистка не должна зависеть от отмены вызывающего.
	return m.Clear(context.WithoutCancel(ctx), creds)
}
