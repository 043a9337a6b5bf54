// Package credentials хранит пару api_id/api_hash приложения Telegram в
// key-value хранилище под фиксированными ключами. Значения — обычные строки.
package credentials

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/infra/logger"
	"telegram-inbox/internal/infra/storage"
)

const (
	KeyAPIID   = "telegram_api_id"
	KeyAPIHash = "telegram_api_hash"
)

// Store — учётные данные поверх KV.
type Store struct {
	kv storage.KV
}

func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Save записывает пару. Невалидная пара не сохраняется.
func (s *Store) Save(ctx context.Context, creds model.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyAPIID, strconv.Itoa(creds.APIID)); err != nil {
		return errors.Wrap(err, "save api id")
	}
	if err := s.kv.Set(ctx, KeyAPIHash, creds.APIHash); err != nil {
		return errors.Wrap(err, "save api hash")
	}
	return nil
}

// Load возвращает сохранённую пару. ok=false, если пары нет целиком или
// значения не разбираются: такие данные считаются отсутствующими.
func (s *Store) Load(ctx context.Context) (model.Credentials, bool, error) {
	rawID, okID, err := s.kv.Get(ctx, KeyAPIID)
	if err != nil {
		return model.Credentials{}, false, errors.Wrap(err, "load api id")
	}
	hash, okHash, err := s.kv.Get(ctx, KeyAPIHash)
	if err != nil {
		return model.Credentials{}, false, errors.Wrap(err, "load api hash")
	}
	if !okID || !okHash {
		return model.Credentials{}, false, nil
	}

	id, convErr := strconv.Atoi(strings.TrimSpace(rawID))
	creds := model.Credentials{APIID: id, APIHash: strings.TrimSpace(hash)}
	if convErr != nil || creds.Validate() != nil {
		logger.Warn("stored telegram credentials are malformed, ignoring", zap.String("key", KeyAPIID))
		return model.Credentials{}, false, nil
	}
	return creds, true, nil
}

// Clear удаляет обе записи. Идемпотентен.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyAPIID, KeyAPIHash); err != nil {
		return errors.Wrap(err, "clear credentials")
	}
	return nil
}
