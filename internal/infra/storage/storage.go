// Package storage — локальное и разделяемое хранилище ключ-значение для
// учётных данных и артефактов сессии Telegram.
//
// Бэкенды:
//   - bbolt — файл базы на диске (по умолчанию);
//   - file  — JSON-файл с атомарной записью (аналог localStorage браузера);
//   - redis — общий стор для нескольких инстансов;
//   - memory — для тестов и одноразовых запусков.
//
// Значения — обычные строки, ключи — фиксированное пространство имён
// (telegram_api_id, telegram_api_hash, telegram_session:<scope>).
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"telegram-inbox/internal/infra/logger"
)

// DefaultFilePerm — права на файлы хранилища: доступ только владельцу.
const DefaultFilePerm = 0o600

// KV — минимальный контракт хранилища. Get возвращает ok=false для
// отсутствующего ключа; Delete идемпотентен.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// EnsureDir гарантирует наличие каталога для файла path.
// Для путей без каталога ("." или пусто) ничего не делает.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile атомарно записывает data в path.
//
// temp в том же каталоге → write → fsync → chmod → close → rename → fsync(dir).
// Либо остаётся старый файл, либо новый записан полностью. rename атомарен
// только в пределах одного тома, поэтому temp создаётся рядом с целью.
func AtomicWriteFile(path string, data []byte) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "atomic-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Chmod(DefaultFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	// fsync каталога — best-effort: часть ФС его игнорирует.
	if dirFile, err := os.Open(dir); err == nil {
		if errSync := dirFile.Sync(); errSync != nil {
			logger.Debugf("AtomicWriteFile: dir sync error: %v", errSync)
		}
		_ = dirFile.Close()
	}
	return nil
}
