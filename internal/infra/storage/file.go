package storage

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/go-faster/errors"
)

// FileKV — JSON-объект на диске. Читается лениво при первом обращении,
// каждая запись переписывает файл атомарно. Потокобезопасен.
type FileKV struct {
	path string

	mu     sync.Mutex
	loaded bool
	data   map[string]string
}

var _ KV = (*FileKV)(nil)

// NewFileKV не трогает файловую систему до первого обращения.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path, data: map[string]string{}}
}

// loadLocked читает файл. Отсутствующий файл — пустое хранилище;
// битый JSON — тоже пустое хранилище (перезапишется при следующем Set).
func (f *FileKV) loadLocked() error {
	if f.loaded {
		return nil
	}
	raw, err := os.ReadFile(f.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return errors.Wrap(err, "read kv file")
	default:
		if uErr := json.Unmarshal(raw, &f.data); uErr != nil || f.data == nil {
			f.data = map[string]string{}
		}
	}
	f.loaded = true
	return nil
}

func (f *FileKV) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal kv file")
	}
	return AtomicWriteFile(f.path, raw)
}

func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return "", false, err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *FileKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return err
	}
	f.data[key] = value
	return f.flushLocked()
}

func (f *FileKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return err
	}
	changed := false
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.flushLocked()
}

func (f *FileKV) Close() error { return nil }
