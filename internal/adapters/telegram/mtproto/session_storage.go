package mtproto

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/go-faster/errors"
	tdsession "github.com/gotd/td/session"
)

// memoryStorage реализует tdsession.Storage в памяти. Долговременное хранение
// снимка — забота менеджера сессий домена: сюда артефакт импортируется перед
// подключением и отсюда же экспортируется после входа.
type memoryStorage struct {
	mux  sync.Mutex
	data []byte
}

var _ tdsession.Storage = (*memoryStorage)(nil)

// LoadSession отдаёт текущий снимок или tdsession.ErrNotFound.
func (m *memoryStorage) LoadSession(_ context.Context) ([]byte, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if len(m.data) == 0 {
		return nil, tdsession.ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

// StoreSession запоминает снимок, переданный gotd.
func (m *memoryStorage) StoreSession(_ context.Context, data []byte) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

// export кодирует снимок в непрозрачный артефакт.
func (m *memoryStorage) export() (string, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if len(m.data) == 0 {
		return "", errors.New("session is empty")
	}
	return base64.StdEncoding.EncodeToString(m.data), nil
}

// load проверяет артефакт как сессию gotd и заменяет им снимок. Артефакт,
// который gotd не сможет прочитать при подключении, отвергается здесь.
func (m *memoryStorage) load(ctx context.Context, artifact string) error {
	raw, err := base64.StdEncoding.DecodeString(artifact)
	if err != nil {
		return errors.Wrap(err, "decode session artifact")
	}
	if len(raw) == 0 {
		return errors.New("session artifact is empty")
	}
	loader := tdsession.Loader{Storage: &memoryStorage{data: raw}}
	data, err := loader.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "parse session artifact")
	}
	if len(data.AuthKey) == 0 {
		return errors.New("session artifact has no auth key")
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	m.data = raw
	return nil
}

func (m *memoryStorage) reset() {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.data = nil
}
