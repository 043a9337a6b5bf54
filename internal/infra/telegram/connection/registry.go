// Package connection владеет живыми MTProto-клиентами.
//
// Registry держит не больше одного транспорта на пару учётных данных; ключ —
// Credentials.Key(). Глобального состояния нет: реестр создаётся при сборке
// приложения и передаётся тем, кому нужен клиент.
package connection

import (
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/infra/logger"
)

// ErrClosed возвращается Acquire после Shutdown.
var ErrClosed = errors.New("connection registry is closed")

// Factory создаёт транспорт для пары учётных данных. Соединение не
// устанавливается: это делает машина авторизации через Connect.
type Factory func(creds model.Credentials) (transport.Client, error)

// Registry — реестр живых транспортов.
type Registry struct {
	factory Factory

	mu      sync.Mutex
	clients map[string]transport.Client
	closed  bool
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, clients: map[string]transport.Client{}}
}

// Acquire возвращает транспорт пары, создавая его при первом обращении.
func (r *Registry) Acquire(creds model.Credentials) (transport.Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	key := creds.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := r.factory(creds)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram client")
	}
	r.clients[key] = c
	logger.Debug("telegram client created", zap.String("scope", key))
	return c, nil
}

// Release закрывает и забывает транспорт пары. Отсутствующий — no-op.
func (r *Registry) Release(creds model.Credentials) error {
	key := creds.Key()
	r.mu.Lock()
	c, ok := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return errors.Wrap(err, "close telegram client")
	}
	logger.Debug("telegram client released", zap.String("scope", key))
	return nil
}

// Len возвращает число живых транспортов.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Shutdown закрывает все транспорты; дальнейшие Acquire возвращают ErrClosed.
// Возвращается первая ошибка закрытия, остальные логируются.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	clients := r.clients
	r.clients = map[string]transport.Client{}
	r.closed = true
	r.mu.Unlock()

	var first error
	for key, c := range clients {
		if err := c.Close(); err != nil {
			logger.Warn("close telegram client failed", zap.String("scope", key), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
