package connection

import (
	"context"
	"io"
	"net"

	"github.com/go-faster/errors"
	"github.com/gotd/td/pool"
	"github.com/gotd/td/rpc"
)

// IsNetworkError определяет, сигнализирует ли ошибка о сетевой проблеме/разрыве.
// Считаем сетевыми: закрытия соединения/движка (pool.ErrConnDead, rpc.ErrEngineClosed),
// исчерпание ретраев rpc.RetryLimitReachedErr, EOF и net.Error.
// Контекстные отмены и дедлайны сюда не относятся: их классифицирует вызывающий.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, pool.ErrConnDead) || errors.Is(err, rpc.ErrEngineClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var retryErr *rpc.RetryLimitReachedErr
	if errors.As(err, &retryErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
