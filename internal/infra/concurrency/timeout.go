// Package concurrency — утилиты для безопасного конкурентного исполнения.
// В этом файле — жёсткий таймаут удалённого вызова: транспорт Telegram может
// зависнуть на сетевом сбое и не отреагировать на отмену контекста, поэтому
// ожидание ограничивается таймером независимо от поведения вызываемой функции.
package concurrency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-inbox/internal/infra/logger"
)

// DefaultRPCTimeout — таймаут удалённого вызова, если конфигурация не задала свой.
const DefaultRPCTimeout = 30 * time.Second

type callResult[T any] struct {
	value T
	err   error
}

// CallWithTimeout выполняет fn с дочерним контекстом и ждёт результат не дольше
// timeout. По истечении возвращает ошибку, оборачивающую context.DeadlineExceeded
// (домен классифицирует её как Timeout), даже если fn ещё работает: горутина
// дочитает результат в буферизованный канал и завершится сама. Отмена
// родительского ctx возвращается как есть (ctx.Err()).
// timeout <= 0 означает DefaultRPCTimeout.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- callResult[T]{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case res := <-done:
		// Транспорт мог завернуть дедлайн в собственную сетевую ошибку — возвращаем
		// дедлайн явно, чтобы класс не зависел от реализации.
		if res.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, errors.Wrapf(context.DeadlineExceeded, "%s: %v", op, res.err)
		}
		return res.value, res.err
	case <-timer.C:
		logger.Warn("remote call timed out", zap.String("op", op), zap.Duration("timeout", timeout))
		return zero, errors.Wrap(context.DeadlineExceeded, op)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// DoWithTimeout — вариант CallWithTimeout для вызовов без результата.
func DoWithTimeout(ctx context.Context, timeout time.Duration, op string, fn func(context.Context) error) error {
	_, err := CallWithTimeout(ctx, timeout, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
