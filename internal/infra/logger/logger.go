// Package logger — централизованная обёртка над zap для всего приложения.
// Уровень меняется на лету через zap.AtomicLevel, целевые потоки можно
// переназначить (CLI перехватывает stdout через readline). Named отдаёт
// дочерние логгеры для сторонних библиотек (gotd принимает *zap.Logger).
//
// Секреты (api_hash, коды, пароли, артефакты сессии) в лог не пишем.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// mu защищает пересборку глобального логгера.
	mu sync.Mutex
	// log — текущий экземпляр; создаётся лениво.
	log *zap.Logger
	// logLevel — динамический уровень без пересоздания ядра.
	logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	// stdoutWriter/stderrWriter — текущие потоки вывода.
	stdoutWriter = zapcore.Lock(zapcore.AddSync(os.Stdout))
	stderrWriter = zapcore.Lock(zapcore.AddSync(os.Stderr))
)

// encoderConfig — консольный формат с цветным уровнем и коротким caller.
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// rebuildLocked пересобирает логгер. Вызывающий держит mu.
// AddCallerSkip(1) прячет обёртки logger.* из caller.
func rebuildLocked() {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), stdoutWriter, logLevel)
	if log != nil {
		_ = log.Sync()
	}
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.ErrorOutput(stderrWriter))
}

// ParseLevel переводит строку debug|info|warn|error в уровень zap; всё прочее — info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Init выставляет уровень и пересобирает логгер.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()
	logLevel.SetLevel(ParseLevel(level))
	rebuildLocked()
}

// SetWriters переназначает потоки. nil — вернуть Stdout/Stderr.
func SetWriters(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	stdoutWriter = zapcore.Lock(zapcore.AddSync(stdout))
	stderrWriter = zapcore.Lock(zapcore.AddSync(stderr))
	rebuildLocked()
}

// Logger возвращает текущий zap.Logger.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		rebuildLocked()
	}
	return log
}

// Named отдаёт дочерний логгер без caller-skip обёрток — для передачи в библиотеки.
func Named(name string) *zap.Logger {
	return Logger().WithOptions(zap.AddCallerSkip(-1)).Named(name)
}

// IsDebugEnabled проверяет, включён ли debug.
func IsDebugEnabled() bool {
	return logLevel.Enabled(zap.DebugLevel)
}

func Debug(msg string, fields ...zap.Field) { Logger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Logger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Logger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Logger().Error(msg, fields...) }

// Fatal пишет сообщение и завершает процесс. Буферы сбрасываются до выхода.
func Fatal(msg string, fields ...zap.Field) {
	l := Logger()
	l.Error(msg, fields...)
	_ = l.Sync()
	os.Exit(1)
}

// Debugf — форматированный вариант; для горячих путей используйте поля.
func Debugf(msg string, a ...any) { Logger().Debug(fmt.Sprintf(msg, a...)) }

func Infof(msg string, a ...any) { Logger().Info(fmt.Sprintf(msg, a...)) }

func Warnf(msg string, a ...any) { Logger().Warn(fmt.Sprintf(msg, a...)) }

func Errorf(msg string, a ...any) { Logger().Error(fmt.Sprintf(msg, a...)) }
