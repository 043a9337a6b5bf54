package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"telegram-inbox/internal/app"
	"telegram-inbox/internal/infra/config"
	"telegram-inbox/internal/infra/logger"
	"telegram-inbox/internal/infra/pr"
	"telegram-inbox/internal/support/version"
)

func main() {
	// envPath определяет расположение .env с ключами API и настройками.
	envPath := flag.String("env", "assets/.env", "path to .env file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Name, version.Version)
		return
	}

	cfg, err := config.Load(*envPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// readline нужен только интерактивному CLI; без терминала пишем прямо в stdout.
	if cfg.GetEnv().CLIEnable && pr.Interactive() {
		if initErr := pr.Init(); initErr != nil {
			logger.Fatal("failed to assigning stdout and stderr", zap.Error(initErr))
		}
	}

	logger.Init(cfg.GetEnv().LogLevel)
	logger.SetWriters(pr.Stdout(), pr.Stderr())
	for _, msg := range cfg.Warnings() {
		logger.Warn(msg)
	}

	// Ctrl+C/SIGTERM отменяют ctx; stop также передаётся приложению для остановки по команде exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := app.NewApp(ctx, stop, cfg)
	if iniErr := a.Init(); iniErr != nil {
		stop()
		logger.Fatal("app init failed", zap.Error(iniErr))
	}

	if runErr := a.Run(); runErr != nil {
		stop()
		logger.Fatal("app run failed", zap.Error(runErr))
	}
	stop()
	logger.Info("Graceful shutdown complete")
}
