// Package app собирает канал Telegram: хранилище, транспорт, машину
// авторизации, выборку диалогов, фасад инбокса и интерфейсы (CLI, веб),
// а затем ведёт их через lifecycle до корректного завершения.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-inbox/internal/adapters/cli"
	"telegram-inbox/internal/adapters/telegram/demo"
	"telegram-inbox/internal/adapters/telegram/mtproto"
	"telegram-inbox/internal/adapters/web"
	"telegram-inbox/internal/domain/auth"
	"telegram-inbox/internal/domain/credentials"
	"telegram-inbox/internal/domain/dialogs"
	"telegram-inbox/internal/domain/inbox"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/session"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/infra/config"
	"telegram-inbox/internal/infra/lifecycle"
	"telegram-inbox/internal/infra/logger"
	"telegram-inbox/internal/infra/pr"
	"telegram-inbox/internal/infra/storage"
	"telegram-inbox/internal/infra/telegram/connection"
	"telegram-inbox/internal/support/version"
)

const (
	storeOpenTimeout      = 10 * time.Second
	bootstrapTimeout      = time.Minute
	webShutdownTimeout    = 10 * time.Second
	registryCloseDeadline = 10 * time.Second
)

// App агрегирует зависимости канала.
type App struct {
	cfg        *config.Config
	mainCtx    context.Context
	mainCancel context.CancelFunc

	kv       storage.KV
	registry *connection.Registry
	inbox    *inbox.Service
	cli      *cli.Service
	web      *web.Server
}

// NewApp создаёт каркас. Фактическая сборка — в Init().
func NewApp(mainCtx context.Context, mainCancel context.CancelFunc, cfg *config.Config) *App {
	return &App{cfg: cfg, mainCtx: mainCtx, mainCancel: mainCancel}
}

// Init открывает хранилище и собирает доменные сервисы и интерфейсы.
func (a *App) Init() error {
	env := a.cfg.GetEnv()
	logger.Info("Telegram inbox initializing...",
		zap.String("version", version.Version),
		zap.String("transport", env.Transport),
		zap.String("store", env.StoreBackend))

	kv, err := openStore(a.mainCtx, env)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	a.kv = kv

	factory, err := transportFactory(env)
	if err != nil {
		_ = kv.Close()
		return err
	}
	a.registry = connection.NewRegistry(factory)

	sessions := session.NewManager(kv, env.RPCTimeout)
	machine := auth.NewMachine(a.registry, sessions, env.RPCTimeout)
	fetcher := dialogs.NewFetcher(dialogs.Config{
		HistoryLimit: env.HistoryLimit,
		Concurrency:  env.HistoryConcurrency,
		Timeout:      env.RPCTimeout,
	})
	a.inbox = inbox.NewService(
		credentials.NewStore(kv),
		sessions,
		a.registry,
		machine,
		fetcher,
		inbox.Config{DialogsLimit: env.DialogsLimit},
	)

	defaults := model.Credentials{APIID: env.APIID, APIHash: env.APIHash}
	if env.CLIEnable {
		a.cli = cli.NewService(a.inbox, a.mainCancel, cli.Options{
			Credentials:  defaults,
			PhoneNumber:  env.PhoneNumber,
			DialogsLimit: env.DialogsLimit,
		})
	}
	if env.WebServerEnable {
		a.web = web.NewServer(a.inbox, web.Options{
			Address:      env.WebServerAddress,
			DialogsLimit: env.DialogsLimit,
			Credentials:  defaults,
		})
	}
	return nil
}

// openStore выбирает бэкенд хранилища учётных данных и сессии.
func openStore(ctx context.Context, env config.EnvConfig) (storage.KV, error) {
	switch env.StoreBackend {
	case config.StoreRedis:
		openCtx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
		defer cancel()
		return storage.OpenRedis(openCtx, storage.RedisOptions{
			Addr:     env.RedisAddr,
			Password: env.RedisPassword,
			DB:       env.RedisDB,
		})
	case config.StoreFile:
		return storage.NewFileKV(env.StoreFile), nil
	default:
		return storage.OpenBolt(env.StoreFile)
	}
}

// transportFactory создаёт транспорт на пару учётных данных.
func transportFactory(env config.EnvConfig) (connection.Factory, error) {
	switch env.Transport {
	case config.TransportMTProto:
		return func(creds model.Credentials) (transport.Client, error) {
			return mtproto.New(mtproto.Options{
				Credentials: creds,
				TestDC:      env.TestDC,
				ThrottleRPS: env.ThrottleRPS,
			})
		}, nil
	default:
		fixture, err := demo.LoadFixture(env.DemoFixtureFile)
		if err != nil {
			return nil, errors.Wrap(err, "load demo fixture")
		}
		return func(model.Credentials) (transport.Client, error) {
			return demo.New(demo.Config{
				Fixture:  fixture,
				Password: env.DemoPassword,
				Delay:    env.DemoDelay,
			})
		}, nil
	}
}

// Run запускает узлы и блокируется до отмены mainCtx.
func (a *App) Run() error {
	lc := lifecycle.New(a.mainCtx)
	if err := a.register(lc); err != nil {
		return err
	}
	if err := lc.StartAll(); err != nil {
		_ = lc.Shutdown()
		return errors.Wrap(err, "start services")
	}
	logger.Info("Telegram inbox running")

	<-a.mainCtx.Done()
	logger.Debug("Shutdown signal received, stopping services...")
	return lc.Shutdown()
}

func (a *App) register(lc *lifecycle.Manager) error {
	regs := []struct {
		name  string
		deps  []string
		start lifecycle.StartFunc
		stop  lifecycle.StopFunc
	}{
		{
			name: "storage",
			stop: func(context.Context) error { return a.kv.Close() },
		},
		{
			name: "telegram",
			deps: []string{"storage"},
			stop: func(context.Context) error { return a.closeRegistry() },
		},
		{
			name:  "inbox",
			deps:  []string{"telegram"},
			start: a.startInbox,
		},
	}
	if a.cli != nil {
		regs = append(regs, struct {
			name  string
			deps  []string
			start lifecycle.StartFunc
			stop  lifecycle.StopFunc
		}{
			name: "cli",
			deps: []string{"inbox"},
			start: func(ctx context.Context) (context.Context, error) {
				a.cli.Start(ctx)
				return nil, nil
			},
			stop: func(context.Context) error {
				a.cli.Stop()
				return nil
			},
		})
	}
	if a.web != nil {
		regs = append(regs, struct {
			name  string
			deps  []string
			start lifecycle.StartFunc
			stop  lifecycle.StopFunc
		}{
			name:  "web",
			deps:  []string{"inbox"},
			start: a.startWeb,
			stop: func(context.Context) error {
				ctx, cancel := context.WithTimeout(context.Background(), webShutdownTimeout)
				defer cancel()
				return a.web.Shutdown(ctx)
			},
		})
	}

	for _, r := range regs {
		if err := lc.Register(r.name, "", r.deps, r.start, r.stop); err != nil {
			return err
		}
	}
	return nil
}

// startInbox восстанавливает сохранённую сессию в фоне: сеть не должна
// задерживать запуск интерфейсов.
func (a *App) startInbox(ctx context.Context) (context.Context, error) {
	go func() {
		bootCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
		defer cancel()

		res, err := a.inbox.Bootstrap(bootCtx)
		switch {
		case err != nil:
			logger.Warn("session restore failed", zap.Error(err))
		case res.Rejection != nil:
			logger.Info("saved session rejected", zap.String("reason", res.Message()))
		case res.Step == model.StepComplete:
			snap := a.inbox.Snapshot()
			logger.Info("session restored", zap.String("user", snap.UserName), zap.Int("chats", len(snap.Chats)))
		default:
			logger.Info("no saved session; waiting for login")
		}
	}()
	return nil, nil
}

func (a *App) startWeb(ctx context.Context) (context.Context, error) {
	go func() {
		if err := a.web.Start(ctx); err != nil {
			logger.Error("web server stopped", zap.Error(err))
			a.mainCancel()
		}
	}()
	token := a.web.GenerateAuthToken()
	pr.Println(fmt.Sprintf("Dashboard: http://%s/?token=%s", a.cfg.GetEnv().WebServerAddress, token))
	return nil, nil
}

// closeRegistry закрывает транспорты, не дольше registryCloseDeadline.
func (a *App) closeRegistry() error {
	done := make(chan error, 1)
	go func() { done <- a.registry.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-time.After(registryCloseDeadline):
		return errors.New("telegram transports did not close in time")
	}
}
