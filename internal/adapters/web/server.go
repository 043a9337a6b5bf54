// Package web — HTTP-интерфейс канала Telegram: JSON API шагов входа,
// список чатов, совместимый RPC-эндпоинт, поток снимков состояния по
// websocket и простая страница-дашборд. Доступ — по одноразовому токену,
// который обменивается на cookie-сессию.
package web

import (
	"context"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"telegram-inbox/internal/domain/auth"
	"telegram-inbox/internal/domain/inbox"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/infra/logger"
)

// Inbox — операции канала, доступные по HTTP.
type Inbox interface {
	Snapshot() inbox.Snapshot
	Subscribe(fn func(inbox.Snapshot)) func()
	SubmitPhoneNumber(ctx context.Context, phone string, creds model.Credentials) (auth.Result, error)
	SubmitVerificationCode(ctx context.Context, code string) (auth.Result, error)
	SubmitTwoFactorPassword(ctx context.Context, password string) (auth.Result, error)
	RestoreSession(ctx context.Context, artifact string, creds model.Credentials) (auth.Result, error)
	ListChats(ctx context.Context, limit int) ([]model.Chat, error)
	Logout(ctx context.Context) error
}

// Options — параметры сервера.
type Options struct {
	Address string
	// DialogsLimit — лимит по умолчанию для GET /chats и RPC getDialogs.
	DialogsLimit int
	// SessionTTL — время жизни cookie-сессии дашборда.
	SessionTTL time.Duration
	// Credentials — значения по умолчанию для формы входа.
	Credentials model.Credentials
}

// Server — веб-сервер канала.
type Server struct {
	srv      *http.Server
	auth     *AuthManager
	inbox    Inbox
	opts     Options
	tmpl     *template.Template
	upgrader websocket.Upgrader
	cancel   context.CancelFunc

	// closing закрывается в Shutdown: http.Server не ждёт захваченные /ws соединения.
	closing   chan struct{}
	closeOnce sync.Once
}

const (
	readTimeout = 15 * time.Second
	idleTimeout = 60 * time.Second

	// requestTimeout — потолок для операций канала внутри одного запроса.
	requestTimeout = 2 * time.Minute

	defaultSessionTTL            = time.Hour
	cleanExpiredSessionsInterval = 3 * time.Minute
)

// NewServer собирает роутер и http.Server, но не слушает порт.
func NewServer(svc Inbox, opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	s := &Server{
		auth:    NewAuthManager(opts.SessionTTL),
		inbox:   svc,
		opts:    opts,
		closing: make(chan struct{}),
		tmpl:    template.Must(template.New("dashboard").Parse(dashboardTemplate)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.srv = &http.Server{
		Addr:    opts.Address,
		Handler: s.routes(),
		// Без WriteTimeout: /ws держит соединение долго.
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/", s.handleDashboard)
		r.Get("/ws", s.handleWS)

		r.Route("/api/telegram", func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Get("/state", s.handleState)
			r.Post("/phone", s.handlePhone)
			r.Post("/code", s.handleCode)
			r.Post("/password", s.handlePassword)
			r.Post("/restore", s.handleRestore)
			r.Post("/logout", s.handleLogout)
			r.Get("/chats", s.handleChats)
			r.Post("/chats/refresh", s.handleRefresh)
			r.Post("/rpc", s.handleRPC)
		})
	})
	return r
}

// Handler отдаёт корневой обработчик (для тестов и встраивания).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start слушает адрес и блокируется до Shutdown.
func (s *Server) Start(ctx context.Context) error {
	logger.Info("Starting web server", zap.String("address", s.srv.Addr))

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.cleanupLoop(loopCtx)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web server error")
	}
	return nil
}

// Shutdown корректно останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down web server...")
	if s.cancel != nil {
		s.cancel()
	}
	s.closeOnce.Do(func() { close(s.closing) })
	return s.srv.Shutdown(ctx)
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanExpiredSessionsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.auth.CleanExpiredSessions()
		}
	}
}

// GenerateAuthToken выпускает новый одноразовый токен входа в дашборд.
func (s *Server) GenerateAuthToken() string {
	token := s.auth.GenerateToken()
	logger.Info("Generated new auth token for web interface")
	return token
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	writeResponse(w, []byte("OK"))
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	data := struct {
		APIID   int
		APIHash string
	}{APIID: s.opts.Credentials.APIID, APIHash: s.opts.Credentials.APIHash}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		logger.Errorf("Error rendering dashboard: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
