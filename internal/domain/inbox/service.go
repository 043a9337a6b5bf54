// Package inbox — фасад Telegram-канала для интерфейса дашборда.
//
// Сервис склеивает машину авторизации, менеджер сессии, выборку диалогов и
// реестр соединений и публикует наблюдаемое состояние: шаг входа, сессию,
// список чатов и признак загрузки. Подписчики получают снимок после каждого
// изменения.
package inbox

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-inbox/internal/domain/auth"
	"telegram-inbox/internal/domain/credentials"
	"telegram-inbox/internal/domain/dialogs"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/session"
	"telegram-inbox/internal/infra/logger"
)

// Connections — реестр живых транспортов: не больше одного на пару учётных данных.
type Connections interface {
	auth.Connector
	Release(creds model.Credentials) error
}

// Snapshot — наблюдаемое состояние канала.
type Snapshot struct {
	LoginStep model.LoginStep
	Session   model.Session
	UserName  string
	Chats     []model.Chat
	Loading   bool
	// Error — сообщение о последнем отказе или сбое; пусто после успеха.
	Error string
}

// Config — параметры сервиса.
type Config struct {
	// DialogsLimit — сколько диалогов запрашивать при обновлении.
	DialogsLimit int
}

// Service — Telegram-канал инбокса.
type Service struct {
	creds       *credentials.Store
	sessions    *session.Manager
	connections Connections
	machine     *auth.Machine
	fetcher     *dialogs.Fetcher
	cfg         Config

	mu          sync.Mutex
	step        model.LoginStep
	session     model.Session
	userName    string
	chats       []model.Chat
	busy        int
	lastError   string
	fetchCancel context.CancelFunc
	generation  uint64
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// NewService собирает сервис. machine должна использовать те же connections и sessions.
func NewService(
	creds *credentials.Store,
	sessions *session.Manager,
	connections Connections,
	machine *auth.Machine,
	fetcher *dialogs.Fetcher,
	cfg Config,
) *Service {
	if cfg.DialogsLimit <= 0 {
		cfg.DialogsLimit = dialogs.DefaultDialogsLimit
	}
	return &Service{
		creds:       creds,
		sessions:    sessions,
		connections: connections,
		machine:     machine,
		fetcher:     fetcher,
		cfg:         cfg,
		step:        model.StepPhone,
		subscribers: map[int]func(Snapshot){},
	}
}

// Snapshot возвращает копию текущего состояния. Не ждёт операций машины.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() Snapshot {
	chats := make([]model.Chat, len(s.chats))
	copy(chats, s.chats)
	return Snapshot{
		LoginStep: s.step,
		Session:   s.session,
		UserName:  s.userName,
		Chats:     chats,
		Loading:   s.busy > 0,
		Error:     s.lastError,
	}
}

// Subscribe регистрирует наблюдателя. fn вызывается синхронно и не должна
// блокироваться надолго. Возвращает функцию отписки.
func (s *Service) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Service) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Service) begin() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
	s.notify()
}

// settle фиксирует исход операции машины и оповещает подписчиков.
func (s *Service) settle(res auth.Result, err error) {
	s.mu.Lock()
	s.busy--
	s.step = s.machine.Step()
	s.session = s.machine.Session()
	s.userName = s.machine.User().DisplayName
	switch {
	case err != nil:
		s.lastError = model.KindOf(err).UserMessage()
		if model.KindOf(err) == "" {
			s.lastError = err.Error()
		}
	case res.Rejection != nil:
		s.lastError = res.Message()
	default:
		s.lastError = ""
	}
	s.mu.Unlock()
	s.notify()
}

// SubmitPhoneNumber запрашивает код и при успехе сохраняет учётные данные.
func (s *Service) SubmitPhoneNumber(ctx context.Context, phone string, creds model.Credentials) (auth.Result, error) {
	s.begin()
	res, err := s.machine.SubmitPhoneNumber(ctx, phone, creds)
	if err == nil && res.Rejection == nil {
		if sErr := s.creds.Save(ctx, creds); sErr != nil {
			logger.Error("save telegram credentials failed", zap.Error(sErr))
		}
	}
	s.settle(res, err)
	return res, err
}

// SubmitVerificationCode погашает код; после входа запускается первая выборка чатов.
func (s *Service) SubmitVerificationCode(ctx context.Context, code string) (auth.Result, error) {
	s.begin()
	res, err := s.machine.SubmitVerificationCode(ctx, code)
	s.settle(res, err)
	s.afterLogin(ctx, res, err)
	return res, err
}

// SubmitTwoFactorPassword завершает вход паролем.
func (s *Service) SubmitTwoFactorPassword(ctx context.Context, password string) (auth.Result, error) {
	s.begin()
	res, err := s.machine.SubmitTwoFactorPassword(ctx, password)
	s.settle(res, err)
	s.afterLogin(ctx, res, err)
	return res, err
}

// RestoreSession восстанавливает вход по артефакту.
func (s *Service) RestoreSession(ctx context.Context, artifact string, creds model.Credentials) (auth.Result, error) {
	s.begin()
	res, err := s.machine.RestoreSession(ctx, artifact, creds)
	if err == nil && res.Rejection == nil {
		if sErr := s.creds.Save(ctx, creds); sErr != nil {
			logger.Error("save telegram credentials failed", zap.Error(sErr))
		}
	}
	s.settle(res, err)
	s.afterLogin(ctx, res, err)
	return res, err
}

// Bootstrap читает сохранённые учётные данные и сессию и пытается
// восстановить вход. Без сохранённой сессии остаётся шаг phone.
func (s *Service) Bootstrap(ctx context.Context) (auth.Result, error) {
	creds, ok, err := s.creds.Load(ctx)
	if err != nil {
		return auth.Result{Step: s.machine.Step()}, err
	}
	if !ok {
		logger.Info("no saved telegram credentials, login required")
		return auth.Result{Step: s.machine.Step()}, nil
	}
	stored, ok, err := s.sessions.Load(ctx, creds)
	if err != nil {
		return auth.Result{Step: s.machine.Step()}, err
	}
	if !ok {
		logger.Info("no saved telegram session, login required")
		return auth.Result{Step: s.machine.Step()}, nil
	}
	return s.RestoreSession(ctx, stored.Artifact, creds)
}

// SavedCredentials возвращает сохранённую пару, если она есть.
func (s *Service) SavedCredentials(ctx context.Context) (model.Credentials, bool, error) {
	return s.creds.Load(ctx)
}

func (s *Service) afterLogin(ctx context.Context, res auth.Result, err error) {
	if err != nil || res.Rejection != nil || res.Step != model.StepComplete {
		return
	}
	if rErr := s.RefreshChats(ctx); rErr != nil {
		logger.Warn("initial dialogs fetch failed", zap.Error(rErr))
	}
}

// Chats возвращает последний опубликованный список.
func (s *Service) Chats() []model.Chat {
	return s.Snapshot().Chats
}

// RefreshChats перевыбирает список с лимитом по умолчанию.
func (s *Service) RefreshChats(ctx context.Context) error {
	_, err := s.ListChats(ctx, s.cfg.DialogsLimit)
	return err
}

// ListChats выбирает диалоги и целиком заменяет опубликованный список.
// Без авторизации возвращает NotAuthenticated и список не трогает. Новая
// выборка или выход отменяют предыдущую; её результат отбрасывается.
func (s *Service) ListChats(ctx context.Context, limit int) ([]model.Chat, error) {
	client, ok := s.machine.Client()

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	// Выход, завершившийся после чтения клиента, уже сбросил s.step; выход,
	// который ещё идёт, вытеснит выборку в конце.
	if !ok || s.step != model.StepComplete {
		s.mu.Unlock()
		return nil, model.NewError(model.KindNotAuthenticated, errors.New("telegram session is not logged in"))
	}
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.busy--
	}
	s.generation++
	gen := s.generation
	s.fetchCancel = cancel
	s.busy++
	s.mu.Unlock()
	s.notify()

	chats, err := s.fetcher.ListChats(fetchCtx, client, limit)

	s.mu.Lock()
	if gen != s.generation {
		// Вытеснена выходом или более новой выборкой: счётчик уже не наш.
		s.mu.Unlock()
		if err == nil {
			err = context.Canceled
		}
		return nil, errors.Wrap(err, "dialogs fetch superseded")
	}
	s.fetchCancel = nil
	s.busy--
	if err != nil {
		s.lastError = model.KindOf(err).UserMessage()
		s.mu.Unlock()
		s.notify()
		return nil, err
	}
	s.chats = chats
	s.lastError = ""
	out := make([]model.Chat, len(chats))
	copy(out, chats)
	s.mu.Unlock()
	s.notify()
	return out, nil
}

// Logout прерывает выборку, отзывает авторизацию (best-effort), стирает
// сохранённое состояние, освобождает транспорт и сбрасывает машину.
// Идемпотентен; после него сессия всегда разлогинена.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
		s.busy--
	}
	s.generation++
	s.mu.Unlock()

	creds := s.machine.Credentials()
	if creds.Validate() != nil {
		if saved, ok, err := s.creds.Load(ctx); err == nil && ok {
			creds = saved
		}
	}
	client, _ := s.machine.Client()

	err := s.sessions.Logout(ctx, creds, client)
	if creds.Validate() == nil {
		if rErr := s.connections.Release(creds); rErr != nil {
			logger.Warn("release telegram connection failed", zap.Error(rErr))
		}
	}
	s.machine.Reset()

	s.mu.Lock()
	// Выборка, начатая во время выхода, тоже вытесняется.
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
		s.busy--
	}
	s.generation++
	s.step = model.StepPhone
	s.session = model.Session{}
	s.userName = ""
	s.chats = nil
	s.lastError = ""
	s.mu.Unlock()
	s.notify()

	if err != nil {
		return errors.Wrap(err, "clear telegram session")
	}
	logger.Info("telegram logout complete")
	return nil
}
