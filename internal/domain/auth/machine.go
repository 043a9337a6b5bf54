// Package auth — машина состояний входа в Telegram:
//
//	phone → code → 2fa → complete
//
// Машина владеет промежуточным прогрессом (phone_code_hash), классифицирует
// отказы транспорта и решает, куда переходить. Штатные отказы (неверный код,
// просроченный код, неверный пароль) не являются ошибками: они возвращаются в
// Result.Rejection, а шаг остаётся прежним. Ошибкой возвращается только
// неожиданное: недоступная сеть, таймаут, битый ответ, вызов не на своём шаге.
//
// Все операции сериализуются мьютексом машины. Одна машина обслуживает одну
// пару учётных данных.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/domain/transport"
	"telegram-inbox/internal/infra/concurrency"
	"telegram-inbox/internal/infra/logger"
)

// Connector выдаёт живой транспорт для пары учётных данных и освобождает его.
type Connector interface {
	Acquire(creds model.Credentials) (transport.Client, error)
	Release(creds model.Credentials) error
}

// Persister сохраняет, читает и отбрасывает снимок сессии.
type Persister interface {
	Persist(ctx context.Context, creds model.Credentials, s model.Session) error
	Load(ctx context.Context, creds model.Credentials) (model.Session, bool, error)
	Discard(ctx context.Context, creds model.Credentials) error
}

// Result — исход операции машины.
type Result struct {
	// Step — шаг после операции.
	Step model.LoginStep
	// Rejection — штатный отказ; шаг при этом не меняется.
	Rejection *model.Error
}

// Message возвращает сообщение для пользователя или пустую строку.
func (r Result) Message() string {
	if r.Rejection == nil {
		return ""
	}
	return r.Rejection.Kind.UserMessage()
}

// Machine — машина авторизации.
type Machine struct {
	connector Connector
	persister Persister
	timeout   time.Duration

	mu       sync.Mutex
	step     model.LoginStep
	progress *model.AuthProgress
	creds    model.Credentials
	client   transport.Client
	session  model.Session
	user     transport.Authorization
}

// NewMachine создаёт машину в шаге phone. timeout ограничивает каждый
// удалённый вызов; <= 0 — concurrency.DefaultRPCTimeout.
func NewMachine(connector Connector, persister Persister, timeout time.Duration) *Machine {
	return &Machine{
		connector: connector,
		persister: persister,
		timeout:   timeout,
		step:      model.StepPhone,
	}
}

// Step возвращает текущий шаг.
func (m *Machine) Step() model.LoginStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Session возвращает текущий снимок сессии.
func (m *Machine) Session() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// User возвращает авторизованного пользователя (пусто до complete).
func (m *Machine) User() transport.Authorization {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Credentials возвращает пару, с которой работает машина.
func (m *Machine) Credentials() model.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

// Client возвращает транспорт авторизованной сессии. ok=false до complete.
func (m *Machine) Client() (transport.Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != model.StepComplete || m.client == nil {
		return nil, false
	}
	return m.client, true
}

// SubmitPhoneNumber запрашивает код подтверждения. Допустим на шагах phone и
// code (повторный запрос кода начинает прогресс заново).
func (m *Machine) SubmitPhoneNumber(ctx context.Context, phone string, creds model.Credentials) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step != model.StepPhone && m.step != model.StepCode {
		return m.invalidState("submit phone number")
	}
	if err := creds.Validate(); err != nil {
		return m.outcome(err)
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return m.reject(model.KindInvalidPhoneFormat, errors.New("phone number is empty"))
	}

	client, err := m.connect(ctx, creds)
	if err != nil {
		return m.outcome(err)
	}
	hash, err := concurrency.CallWithTimeout(ctx, m.timeout, "auth.sendCode", func(ctx context.Context) (string, error) {
		return client.SendCode(ctx, phone, creds)
	})
	if err != nil {
		return m.outcome(err)
	}
	if hash == "" {
		return m.outcome(model.NewError(model.KindMalformedResponse, errors.New("empty phone code hash")))
	}

	m.releaseStaleLocked(creds)
	m.creds = creds
	m.client = client
	m.progress = &model.AuthProgress{PhoneNumber: phone, PhoneCodeHash: hash}
	m.step = model.StepCode
	logger.Info("verification code sent", zap.String("scope", creds.Key()))
	return Result{Step: m.step}, nil
}

// SubmitVerificationCode погашает код. Код передаётся транспорту как есть.
func (m *Machine) SubmitVerificationCode(ctx context.Context, code string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step != model.StepCode || m.progress == nil || m.client == nil {
		return m.invalidState("submit verification code")
	}
	if strings.TrimSpace(code) == "" {
		return m.reject(model.KindInvalidCode, errors.New("verification code is empty"))
	}

	progress := *m.progress
	client := m.client
	res, err := concurrency.CallWithTimeout(ctx, m.timeout, "auth.signIn", func(ctx context.Context) (transport.SignInResult, error) {
		return client.SignIn(ctx, progress.PhoneNumber, progress.PhoneCodeHash, code)
	})
	if err != nil {
		return m.outcome(err)
	}

	switch res.Status {
	case transport.SignInPasswordRequired:
		// Прогресс сохраняется: телефон и hash понадобятся при повторе.
		m.step = model.StepTwoFactor
		logger.Info("two-factor password required", zap.String("scope", m.creds.Key()))
		return Result{Step: m.step}, nil
	case transport.SignInAuthorized:
		return m.complete(ctx, progress.PhoneNumber, res.User)
	default:
		return m.outcome(model.NewError(model.KindMalformedResponse, errors.Errorf("unknown sign in status %d", res.Status)))
	}
}

// SubmitTwoFactorPassword завершает вход облачным паролем.
func (m *Machine) SubmitTwoFactorPassword(ctx context.Context, password string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step != model.StepTwoFactor || m.client == nil {
		return m.invalidState("submit two-factor password")
	}
	if password == "" {
		return m.reject(model.KindInvalidPassword, errors.New("password is empty"))
	}

	client := m.client
	user, err := concurrency.CallWithTimeout(ctx, m.timeout, "auth.checkPassword", func(ctx context.Context) (transport.Authorization, error) {
		return client.CheckPassword(ctx, password)
	})
	if err != nil {
		return m.outcome(err)
	}

	phone := ""
	if m.progress != nil {
		phone = m.progress.PhoneNumber
	}
	return m.complete(ctx, phone, user)
}

// RestoreSession проверяет сохранённый артефакт через транспорт и сразу
// переводит машину в complete, минуя телефон и код. Непригодный артефакт
// удаляется из хранилища, машина остаётся в phone. Сетевой сбой артефакт не
// трогает: его можно проверить позже.
func (m *Machine) RestoreSession(ctx context.Context, artifact string, creds model.Credentials) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step == model.StepComplete {
		return m.invalidState("restore session")
	}
	if err := creds.Validate(); err != nil {
		return m.outcome(err)
	}

	m.releaseStaleLocked(creds)
	m.resetLocked()
	if artifact == "" {
		return m.reject(model.KindNotAuthenticated, errors.New("no session artifact"))
	}

	// Подключение — забота транспорта: он сначала импортирует артефакт.
	client, err := m.connector.Acquire(creds)
	if err != nil {
		return m.outcome(err)
	}
	user, err := concurrency.CallWithTimeout(ctx, m.timeout, "auth.restore", func(ctx context.Context) (transport.Authorization, error) {
		return client.RestoreSession(ctx, artifact)
	})
	if err != nil {
		err = model.Classify(err)
		if model.KindOf(err) == model.KindNotAuthenticated {
			logger.Warn("stored telegram session rejected, discarding", zap.String("scope", creds.Key()), zap.Error(err))
			if dErr := m.persister.Discard(context.WithoutCancel(ctx), creds); dErr != nil {
				logger.Error("discard session failed", zap.Error(dErr))
			}
			var rejection *model.Error
			errors.As(err, &rejection)
			return Result{Step: m.step, Rejection: rejection}, nil
		}
		return m.outcome(err)
	}

	phone := user.Phone
	if phone == "" {
		// Транспорт не знает номер: берём его из сохранённого снимка того же артефакта.
		if stored, ok, lErr := m.persister.Load(ctx, creds); lErr == nil && ok && stored.Artifact == artifact {
			phone = stored.PhoneNumber
		}
	}

	m.creds = creds
	m.client = client
	m.session = model.Session{IsLoggedIn: true, PhoneNumber: phone, Artifact: artifact}
	m.user = user
	m.step = model.StepComplete
	if pErr := m.persister.Persist(ctx, creds, m.session); pErr != nil {
		logger.Error("persist restored session failed", zap.Error(pErr))
	}
	logger.Info("telegram session restored", zap.String("scope", creds.Key()), zap.Int64("user_id", user.UserID))
	return Result{Step: m.step}, nil
}

// Reset возвращает машину в phone: прогресс, клиент и сессия забываются.
// Транспорт не закрывается: им владеет реестр соединений.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.creds = model.Credentials{}
}

func (m *Machine) resetLocked() {
	m.step = model.StepPhone
	m.progress = nil
	m.client = nil
	m.session = model.Session{}
	m.user = transport.Authorization{}
}

// releaseStaleLocked освобождает транспорт прежней пары, если машина
// переходит на другие учётные данные.
func (m *Machine) releaseStaleLocked(next model.Credentials) {
	if m.creds.Validate() != nil || m.creds.Key() == next.Key() {
		return
	}
	if err := m.connector.Release(m.creds); err != nil {
		logger.Warn("release previous telegram connection failed", zap.String("scope", m.creds.Key()), zap.Error(err))
	}
}

func (m *Machine) connect(ctx context.Context, creds model.Credentials) (transport.Client, error) {
	client, err := m.connector.Acquire(creds)
	if err != nil {
		return nil, err
	}
	if err := concurrency.DoWithTimeout(ctx, m.timeout, "connect", client.Connect); err != nil {
		return nil, err
	}
	return client, nil
}

// complete экспортирует артефакт, сохраняет сессию и завершает вход.
// Ошибка сохранения не отменяет вход: сессия просто не переживёт рестарт.
func (m *Machine) complete(ctx context.Context, phone string, user transport.Authorization) (Result, error) {
	client := m.client
	artifact, err := concurrency.CallWithTimeout(ctx, m.timeout, "session.export", client.ExportSession)
	if err != nil {
		return m.outcome(err)
	}
	if artifact == "" {
		return m.outcome(model.NewError(model.KindMalformedResponse, errors.New("empty session artifact")))
	}
	if phone == "" {
		phone = user.Phone
	}

	m.session = model.Session{IsLoggedIn: true, PhoneNumber: phone, Artifact: artifact}
	m.user = user
	m.progress = nil
	m.step = model.StepComplete

	if pErr := m.persister.Persist(ctx, m.creds, m.session); pErr != nil {
		logger.Error("persist session failed", zap.Error(pErr))
	}
	logger.Info("telegram login complete", zap.String("scope", m.creds.Key()), zap.Int64("user_id", user.UserID))
	return Result{Step: m.step}, nil
}

// outcome раскладывает ошибку: штатный отказ — в Result, прочее — в error.
// Шаг не меняется.
func (m *Machine) outcome(err error) (Result, error) {
	err = model.Classify(err)
	var classified *model.Error
	if errors.As(err, &classified) && classified.Kind.Expected() {
		logger.Debug("login step rejected", zap.String("step", string(m.step)), zap.String("kind", string(classified.Kind)))
		return Result{Step: m.step, Rejection: classified}, nil
	}
	logger.Warn("login step failed", zap.String("step", string(m.step)), zap.Error(err))
	return Result{Step: m.step}, err
}

func (m *Machine) reject(kind model.ErrorKind, cause error) (Result, error) {
	return Result{Step: m.step, Rejection: model.NewError(kind, cause)}, nil
}

func (m *Machine) invalidState(op string) (Result, error) {
	return Result{Step: m.step}, model.NewError(model.KindInvalidState, errors.Errorf("%s in step %s", op, m.step))
}
