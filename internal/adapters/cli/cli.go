// Package cli — интерактивная консоль канала Telegram: пошаговый вход,
// просмотр списка чатов, обновление и выход. Ввод читается через общий
// readline (пакет pr), секреты вводятся без эха. Start/Stop идемпотентны.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"telegram-inbox/internal/domain/auth"
	"telegram-inbox/internal/domain/inbox"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/infra/logger"
	"telegram-inbox/internal/infra/pr"
)

const (
	// maxAttempts — сколько раз переспрашивать значение после штатного отказа.
	maxAttempts = 3
	// commandTimeout ограничивает одну команду, не считая ожидания ввода.
	commandTimeout = 2 * time.Minute
)

type commandDescriptor struct {
	name        string
	description string
}

var commandDescriptors = []commandDescriptor{
	{name: "help", description: "Show available commands with short descriptions"},
	{name: "login", description: "Log in to Telegram step by step (phone, code, 2FA)"},
	{name: "chats", description: "Print the current chat list"},
	{name: "refresh", description: "Fetch the chat list from Telegram again"},
	{name: "state", description: "Show login step and session state"},
	{name: "logout", description: "Log out and forget the saved session"},
	{name: "exit", description: "Stop CLI and terminate the service"},
}

// Inbox — операции канала, доступные из консоли.
type Inbox interface {
	Snapshot() inbox.Snapshot
	SavedCredentials(ctx context.Context) (model.Credentials, bool, error)
	SubmitPhoneNumber(ctx context.Context, phone string, creds model.Credentials) (auth.Result, error)
	SubmitVerificationCode(ctx context.Context, code string) (auth.Result, error)
	SubmitTwoFactorPassword(ctx context.Context, password string) (auth.Result, error)
	ListChats(ctx context.Context, limit int) ([]model.Chat, error)
	Logout(ctx context.Context) error
}

// Prompter читает ввод пользователя.
type Prompter interface {
	ReadLine(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
}

type terminal struct{}

func (terminal) ReadLine(prompt string) (string, error)     { return pr.ReadLine(prompt) }
func (terminal) ReadPassword(prompt string) (string, error) { return pr.ReadPassword(prompt) }

// Options — значения по умолчанию для входа.
type Options struct {
	Credentials  model.Credentials
	PhoneNumber  string
	DialogsLimit int
}

// Service — консоль, встроенная в lifecycle приложения.
type Service struct {
	inbox   Inbox
	opts    Options
	stopApp context.CancelFunc
	in      Prompter
	out     io.Writer

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onceStart sync.Once
	onceStop  sync.Once
}

// NewService создаёт консоль. stopApp вызывается командой exit и Ctrl-C на пустой строке.
func NewService(svc Inbox, stopApp context.CancelFunc, opts Options) *Service {
	return &Service{inbox: svc, opts: opts, stopApp: stopApp, in: terminal{}}
}

func (s *Service) writer() io.Writer {
	if s.out != nil {
		return s.out
	}
	return pr.Stdout()
}

func (s *Service) printf(format string, a ...any) {
	fmt.Fprintf(s.writer(), format, a...)
}

func (s *Service) println(a ...any) {
	fmt.Fprintln(s.writer(), a...)
}

// Start запускает цикл чтения команд в отдельной горутине.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Go(func() {
			s.run(runCtx)
		})
	})
}

// Stop прерывает readline, отменяет цикл и ждёт его завершения.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		pr.InterruptReadline()
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	s.println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	s.println("Press '?' or type 'help' for detailed descriptions.")
	installKeyHandlers(s.stopApp, s.printCommandHelp)

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	if s.inbox.Snapshot().LoginStep != model.StepComplete {
		s.println("Not logged in. Type 'login' to start.")
	}

	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}
		line, err := s.in.ReadLine("> ")
		if err != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			return
		}
		if s.handleCommand(ctx, line) {
			logger.Debugf("CLI: command %q requested exit", line)
			return
		}
	}
}

// installKeyHandlers: '?' печатает help, Ctrl-C на пустой строке
// останавливает приложение, на непустой — очищает строку.
func installKeyHandlers(stop context.CancelFunc, help func()) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}

	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key == '?' {
			help()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		if key == 3 { //nolint: mnd // Ctrl-C (ETX, rune value 3)
			if strings.TrimSpace(string(line)) == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			}
			return []rune{}, 0, true
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

func (s *Service) printCommandHelp() {
	for _, text := range buildCommandHelpLines(commandDescriptors) {
		s.println(text)
	}
}

// handleCommand выполняет команду. Возвращает true для "exit".
func (s *Service) handleCommand(ctx context.Context, line string) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd {
	case "help":
		s.printCommandHelp()
	case "login":
		s.login(cmdCtx)
	case "chats":
		s.showChats(cmdCtx)
	case "refresh":
		s.refresh(cmdCtx)
	case "state":
		s.printState()
	case "logout":
		if err := s.inbox.Logout(cmdCtx); err != nil {
			s.printf("logout error: %v\n", err)
		} else {
			s.println("Logged out. Saved session removed.")
		}
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	case "":
	default:
		s.println("unknown command:", cmd)
	}
	return false
}

// login проводит пользователя по шагам машины авторизации.
func (s *Service) login(ctx context.Context) {
	if snap := s.inbox.Snapshot(); snap.LoginStep == model.StepComplete {
		s.printf("Already logged in as %s. Use 'logout' first.\n", snap.UserName)
		return
	}

	creds, err := s.credentials(ctx)
	if err != nil {
		s.printf("login aborted: %v\n", err)
		return
	}

	res, ok := s.phoneStep(ctx, creds)
	if !ok {
		return
	}
	if res.Step == model.StepCode {
		if res, ok = s.codeStep(ctx); !ok {
			return
		}
	}
	if res.Step == model.StepTwoFactor {
		if res, ok = s.passwordStep(ctx); !ok {
			return
		}
	}
	if res.Step != model.StepComplete {
		return
	}

	snap := s.inbox.Snapshot()
	s.printf("Logged in as %s.\n", snap.UserName)
	s.printChats(snap.Chats)
}

// credentials берёт учётные данные из конфигурации, затем из хранилища,
// а при их отсутствии спрашивает у пользователя.
func (s *Service) credentials(ctx context.Context) (model.Credentials, error) {
	if s.opts.Credentials.Validate() == nil {
		return s.opts.Credentials, nil
	}
	if saved, ok, err := s.inbox.SavedCredentials(ctx); err == nil && ok {
		return saved, nil
	}

	rawID, err := s.in.ReadLine("API ID: ")
	if err != nil {
		return model.Credentials{}, err
	}
	apiID, err := strconv.Atoi(strings.TrimSpace(rawID))
	if err != nil {
		return model.Credentials{}, model.NewError(model.KindInvalidCredentials, err)
	}
	hash, err := s.in.ReadPassword("API hash: ")
	if err != nil {
		return model.Credentials{}, err
	}
	return model.Credentials{APIID: apiID, APIHash: strings.TrimSpace(hash)}, nil
}

func (s *Service) phoneStep(ctx context.Context, creds model.Credentials) (auth.Result, bool) {
	for range maxAttempts {
		phone := s.opts.PhoneNumber
		prompt := "Phone number (international format): "
		if phone != "" {
			prompt = fmt.Sprintf("Phone number [%s]: ", phone)
		}
		entered, err := s.in.ReadLine(prompt)
		if err != nil {
			return auth.Result{}, false
		}
		if entered != "" {
			phone = entered
		}

		s.println("Sending code...")
		res, err := s.inbox.SubmitPhoneNumber(ctx, phone, creds)
		if !s.report(res, err) {
			return res, false
		}
		if res.Rejection == nil {
			return res, true
		}
		if res.Rejection.Kind != model.KindInvalidPhoneFormat {
			return res, false
		}
	}
	return auth.Result{}, false
}

func (s *Service) codeStep(ctx context.Context) (auth.Result, bool) {
	for range maxAttempts {
		code, err := s.in.ReadLine("Enter the code from Telegram: ")
		if err != nil {
			return auth.Result{}, false
		}
		res, err := s.inbox.SubmitVerificationCode(ctx, code)
		if !s.report(res, err) {
			return res, false
		}
		if res.Rejection == nil {
			return res, true
		}
		if res.Rejection.Kind == model.KindCodeExpired {
			return res, false
		}
	}
	return auth.Result{}, false
}

func (s *Service) passwordStep(ctx context.Context) (auth.Result, bool) {
	for range maxAttempts {
		password, err := s.in.ReadPassword("Enter 2FA password: ")
		if err != nil {
			return auth.Result{}, false
		}
		res, err := s.inbox.SubmitTwoFactorPassword(ctx, password)
		if !s.report(res, err) {
			return res, false
		}
		if res.Rejection == nil {
			return res, true
		}
	}
	return auth.Result{}, false
}

// report печатает отказ или ошибку. false — продолжать нельзя.
func (s *Service) report(res auth.Result, err error) bool {
	if err != nil {
		if kind := model.KindOf(err); kind != "" {
			s.println(kind.UserMessage())
		} else {
			s.printf("error: %v\n", err)
		}
		return false
	}
	if res.Rejection != nil {
		s.println(res.Message())
	}
	return true
}

func (s *Service) showChats(ctx context.Context) {
	snap := s.inbox.Snapshot()
	if snap.LoginStep != model.StepComplete {
		s.println(model.KindNotAuthenticated.UserMessage())
		return
	}
	if len(snap.Chats) == 0 {
		s.refresh(ctx)
		return
	}
	s.printChats(snap.Chats)
}

func (s *Service) refresh(ctx context.Context) {
	s.println("Fetching chats...")
	chats, err := s.inbox.ListChats(ctx, s.opts.DialogsLimit)
	if err != nil {
		if kind := model.KindOf(err); kind != "" {
			s.println(kind.UserMessage())
		} else {
			s.printf("refresh error: %v\n", err)
		}
		return
	}
	s.printChats(chats)
}

func (s *Service) printChats(chats []model.Chat) {
	if len(chats) == 0 {
		s.println("No chats.")
		return
	}
	for _, c := range chats {
		s.printf("[%s] %s", c.Kind, c.Title)
		if c.UnreadCount > 0 {
			s.printf(" (%d unread)", c.UnreadCount)
		}
		s.println()
		if c.LastMessage != nil {
			s.printf("    %s: %s  %s\n", c.LastMessage.SenderDisplayName, oneLine(c.LastMessage.Text),
				c.LastMessage.Timestamp.Local().Format(time.DateTime))
		}
	}
	s.printf("Total chats: %d\n", len(chats))
}

// printState печатает снимок без артефакта сессии.
func (s *Service) printState() {
	snap := s.inbox.Snapshot()
	view := struct {
		LoginStep   model.LoginStep
		IsLoggedIn  bool
		PhoneNumber string
		UserName    string
		Chats       int
		Loading     bool
		Error       string
	}{
		LoginStep:   snap.LoginStep,
		IsLoggedIn:  snap.Session.IsLoggedIn,
		PhoneNumber: snap.Session.PhoneNumber,
		UserName:    snap.UserName,
		Chats:       len(snap.Chats),
		Loading:     snap.Loading,
		Error:       snap.Error,
	}
	s.printf("%s", pr.Pf(view))
}

const previewLen = 80

func oneLine(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > previewLen {
		return string(r[:previewLen]) + "…"
	}
	return text
}

func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.name)
	}
	return strings.Join(names, ", ")
}

func buildCommandHelpLines(descriptors []commandDescriptor) []string {
	lines := make([]string, 0, len(descriptors)+1)
	lines = append(lines, "Available commands:")
	for _, descriptor := range descriptors {
		lines = append(lines, fmt.Sprintf("  %-8s - %s", descriptor.name, descriptor.description))
	}
	return lines
}
