// Package pr — вывод и ввод интерактивной консоли.
// Init поднимает readline с отменяемым stdin и переназначает stdout/stderr
// на его буферы, чтобы логи не ломали строку ввода. До Init() вывод идёт
// в os.Stdout/os.Stderr, ввод недоступен.
package pr

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/go-faster/errors"
	"github.com/kr/pretty"
	"golang.org/x/term"
)

// ErrNoInput — readline не инициализирован.
var ErrNoInput = errors.New("interactive input is not available")

var (
	rl     *readline.Instance
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
	// mu защищает замену writer’ов и cancelableIn, но не сами записи.
	mu sync.Mutex

	// cancelableIn закрывается для прерывания Readline (io.EOF).
	cancelableIn interface{ Close() error }
)

// Interactive сообщает, подключён ли stdin к терминалу.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Init настраивает readline и перенаправляет вывод на его stdout/stderr.
func Init() error {
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{Stdin: cs})
	if err != nil {
		_ = cs.Close()
		return err
	}

	mu.Lock()
	rl = newRl
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// InterruptReadline закрывает cancelable stdin: Readline() получает io.EOF.
// Идемпотентна.
func InterruptReadline() {
	mu.Lock()
	cs := cancelableIn
	mu.Unlock()
	if cs != nil {
		_ = cs.Close()
	}
}

// SetPrompt задаёт приглашение; без Init() — no-op.
func SetPrompt(prompt string) {
	if r := Rl(); r != nil {
		r.SetPrompt(prompt)
	}
}

// Rl возвращает инстанс readline или nil до Init().
func Rl() *readline.Instance {
	mu.Lock()
	defer mu.Unlock()
	return rl
}

// ReadLine выводит приглашение, читает строку и обрезает пробелы по краям.
// Приглашение остаётся до следующей смены.
func ReadLine(prompt string) (string, error) {
	r := Rl()
	if r == nil {
		return "", ErrNoInput
	}
	r.SetPrompt(prompt)
	line, err := r.Readline()
	return strings.TrimSpace(line), err
}

// ReadPassword читает секрет без эха. Под readline — его маскированный ввод,
// без него — term.ReadPassword напрямую из терминала.
func ReadPassword(prompt string) (string, error) {
	if r := Rl(); r != nil {
		secret, err := r.ReadPassword(prompt)
		return string(secret), err
	}
	if !Interactive() {
		return "", ErrNoInput
	}
	Print(prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	Println()
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// Stdout возвращает текущий writer стандартного вывода.
func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Stderr возвращает текущий writer ошибок.
func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

func Print(a ...any) {
	fmt.Fprint(Stdout(), a...)
}

func Println(a ...any) {
	fmt.Fprintln(Stdout(), a...)
}

func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

func ErrPrintln(a ...any) {
	fmt.Fprintln(Stderr(), a...)
}

func ErrPrintf(format string, a ...any) {
	fmt.Fprintf(Stderr(), format, a...)
}

// Pf возвращает pretty-строку значения (команда state в CLI).
func Pf(v any) string {
	return fmt.Sprintf("%# v\n", pretty.Formatter(v))
}
