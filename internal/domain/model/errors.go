package model

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrorKind — класс ошибки, по которому принимается решение о переходе
// машины состояний и о сообщении пользователю.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "InvalidCredentials"
	KindInvalidPhoneFormat ErrorKind = "InvalidPhoneFormat"
	KindInvalidCode        ErrorKind = "InvalidCode"
	KindCodeExpired        ErrorKind = "CodeExpired"
	KindPasswordRequired   ErrorKind = "PasswordRequired"
	KindInvalidPassword    ErrorKind = "InvalidPassword"
	KindSignUpRequired     ErrorKind = "SignUpRequired"
	KindFloodWait          ErrorKind = "FloodWait"
	KindNotAuthenticated   ErrorKind = "NotAuthenticated"
	KindInvalidState       ErrorKind = "InvalidState"
	KindNetworkFailure     ErrorKind = "NetworkFailure"
	KindTimeout            ErrorKind = "Timeout"
	KindMalformedResponse  ErrorKind = "MalformedResponse"
)

var (
	errInvalidAPIID = errors.New("api id must be a positive integer")
	errEmptyAPIHash = errors.New("api hash is empty")
)

// userMessages — одно действенное сообщение на каждый класс.
var userMessages = map[ErrorKind]string{
	KindInvalidCredentials: "API ID or API hash is invalid. Check the values from my.telegram.org.",
	KindInvalidPhoneFormat: "Phone number is invalid. Use the international format, e.g. +15551234567.",
	KindInvalidCode:        "The verification code is wrong. Check the code and try again.",
	KindCodeExpired:        "The verification code has expired. Request a new code and retry from the Phone step.",
	KindPasswordRequired:   "This account has two-step verification. Enter your 2FA password.",
	KindInvalidPassword:    "The 2FA password is wrong. Try again.",
	KindSignUpRequired:     "This phone number has no Telegram account. Register it in an official app first.",
	KindFloodWait:          "Telegram asked to slow down. Wait a moment and retry.",
	KindNotAuthenticated:   "Not logged in to Telegram. Log in first.",
	KindInvalidState:       "This step is not available right now. Restart the login from the Phone step.",
	KindNetworkFailure:     "Telegram is unreachable. Check the connection and retry.",
	KindTimeout:            "Telegram did not answer in time. Retry.",
	KindMalformedResponse:  "Telegram returned an unexpected response. Retry later.",
}

// UserMessage возвращает текст для пользователя.
func (k ErrorKind) UserMessage() string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return "Unexpected Telegram error."
}

// Expected сообщает, что класс — штатный исход шага (неверный код и т.п.),
// который возвращается в результате операции, а не ошибкой.
func (k ErrorKind) Expected() bool {
	switch k {
	case KindInvalidCredentials, KindInvalidPhoneFormat, KindInvalidCode, KindCodeExpired,
		KindInvalidPassword, KindSignUpRequired, KindFloodWait:
		return true
	default:
		return false
	}
}

// Error — классифицированная ошибка. Err хранит первопричину (может быть nil).
type Error struct {
	Kind ErrorKind
	Err  error
}

// NewError создаёт классифицированную ошибку.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is позволяет сравнивать по классу: errors.Is(err, model.NewError(KindTimeout, nil)).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

// KindOf возвращает класс ошибки или "" для неклассифицированных.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Classify приводит произвольную ошибку к *Error. Дедлайн — Timeout, всё
// неопознанное считается сбоем транспорта. context.Canceled не классифицируется:
// это решение вызывающего, а не Telegram.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, err)
	default:
		return NewError(KindNetworkFailure, err)
	}
}
