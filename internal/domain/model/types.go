// Package model — доменные типы Telegram-канала единого инбокса.
// Здесь живут учётные данные приложения, снимок сессии, прогресс входа,
// нормализованные чаты и сообщения, а также шаги логина. Пакет не зависит
// от транспорта: gotd-типы сюда не протекают.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Credentials — пара api_id/api_hash, выданная my.telegram.org.
// Неизменяема в пределах одной сессии; передаётся только транспорту.
type Credentials struct {
	APIID   int
	APIHash string
}

// Validate проверяет, что обе части пары заполнены.
func (c Credentials) Validate() error {
	if c.APIID <= 0 {
		return NewError(KindInvalidCredentials, errInvalidAPIID)
	}
	if strings.TrimSpace(c.APIHash) == "" {
		return NewError(KindInvalidCredentials, errEmptyAPIHash)
	}
	return nil
}

// Key возвращает устойчивый ключ области видимости для пары учётных данных.
// Хеш необратим, поэтому ключ можно класть в имена ключей хранилища и логи.
func (c Credentials) Key() string {
	sum := sha256.Sum256([]byte(strconv.Itoa(c.APIID) + ":" + c.APIHash))
	return hex.EncodeToString(sum[:16])
}

// Session — состояние авторизации. Инвариант: Artifact непуст тогда и только
// тогда, когда IsLoggedIn. Artifact непрозрачен для ядра.
type Session struct {
	IsLoggedIn  bool   `json:"isLoggedIn"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Artifact    string `json:"sessionArtifact,omitempty"`
}

// Valid сообщает, соблюдён ли инвариант артефакта.
func (s Session) Valid() bool {
	return s.IsLoggedIn == (s.Artifact != "")
}

// AuthProgress существует только между отправкой кода и его подтверждением.
type AuthProgress struct {
	PhoneNumber   string
	PhoneCodeHash string
}

// LoginStep — шаг машины авторизации.
type LoginStep string

const (
	StepPhone     LoginStep = "phone"
	StepCode      LoginStep = "code"
	StepTwoFactor LoginStep = "2fa"
	StepComplete  LoginStep = "complete"
)

// ChatKind — нормализованный тип диалога.
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
	ChatChannel ChatKind = "channel"
)

// MessageSummary — неизменяемая выжимка сообщения для списка чатов.
type MessageSummary struct {
	ID                int       `json:"id"`
	Text              string    `json:"text"`
	Timestamp         time.Time `json:"timestampUtc"`
	SenderDisplayName string    `json:"senderDisplayName"`
	SenderID          string    `json:"senderId"`
}

// Chat — запись списка диалогов. Список пересобирается целиком при каждой
// выборке; RecentMessages упорядочены от новых к старым.
type Chat struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Kind           ChatKind         `json:"kind"`
	UnreadCount    int              `json:"unreadCount"`
	LastMessage    *MessageSummary  `json:"lastMessage,omitempty"`
	RecentMessages []MessageSummary `json:"recentMessages"`
}
