package mtproto

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/infra/telegram/connection"
)

// rpcKinds — классы ошибок RPC Telegram, важные для входа и выборки.
var rpcKinds = map[string]model.ErrorKind{
	"PHONE_CODE_INVALID":      model.KindInvalidCode,
	"PHONE_CODE_EMPTY":        model.KindInvalidCode,
	"PHONE_CODE_EXPIRED":      model.KindCodeExpired,
	"PHONE_NUMBER_INVALID":    model.KindInvalidPhoneFormat,
	"PHONE_NUMBER_UNOCCUPIED": model.KindSignUpRequired,
	"API_ID_INVALID":          model.KindInvalidCredentials,
	"API_ID_PUBLISHED_FLOOD":  model.KindInvalidCredentials,
	"PASSWORD_HASH_INVALID":   model.KindInvalidPassword,
	"AUTH_KEY_UNREGISTERED":   model.KindNotAuthenticated,
	"AUTH_KEY_INVALID":        model.KindNotAuthenticated,
	"AUTH_KEY_DUPLICATED":     model.KindNotAuthenticated,
	"SESSION_REVOKED":         model.KindNotAuthenticated,
	"SESSION_EXPIRED":         model.KindNotAuthenticated,
	"USER_DEACTIVATED":        model.KindNotAuthenticated,
}

// classify переводит ошибку gotd в доменный класс по типу RPC-ошибки,
// без разбора текста.
func classify(err error) error {
	if err == nil || model.KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewError(model.KindTimeout, err)
	case errors.Is(err, auth.ErrPasswordInvalid):
		return model.NewError(model.KindInvalidPassword, err)
	}

	var signUp *auth.SignUpRequired
	if errors.As(err, &signUp) {
		return model.NewError(model.KindSignUpRequired, err)
	}
	if _, ok := tgerr.AsFloodWait(err); ok {
		return model.NewError(model.KindFloodWait, err)
	}
	if rpcErr, ok := tgerr.As(err); ok {
		if kind, known := rpcKinds[rpcErr.Type]; known {
			return model.NewError(kind, err)
		}
		return model.NewError(model.KindMalformedResponse, err)
	}
	if connection.IsNetworkError(err) {
		return model.NewError(model.KindNetworkFailure, err)
	}
	return model.NewError(model.KindMalformedResponse, err)
}
