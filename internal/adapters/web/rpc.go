package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"telegram-inbox/internal/domain/auth"
	"telegram-inbox/internal/domain/model"
)

// rpcRequest — формат {"method", "params"} одиночного вызова.
type rpcRequest struct {
	Method string    `json:"method"`
	Params rpcParams `json:"params"`
}

type rpcParams struct {
	APIID         flexInt `json:"api_id"`
	APIHash       string  `json:"api_hash"`
	PhoneNumber   string  `json:"phone_number"`
	PhoneCode     string  `json:"phone_code"`
	Password      string  `json:"password"`
	Limit         int     `json:"limit"`
	SessionString string  `json:"session_string"`
}

type rpcResponse struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type rpcUser struct {
	Name string `json:"name"`
}

type rpcSignIn struct {
	Success     bool     `json:"success,omitempty"`
	Requires2FA bool     `json:"requires2FA,omitempty"`
	User        *rpcUser `json:"user,omitempty"`
}

type rpcDialogs struct {
	Dialogs    []model.Chat `json:"dialogs"`
	TotalCount int          `json:"totalCount"`
}

var (
	errRPCCredentials = errors.New("API ID and API Hash are required")
	errRPCPhone       = errors.New("Phone number is required")
	errRPCCode        = errors.New("Verification code is required")
	errRPCPassword    = errors.New("Password is required")
)

// handleRPC — одиночный вызов sendCode/signIn/checkPassword/getDialogs.
// Любой отказ — 400 с {"success": false, "error": "..."}.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rpcResponse{Error: "invalid JSON body"})
		return
	}

	result, err := s.dispatchRPC(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, rpcResponse{Error: rpcMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, rpcResponse{Success: true, Result: result})
}

func (s *Server) dispatchRPC(ctx context.Context, req rpcRequest) (any, error) {
	p := req.Params
	creds := model.Credentials{APIID: int(p.APIID), APIHash: strings.TrimSpace(p.APIHash)}
	if creds.Validate() != nil {
		return nil, errRPCCredentials
	}

	switch req.Method {
	case "sendCode":
		if strings.TrimSpace(p.PhoneNumber) == "" {
			return nil, errRPCPhone
		}
		res, err := s.inbox.SubmitPhoneNumber(ctx, strings.TrimSpace(p.PhoneNumber), creds)
		if err = rejectionErr(res, err); err != nil {
			return nil, err
		}
		return map[string]any{"phoneNumber": strings.TrimSpace(p.PhoneNumber), "step": res.Step}, nil

	case "signIn":
		if p.PhoneCode == "" {
			return nil, errRPCCode
		}
		res, err := s.inbox.SubmitVerificationCode(ctx, p.PhoneCode)
		if err = rejectionErr(res, err); err != nil {
			return nil, err
		}
		return s.signInResult(res), nil

	case "checkPassword":
		if p.Password == "" {
			return nil, errRPCPassword
		}
		res, err := s.inbox.SubmitTwoFactorPassword(ctx, p.Password)
		if err = rejectionErr(res, err); err != nil {
			return nil, err
		}
		return s.signInResult(res), nil

	case "getDialogs":
		if p.SessionString != "" && s.inbox.Snapshot().LoginStep != model.StepComplete {
			res, err := s.inbox.RestoreSession(ctx, p.SessionString, creds)
			if err = rejectionErr(res, err); err != nil {
				return nil, err
			}
		}
		limit := p.Limit
		if limit <= 0 {
			limit = s.opts.DialogsLimit
		}
		chats, err := s.inbox.ListChats(ctx, limit)
		if err != nil {
			return nil, err
		}
		if chats == nil {
			chats = []model.Chat{}
		}
		return rpcDialogs{Dialogs: chats, TotalCount: len(chats)}, nil

	default:
		return nil, errors.Errorf("Unknown method: %s", req.Method)
	}
}

func (s *Server) signInResult(res auth.Result) rpcSignIn {
	if res.Step == model.StepTwoFactor {
		return rpcSignIn{Requires2FA: true}
	}
	return rpcSignIn{Success: true, User: &rpcUser{Name: s.inbox.Snapshot().UserName}}
}

// rejectionErr сводит штатный отказ к ошибке: в RPC оба пути — failure.
func rejectionErr(res auth.Result, err error) error {
	if err != nil {
		return err
	}
	if res.Rejection != nil {
		return res.Rejection
	}
	return nil
}

func rpcMessage(err error) string {
	if kind := model.KindOf(err); kind != "" {
		return kind.UserMessage()
	}
	if errors.Is(err, context.Canceled) {
		return "The operation was interrupted. Retry."
	}
	return err.Error()
}
