package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-inbox/internal/domain/auth"
	"telegram-inbox/internal/domain/inbox"
	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/infra/logger"
)

const maxBodyBytes = 64 << 10

type sessionView struct {
	IsLoggedIn  bool   `json:"isLoggedIn"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// stateView — снимок для клиента. Артефакт сессии наружу не отдаётся.
type stateView struct {
	LoginStep model.LoginStep `json:"loginStep"`
	Session   sessionView     `json:"session"`
	UserName  string          `json:"userName,omitempty"`
	Chats     []model.Chat    `json:"chats"`
	Loading   bool            `json:"loading"`
	Error     string          `json:"error,omitempty"`
}

func newStateView(snap inbox.Snapshot) stateView {
	chats := snap.Chats
	if chats == nil {
		chats = []model.Chat{}
	}
	return stateView{
		LoginStep: snap.LoginStep,
		Session:   sessionView{IsLoggedIn: snap.Session.IsLoggedIn, PhoneNumber: snap.Session.PhoneNumber},
		UserName:  snap.UserName,
		Chats:     chats,
		Loading:   snap.Loading,
		Error:     snap.Error,
	}
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type stepResponse struct {
	Step      model.LoginStep `json:"step"`
	Rejection *apiError       `json:"rejection,omitempty"`
	State     stateView       `json:"state"`
}

type chatsResponse struct {
	Chats   []model.Chat `json:"chats"`
	Loading bool         `json:"loading"`
}

// flexInt принимает число и в виде JSON-числа, и строкой ("12345").
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid integer %q", raw)
	}
	*f = flexInt(v)
	return nil
}

type credentialsRequest struct {
	APIID   flexInt `json:"apiId"`
	APIHash string  `json:"apiHash"`
}

// resolve подставляет значения из конфигурации, если запрос их не содержит.
func (c credentialsRequest) resolve(defaults model.Credentials) model.Credentials {
	if c.APIID == 0 && c.APIHash == "" {
		return defaults
	}
	return model.Credentials{APIID: int(c.APIID), APIHash: strings.TrimSpace(c.APIHash)}
}

type phoneRequest struct {
	credentialsRequest
	PhoneNumber string `json:"phoneNumber"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type restoreRequest struct {
	credentialsRequest
	Artifact string `json:"sessionArtifact"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Kind: "BadRequest", Message: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// statusFor сопоставляет класс ошибки HTTP-статусу.
func statusFor(err error) (int, apiError) {
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable, apiError{Kind: "Canceled", Message: "The operation was interrupted. Retry."}
	}
	kind := model.KindOf(err)
	if kind == "" {
		kind = model.KindOf(model.Classify(err))
	}
	body := apiError{Kind: string(kind), Message: kind.UserMessage()}
	switch {
	case kind == model.KindNotAuthenticated:
		return http.StatusUnauthorized, body
	case kind == model.KindInvalidState:
		return http.StatusConflict, body
	case kind == model.KindTimeout:
		return http.StatusGatewayTimeout, body
	case kind == model.KindNetworkFailure, kind == model.KindMalformedResponse:
		return http.StatusBadGateway, body
	case kind.Expected():
		return http.StatusBadRequest, body
	default:
		return http.StatusInternalServerError, body
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Warn("telegram request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}

// writeStep отвечает на шаг входа. Штатный отказ — 200 с полем rejection.
func (s *Server) writeStep(w http.ResponseWriter, r *http.Request, res auth.Result, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := stepResponse{Step: res.Step, State: newStateView(s.inbox.Snapshot())}
	if res.Rejection != nil {
		resp.Rejection = &apiError{Kind: string(res.Rejection.Kind), Message: res.Message()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStateView(s.inbox.Snapshot()))
}

func (s *Server) handlePhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.inbox.SubmitPhoneNumber(r.Context(), strings.TrimSpace(req.PhoneNumber), req.resolve(s.opts.Credentials))
	s.writeStep(w, r, res, err)
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.inbox.SubmitVerificationCode(r.Context(), req.Code)
	s.writeStep(w, r, res, err)
}

func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.inbox.SubmitTwoFactorPassword(r.Context(), req.Password)
	s.writeStep(w, r, res, err)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.inbox.RestoreSession(r.Context(), req.Artifact, req.resolve(s.opts.Credentials))
	s.writeStep(w, r, res, err)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.Logout(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(s.inbox.Snapshot()))
}

// handleChats отдаёт текущий список; пустой кеш у вошедшего пользователя
// заполняется выборкой.
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	snap := s.inbox.Snapshot()
	if snap.LoginStep != model.StepComplete {
		s.writeError(w, r, model.NewError(model.KindNotAuthenticated, nil))
		return
	}
	if len(snap.Chats) > 0 || snap.Loading {
		writeJSON(w, http.StatusOK, chatsResponse{Chats: newStateView(snap).Chats, Loading: snap.Loading})
		return
	}
	s.fetchChats(w, r)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.fetchChats(w, r)
}

func (s *Server) fetchChats(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.DialogsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	chats, err := s.inbox.ListChats(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	writeJSON(w, http.StatusOK, chatsResponse{Chats: chats})
}
