package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nexauth/server/internal/auth"
	"github.com/nexauth/server/internal/identifier"
	"github.com/nexauth/server/internal/middleware"
	"github.com/nexauth/server/internal/model"
	"github.com/nexauth/server/internal/notify"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	resolver *auth.Resolver

	// IP rate limiters; identifier-level protection belongs to the
	// failed-attempt counter once a lockout policy exists.
	requestLimiter *middleware.RateLimiter
	verifyLimiter  *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(resolver *auth.Resolver) *AuthHandler {
	return &AuthHandler{
		resolver:       resolver,
		requestLimiter: middleware.NewRateLimiter(10*time.Minute, 10),
		verifyLimiter:  middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type phoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type combineRequest struct {
	Info string `json:"info"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type codeSentResponse struct {
	Message string `json:"message"`
	Channel string `json:"channel"`
}

type accountResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type sessionResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	Registered  bool            `json:"registered"`
	Account     accountResponse `json:"account"`
}

func toAccountResponse(acct model.Account) accountResponse {
	resp := accountResponse{
		ID:       acct.ID.String(),
		Username: acct.Username,
	}
	if acct.Email != nil {
		resp.Email = *acct.Email
	}
	if acct.PhoneNumber != nil {
		resp.PhoneNumber = *acct.PhoneNumber
	}
	return resp
}

// HandleLoginUsername handles POST /auth/login/username
func (h *AuthHandler) HandleLoginUsername(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.resolver.LoginUsername(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		respondWithFlowError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sessionResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		Registered:  session.Registered,
		Account:     toAccountResponse(session.Account),
	})
}

// HandleRegisterUsername handles POST /auth/register/username
func (h *AuthHandler) HandleRegisterUsername(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, err := h.resolver.RegisterUsername(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		respondWithFlowError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toAccountResponse(acct))
}

func (h *AuthHandler) handleContactCode(w http.ResponseWriter, r *http.Request, kind auth.FlowKind, raw string, channel identifier.Kind) {
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "identifier is required")
		return
	}
	if !h.requestLimiter.Allow(middleware.ClientIP(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var err error
	switch channel {
	case identifier.KindPhone:
		err = h.resolver.RequestPhoneCode(r.Context(), kind, raw)
	case identifier.KindEmail:
		err = h.resolver.RequestEmailCode(r.Context(), kind, raw)
	default:
		channel, err = h.resolver.RequestCode(r.Context(), kind, raw)
	}
	if err != nil {
		logMasked(raw, "code request failed: %v", err)
		respondWithFlowError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, codeSentResponse{Message: "code_sent", Channel: channel.String()})
}

// HandleLoginPhone handles POST /auth/login/phone
func (h *AuthHandler) HandleLoginPhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.handleContactCode(w, r, auth.FlowLogin, strings.TrimSpace(req.PhoneNumber), identifier.KindPhone)
}

// HandleRegisterPhone handles POST /auth/register/phone
func (h *AuthHandler) HandleRegisterPhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.handleContactCode(w, r, auth.FlowRegister, strings.TrimSpace(req.PhoneNumber), identifier.KindPhone)
}

// HandleLoginEmail handles POST /auth/login/email
func (h *AuthHandler) HandleLoginEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.handleContactCode(w, r, auth.FlowLogin, strings.TrimSpace(req.Email), identifier.KindEmail)
}

// HandleRegisterEmail handles POST /auth/register/email
func (h *AuthHandler) HandleRegisterEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.handleContactCode(w, r, auth.FlowRegister, strings.TrimSpace(req.Email), identifier.KindEmail)
}

// HandleLoginCombine handles POST /auth/login with an ambiguous identifier
func (h *AuthHandler) HandleLoginCombine(w http.ResponseWriter, r *http.Request) {
	var req combineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.handleContactCode(w, r, auth.FlowLogin, strings.TrimSpace(req.Info), 0)
}

// HandleRegisterCombine handles POST /auth/register with an ambiguous identifier
func (h *AuthHandler) HandleRegisterCombine(w http.ResponseWriter, r *http.Request) {
	var req combineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.handleContactCode(w, r, auth.FlowRegister, strings.TrimSpace(req.Info), 0)
}

// HandleVerify handles POST /auth/verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "code is required")
		return
	}
	if !h.verifyLimiter.Allow(middleware.ClientIP(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	session, err := h.resolver.VerifyCode(r.Context(), req.Code)
	if err != nil {
		respondWithFlowError(w, err)
		return
	}
	status := http.StatusOK
	if session.Registered {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, sessionResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		Registered:  session.Registered,
		Account:     toAccountResponse(session.Account),
	})
}

// HandleMe handles GET /me (protected). Returns the authenticated account.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.GetAccount(r.Context())
	if !ok || acct == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, toAccountResponse(*acct))
}

// HandleChangePassword handles PUT /me/password (protected). The current
// password is required alongside the new one.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.GetAccount(r.Context())
	if !ok || acct == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.resolver.ChangePassword(r.Context(), *acct, req.CurrentPassword, req.NewPassword); err != nil {
		respondWithFlowError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "password_changed"})
}

// respondWithFlowError maps the failure taxonomy onto HTTP statuses. Any
// unrecognized error is a storage-layer failure: logged, surfaced as a
// generic 500 without leaking internals.
func respondWithFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidFormat):
		respondWithError(w, http.StatusUnprocessableEntity, "invalid identifier or code format")
	case errors.Is(err, auth.ErrMissingField):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrDuplicateField):
		respondWithError(w, http.StatusConflict, "identifier already registered")
	case errors.Is(err, auth.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "no account with this identifier")
	case errors.Is(err, auth.ErrCodeNotFound), errors.Is(err, auth.ErrCodeExpired):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired code")
	case errors.Is(err, auth.ErrAuthenticationFailed):
		respondWithError(w, http.StatusUnauthorized, "invalid username or password")
	default:
		log.Printf("auth handler: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// logMasked logs with the identifier masked (e.g. 09*******89). The masked
// value is passed as an argument so it can never be read as a format verb.
func logMasked(contact, format string, args ...any) {
	log.Printf("identifier %s: "+format, append([]any{notify.MaskContact(contact)}, args...)...)
}
