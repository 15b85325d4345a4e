package handler

import (
	"net/http"

	"github.com/pawhaven/pawhaven/application/port/inbound"
	domainerr "github.com/pawhaven/pawhaven/domain/error"
	"github.com/pawhaven/pawhaven/infrastructure/http/middleware"
	"github.com/pawhaven/pawhaven/infrastructure/http/response"
	"github.com/pawhaven/pawhaven/infrastructure/http/validator"
	"github.com/pawhaven/pawhaven/infrastructure/service/csrf"
	"github.com/pawhaven/pawhaven/infrastructure/service/metrics"
)

type AuthHandler struct {
	authUseCase inbound.AuthUseCase
	csrf        *csrf.Service
	cookies     CookieConfig
	metrics     *metrics.Metrics
}

func NewAuthHandler(authUseCase inbound.AuthUseCase, csrfService *csrf.Service, cookies CookieConfig, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		authUseCase: authUseCase,
		csrf:        csrfService,
		cookies:     cookies,
		metrics:     m,
	}
}

type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// Login answers with the access token and user projection. The refresh token
// only travels in its HttpOnly cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req inbound.LoginRequest
	if err := validator.DecodeJSON(w, r, &req); err != nil {
		h.metrics.Login(metrics.ResultFailure)
		response.AppError(w, domainerr.ErrInvalidRequest(err.Error()))
		return
	}

	loginRes, err := h.authUseCase.Login(r.Context(), req)
	if err != nil {
		h.metrics.Login(metrics.ResultFailure)
		response.AppError(w, err)
		return
	}

	csrfToken, err := h.csrf.Generate()
	if err != nil {
		h.metrics.Login(metrics.ResultFailure)
		response.AppError(w, domainerr.ErrInternalServerError("csrf token generation failed", err))
		return
	}

	h.cookies.setRefresh(w, loginRes.RefreshToken)
	h.cookies.setCSRF(w, csrfToken)
	h.metrics.Login(metrics.ResultSuccess)

	response.Success(w, http.StatusOK, "success", loginRes)
}

// Refresh never rewrites the refresh cookie on success. On failure the cookie
// is expired so the browser stops presenting a dead session.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, h.cookies.RefreshName)

	refreshRes, err := h.authUseCase.Refresh(r.Context(), inbound.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		h.metrics.Refresh(metrics.ResultFailure)
		if domainerr.HTTPStatus(err) == http.StatusUnauthorized {
			h.cookies.clearRefresh(w)
		}
		response.AppError(w, err)
		return
	}

	// a session that outlived its CSRF cookie gets a fresh one
	if !h.csrf.Verify(cookieValue(r, h.cookies.CSRFName)) {
		if token, err := h.csrf.Generate(); err == nil {
			h.cookies.setCSRF(w, token)
		}
	}

	h.metrics.Refresh(metrics.ResultSuccess)
	response.Success(w, http.StatusOK, "success", refreshRes)
}

// Logout always succeeds from the client's point of view.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, h.cookies.RefreshName)

	// failures are logged by the use case; the cookies go regardless
	_ = h.authUseCase.Logout(r.Context(), inbound.LogoutRequest{RefreshToken: refreshToken})

	h.cookies.clearRefresh(w)
	h.cookies.clearCSRF(w)
	h.metrics.Logout()

	response.Success(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.BearerToken(r)

	me, err := h.authUseCase.WhoAmI(r.Context(), token)
	if err != nil {
		response.AppError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "success", me)
}

// CSRF mints a new anti-forgery token, for clients whose cookie went missing.
func (h *AuthHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Generate()
	if err != nil {
		response.AppError(w, domainerr.ErrInternalServerError("csrf token generation failed", err))
		return
	}
	h.cookies.setCSRF(w, token)
	response.Success(w, http.StatusOK, "success", CSRFResponse{CSRFToken: token})
}
