package handler

import (
	"net/http"

	"github.com/pawhaven/pawhaven/application/port/inbound"
	domainerr "github.com/pawhaven/pawhaven/domain/error"
	"github.com/pawhaven/pawhaven/infrastructure/http/middleware"
	"github.com/pawhaven/pawhaven/infrastructure/http/response"
	"github.com/pawhaven/pawhaven/infrastructure/http/validator"
)

type AccountHandler struct {
	accountUseCase inbound.AccountUseCase
}

func NewAccountHandler(accountUseCase inbound.AccountUseCase) *AccountHandler {
	return &AccountHandler{accountUseCase: accountUseCase}
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserClaims(r.Context())
	if claims == nil {
		response.AppError(w, domainerr.ErrUnauthorized("not authenticated"))
		return
	}

	account, err := h.accountUseCase.Get(r.Context(), claims.UserID)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "success", account)
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserClaims(r.Context())
	if claims == nil {
		response.AppError(w, domainerr.ErrUnauthorized("not authenticated"))
		return
	}

	var req inbound.ChangePasswordRequest
	if err := validator.DecodeJSON(w, r, &req); err != nil {
		response.AppError(w, domainerr.ErrInvalidRequest(err.Error()))
		return
	}

	if err := h.accountUseCase.ChangePassword(r.Context(), claims.UserID, req); err != nil {
		response.AppError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Password updated", nil)
}

// AdminPing is a probe for role-gated routes.
func (h *AccountHandler) AdminPing(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserClaims(r.Context())
	response.Success(w, http.StatusOK, "pong", map[string]string{"role": claims.Role})
}

func Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "healthy", nil)
}
