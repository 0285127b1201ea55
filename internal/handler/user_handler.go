package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"metricflow/internal/domain"
	"metricflow/internal/middleware"
	"metricflow/internal/usecase"
	"metricflow/pkg/httputil"
)

// UserHandler はユーザー管理のHTTPハンドラを提供する。
type UserHandler struct {
	service *usecase.UserService
}

// NewUserHandler は新しいUserHandlerを生成する。
func NewUserHandler(service *usecase.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// UserInviteRequest はユーザー招待のリクエスト形式。
type UserInviteRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	RoleLabel string `json:"role_label"`
}

// UserRoleUpdateRequest は権限変更のリクエスト形式。
type UserRoleUpdateRequest struct {
	Role      string `json:"role"`
	RoleLabel string `json:"role_label"`
}

// ListUsers は組織の全ユーザーを取得する。
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	users, err := h.service.ListUsers(r.Context(), user.OrgID)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := make([]UserResponse, len(users))
	for i, u := range users {
		response[i] = userResponse(u)
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"users": response})
}

// InviteUser は仮パスワード付きでユーザーを追加する。
func (h *UserHandler) InviteUser(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req UserInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" || !validEmail(req.Email) {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name and a valid email are required")
		return
	}

	result, err := h.service.InviteUser(r.Context(), user.OrgID, user, usecase.UserInviteInput{
		Email:     req.Email,
		Name:      req.Name,
		Role:      domain.Role(req.Role),
		RoleLabel: req.RoleLabel,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAdminRequired) {
			httputil.Error(w, http.StatusForbidden, "ADMIN_REQUIRED", "admin access required")
			return
		}
		if errors.Is(err, domain.ErrEmailAlreadyExists) {
			httputil.Error(w, http.StatusBadRequest, "EMAIL_ALREADY_EXISTS", "email is already registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "INVITE_USER", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, map[string]interface{}{
		"user":          userResponse(result.User),
		"temp_password": result.TempPassword,
	})
}

// UpdateUserRole はユーザーの権限を変更する。
func (h *UserHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	userID := chi.URLParam(r, "user_id")

	var req UserRoleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Role == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "role is required")
		return
	}

	updated, err := h.service.UpdateUserRole(r.Context(), user.OrgID, user, userID, domain.Role(req.Role), req.RoleLabel)
	if err != nil {
		if errors.Is(err, domain.ErrAdminRequired) {
			httputil.Error(w, http.StatusForbidden, "ADMIN_REQUIRED", "admin access required")
			return
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			httputil.Error(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
			return
		}
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_USER_ROLE", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, userResponse(updated))
}
