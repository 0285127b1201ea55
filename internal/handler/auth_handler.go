// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"metricflow/internal/domain"
	"metricflow/internal/middleware"
	"metricflow/internal/usecase"
	"metricflow/pkg/httputil"
)

// AuthHandler は認証関連のHTTPハンドラを提供する。
type AuthHandler struct {
	service *usecase.AuthService
}

// NewAuthHandler は新しいAuthHandlerを生成する。
func NewAuthHandler(service *usecase.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// RegisterRequest は組織登録のリクエスト形式。
type RegisterRequest struct {
	OrgName   string `json:"org_name"`
	Industry  string `json:"industry"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserName  string `json:"user_name"`
	RoleLabel string `json:"role_label"`
}

// LoginRequest はログインのリクエスト形式。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest はパスワード変更のリクエスト形式。
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// RefreshRequest はトークン更新のリクエスト形式。
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest はログアウトのリクエスト形式。
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse はトークン発行のレスポンス形式。
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         UserResponse `json:"user"`
}

// UserResponse はユーザーのレスポンス形式。
type UserResponse struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	RoleLabel string `json:"role_label,omitempty"`
	CreatedAt string `json:"created_at"`
}

func userResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		OrgID:     user.OrgID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		RoleLabel: user.RoleLabel,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

func tokenResponse(user *domain.User, pair *usecase.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    pair.ExpiresIn,
		User:         userResponse(user),
	}
}

// bearerToken はAuthorizationヘッダからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

// Register は組織と初期管理者を登録する。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.OrgName == "" || req.UserName == "" || !validEmail(req.Email) {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "org_name, user_name and a valid email are required")
		return
	}

	user, pair, err := h.service.Register(r.Context(), usecase.RegisterInput{
		OrgName:   req.OrgName,
		Industry:  req.Industry,
		Email:     req.Email,
		Password:  req.Password,
		UserName:  req.UserName,
		RoleLabel: req.RoleLabel,
	})
	if err != nil {
		if errors.Is(err, domain.ErrWeakPassword) {
			httputil.Error(w, http.StatusBadRequest, "WEAK_PASSWORD", "password must be at least 8 characters with uppercase, lowercase and digit")
			return
		}
		if errors.Is(err, domain.ErrEmailAlreadyExists) {
			httputil.Error(w, http.StatusBadRequest, "EMAIL_ALREADY_EXISTS", "email is already registered")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "REGISTER", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, tokenResponse(user, pair))
}

// Login はメールアドレスとパスワードで認証する。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if !validEmail(req.Email) {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "a valid email is required")
		return
	}

	user, pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			middleware.WriteAuditLog(r.Context(), "LOGIN", "", "", "FAILED")
			httputil.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "LOGIN", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, tokenResponse(user, pair))
}

// Refresh はリフレッシュトークンをローテーションし、新しいトークンを発行する。
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "refresh_token is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrUserNotFound) {
			httputil.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired refresh token")
			return
		}
		if errors.Is(err, domain.ErrTokenRevoked) {
			httputil.Error(w, http.StatusUnauthorized, "TOKEN_REVOKED", "refresh token has been revoked")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "bearer",
		"expires_in":    pair.ExpiresIn,
	})
}

// Logout はアクセストークンを失効させる。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	accessToken := bearerToken(r)
	if accessToken == "" {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed authorization header")
		return
	}

	var req LogoutRequest
	// ボディは任意。リフレッシュトークンが渡された場合のみ失効させる。
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.service.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			httputil.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword は現在のパスワードを確認して新しいパスワードに変更する。
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "current_password and new_password are required")
		return
	}

	if err := h.service.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_CREDENTIALS", "current password is incorrect")
			return
		}
		if errors.Is(err, domain.ErrWeakPassword) {
			httputil.Error(w, http.StatusBadRequest, "WEAK_PASSWORD", "password must be at least 8 characters with uppercase, lowercase and digit")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "CHANGE_PASSWORD", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Me は認証済みユーザー自身の情報を返す。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	httputil.JSON(w, http.StatusOK, userResponse(user))
}
