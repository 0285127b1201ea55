package middleware

import (
	"context"
	"net/http"
	"strings"

	"metricflow/internal/domain"
	"metricflow/internal/usecase"
	"metricflow/pkg/httputil"
)

type contextKey string

const userContextKey contextKey = "authenticated_user"

// UserFromContext はリクエストコンテキストから認証済みユーザーを取り出す。
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	return user, ok
}

// WithUser はテスト用にユーザーをコンテキストへ格納する。
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// Authenticator はBearerトークンを検証し、ユーザーをコンテキストへ格納する。
// 失効済みトークンは拒否する。
func Authenticator(authSvc *usecase.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed authorization header")
				return
			}

			claims, err := authSvc.VerifyToken(token, domain.TokenTypeAccess)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
				return
			}

			revoked, err := authSvc.IsAccessTokenRevoked(r.Context(), claims)
			if err != nil {
				httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				return
			}
			if revoked {
				httputil.Error(w, http.StatusUnauthorized, "TOKEN_REVOKED", "token has been revoked")
				return
			}

			user, err := authSvc.CurrentUser(r.Context(), claims)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "user not found")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// bearerToken はAuthorizationヘッダからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
