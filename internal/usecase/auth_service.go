package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"metricflow/config"
	"metricflow/internal/domain"
)

// UserRepository はユーザーのデータアクセスのインターフェース。
// メールアドレスは全組織を通じて一意であり、FindByEmailは組織をまたいで検索する。
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.User, error)
	UpdateRole(ctx context.Context, id string, role domain.Role, roleLabel string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// OrganizationRepository は組織のデータアクセスのインターフェース。
type OrganizationRepository interface {
	Create(ctx context.Context, org *domain.Organization) error
	FindByID(ctx context.Context, id string) (*domain.Organization, error)
}

// TokenRepository はトークン失効管理のインターフェース。
type TokenRepository interface {
	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	IsRefreshTokenValid(ctx context.Context, tokenHash string) (bool, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID string) error
	Blacklist(ctx context.Context, token *domain.BlacklistedToken) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// TokenClaims はアクセス/リフレッシュトークンに格納するクレーム。
type TokenClaims struct {
	OrgID     string `json:"org_id"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair はログイン/リフレッシュ時に返すトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// RegisterInput は組織と初期管理者の登録入力。
type RegisterInput struct {
	OrgName   string
	Industry  string
	Email     string
	Password  string
	UserName  string
	RoleLabel string
}

// AuthService は認証・認可のビジネスロジックを提供する。
type AuthService struct {
	userRepo  UserRepository
	orgRepo   OrganizationRepository
	tokenRepo TokenRepository
	cfg       *config.Config
}

// NewAuthService は新しいAuthServiceを生成する。
func NewAuthService(userRepo UserRepository, orgRepo OrganizationRepository, tokenRepo TokenRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		orgRepo:   orgRepo,
		tokenRepo: tokenRepo,
		cfg:       cfg,
	}
}

// validatePasswordStrength はパスワード強度を検証する。
// 8文字以上、大文字・小文字・数字を各1文字以上含むこと。
func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters", domain.ErrWeakPassword)
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fmt.Errorf("%w: must contain uppercase, lowercase and digit", domain.ErrWeakPassword)
	}
	return nil
}

// hashToken はリフレッシュトークンの保存用SHA-256ハッシュを計算する。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Register は組織と初期管理者ユーザーを作成し、トークンを発行する。
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, *TokenPair, error) {
	if err := validatePasswordStrength(input.Password); err != nil {
		return nil, nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, domain.ErrEmailAlreadyExists
	}

	org := &domain.Organization{
		Name:     input.OrgName,
		Industry: input.Industry,
	}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, nil, fmt.Errorf("failed to create organization: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		OrgID:        org.ID,
		Email:        input.Email,
		PasswordHash: string(hash),
		Name:         input.UserName,
		Role:         domain.RoleAdmin,
		RoleLabel:    input.RoleLabel,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	slog.InfoContext(ctx, "organization registered",
		"org_id", org.ID,
		"user_id", user.ID,
	)
	return user, pair, nil
}

// Login はメールアドレスとパスワードを検証し、トークンを発行する。
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, *TokenPair, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		// ユーザーの存在有無を応答時間から推測されないようダミー比較を行う
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMye"), []byte(password))
		return nil, nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, domain.ErrInvalidCredentials
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// 使用されたリフレッシュトークンは失効させる（ローテーション）。
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.VerifyToken(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	tokenHash := hashToken(refreshToken)
	valid, err := s.tokenRepo.IsRefreshTokenValid(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, domain.ErrTokenRevoked
	}

	user, err := s.userRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	if err := s.tokenRepo.RevokeRefreshToken(ctx, tokenHash); err != nil {
		return nil, err
	}

	return s.issueTokenPair(ctx, user)
}

// Logout はアクセストークンを失効リストに追加し、リフレッシュトークンを失効させる。
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.VerifyToken(accessToken, domain.TokenTypeAccess)
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(time.Duration(s.cfg.AccessTokenExpiry) * time.Minute)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.tokenRepo.Blacklist(ctx, &domain.BlacklistedToken{
		JTI:       claims.ID,
		TokenType: domain.TokenTypeAccess,
		UserID:    claims.Subject,
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	if refreshToken != "" {
		if err := s.tokenRepo.RevokeRefreshToken(ctx, hashToken(refreshToken)); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "user logged out", "user_id", claims.Subject)
	return nil
}

// ChangePassword は現在のパスワードを確認したうえで新しいパスワードに更新する。
// 既存セッションを再利用できないよう、ユーザーの全リフレッシュトークンを失効させる。
func (s *AuthService) ChangePassword(ctx context.Context, user *domain.User, currentPassword, newPassword string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return domain.ErrInvalidCredentials
	}
	if err := validatePasswordStrength(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	if err := s.tokenRepo.RevokeAllByUserID(ctx, user.ID); err != nil {
		return err
	}

	slog.InfoContext(ctx, "password changed", "user_id", user.ID)
	return nil
}

// VerifyToken はJWTの署名と種別を検証し、クレームを返す。
func (s *AuthService) VerifyToken(tokenString string, expected domain.TokenType) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrInvalidToken
	}
	if claims.TokenType != string(expected) {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// IsAccessTokenRevoked はアクセストークンのjtiが失効済みか確認する。
func (s *AuthService) IsAccessTokenRevoked(ctx context.Context, claims *TokenClaims) (bool, error) {
	return s.tokenRepo.IsBlacklisted(ctx, claims.ID)
}

// CurrentUser はクレームからユーザーを解決する。
func (s *AuthService) CurrentUser(ctx context.Context, claims *TokenClaims) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// issueTokenPair はアクセス/リフレッシュトークンを発行する。
func (s *AuthService) issueTokenPair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	now := time.Now().UTC()

	accessExpiry := now.Add(time.Duration(s.cfg.AccessTokenExpiry) * time.Minute)
	accessToken, err := s.signToken(user, domain.TokenTypeAccess, now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshExpiry := now.Add(time.Duration(s.cfg.RefreshTokenExpiry) * 24 * time.Hour)
	refreshToken, err := s.signToken(user, domain.TokenTypeRefresh, now, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	if err := s.tokenRepo.StoreRefreshToken(ctx, user.ID, hashToken(refreshToken), refreshExpiry); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.cfg.AccessTokenExpiry * 60,
	}, nil
}

// signToken は指定種別のJWTを署名する。
func (s *AuthService) signToken(user *domain.User, tokenType domain.TokenType, issuedAt, expiresAt time.Time) (string, error) {
	claims := &TokenClaims{
		OrgID:     user.OrgID,
		Role:      string(user.Role),
		TokenType: string(tokenType),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.SecretKey))
}
