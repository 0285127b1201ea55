package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"metricflow/internal/domain"
)

// tempPasswordLength は招待時に発行する仮パスワードの長さ。
const tempPasswordLength = 12

// UserInviteInput はユーザー招待の入力。
type UserInviteInput struct {
	Email     string
	Name      string
	Role      domain.Role
	RoleLabel string
}

// UserInviteResult は招待結果。仮パスワードはこの応答でのみ返す。
type UserInviteResult struct {
	User         *domain.User
	TempPassword string
}

// UserService はユーザー管理のビジネスロジックを提供する。
type UserService struct {
	userRepo UserRepository
}

// NewUserService は新しいUserServiceを生成する。
func NewUserService(userRepo UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// ListUsers は組織の全ユーザーを取得する。
func (s *UserService) ListUsers(ctx context.Context, orgID string) ([]*domain.User, error) {
	return s.userRepo.FindAllByOrgID(ctx, orgID)
}

// InviteUser は仮パスワード付きで組織にユーザーを追加する。管理者のみ。
func (s *UserService) InviteUser(ctx context.Context, orgID string, actor *domain.User, input UserInviteInput) (*UserInviteResult, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrAdminRequired
	}

	existing, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrEmailAlreadyExists
	}

	role := input.Role
	if role == "" {
		role = domain.RoleRoomAdmin
	}

	tempPassword, err := generateTempPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate temporary password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		OrgID:        orgID,
		Email:        input.Email,
		PasswordHash: string(hash),
		Name:         input.Name,
		Role:         role,
		RoleLabel:    input.RoleLabel,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user invited",
		"org_id", orgID,
		"user_id", user.ID,
		"invited_by", actor.ID,
	)
	return &UserInviteResult{User: user, TempPassword: tempPassword}, nil
}

// UpdateUserRole はユーザーの権限を変更する。管理者のみ。
func (s *UserService) UpdateUserRole(ctx context.Context, orgID string, actor *domain.User, userID string, role domain.Role, roleLabel string) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrAdminRequired
	}
	if role != domain.RoleAdmin && role != domain.RoleRoomAdmin {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	target, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target == nil || target.OrgID != orgID {
		return nil, domain.ErrUserNotFound
	}

	if err := s.userRepo.UpdateRole(ctx, userID, role, roleLabel); err != nil {
		return nil, err
	}
	target.Role = role
	target.RoleLabel = roleLabel
	return target, nil
}

// generateTempPassword は英大小文字と数字からなる仮パスワードを生成する。
// 強度要件を必ず満たすよう、各種別を最低1文字含める。
func generateTempPassword() (string, error) {
	const (
		upper  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
		lower  = "abcdefghijkmnpqrstuvwxyz"
		digits = "23456789"
		all    = upper + lower + digits
	)

	pick := func(charset string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return 0, err
		}
		return charset[n.Int64()], nil
	}

	buf := make([]byte, tempPasswordLength)
	charsets := []string{upper, lower, digits}
	for i := range buf {
		charset := all
		if i < len(charsets) {
			charset = charsets[i]
		}
		c, err := pick(charset)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}

	// 先頭の種別順が固定にならないようシャッフルする
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}
