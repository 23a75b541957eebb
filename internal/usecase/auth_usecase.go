package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, email string, password string) error
	ValidateLogin(ctx context.Context, email string, password string) error
	ValidateRefresh(ctx context.Context, refreshToken string, userAgent string) error
	ValidateForceLogout(ctx context.Context, targetUserID int64) error
}

// パスワードのハッシュ化と照合
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain string, hashed string) bool
}

type BcryptPasswordHasher struct {
	cost int
}

// DI
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost: cost}
}

// bcryptでハッシュ化
func (h *BcryptPasswordHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptPasswordHasher) Verify(plain string, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

type UserDTO struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	IsActive     bool   `json:"is_active"`
}

type JwtAccessTokenDTO struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

type AuthRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginResponse struct {
	User  UserDTO           `json:"user"`
	Token JwtAccessTokenDTO `json:"token"`
}

type ForceLogoutResponse struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

// handlerがCookieに詰める値も一緒に返す
type LoginResult struct {
	Body              AuthLoginResponse
	RefreshTokenPlain string
	CsrfTokenPlain    string
}

type RefreshResult struct {
	Body              JwtAccessTokenDTO
	RefreshTokenPlain string
	CsrfTokenPlain    string
}

type AuthUsecase struct {
	users      repository.UserRepository
	rtRepo     repository.RefreshTokenRepository
	audits     repository.AuditLogRepository
	validator  AuthValidator
	hasher     PasswordHasher
	tokens     *TokenService
	refreshTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewAuthUsecase(
	users repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
	audits repository.AuditLogRepository,
	validator AuthValidator,
	hasher PasswordHasher,
	tokens *TokenService,
	refreshTTL time.Duration,
	log *zap.Logger,
) *AuthUsecase {
	return &AuthUsecase{
		users:      users,
		rtRepo:     rtRepo,
		audits:     audits,
		validator:  validator,
		hasher:     hasher,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		log:        log,
		now:        time.Now,
	}
}

func errUnauthenticated() error {
	return NewHTTPError(http.StatusUnauthorized, "unauthorized")
}

func (u *AuthUsecase) Register(ctx context.Context, req AuthRegisterRequest) (UserDTO, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, req.Email, req.Password); err != nil {
		return UserDTO{}, err
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := u.hasher.Hash(req.Password)
	if err != nil {
		return UserDTO{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := &model.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: pwHash,
		Role:         model.RoleUser,
		TokenVersion: 0,
		IsActive:     true,
	}

	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return UserDTO{}, NewHTTPError(http.StatusConflict, "email already used")
		}
		return UserDTO{}, storeError(err)
	}

	return toUserDTO(user), nil
}

func (u *AuthUsecase) Login(ctx context.Context, req AuthLoginRequest, userAgent string) (*LoginResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		return nil, err
	}

	user, err := u.users.FindByEmail(ctx, req.Email)
	if err != nil || user == nil {
		return nil, errUnauthenticated()
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return nil, NewHTTPError(http.StatusForbidden, "user disabled")
	}

	if !u.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, errUnauthenticated()
	}

	//last_login更新（失敗してもログインは通す）
	now := u.now()
	user.LastLoginAt = &now
	if err := u.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		u.log.Warn("update last_login failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	access, err := u.tokens.Issue(user)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	refreshPlain, rt, err := u.newRefreshToken(user.ID, "", userAgent)
	if err != nil {
		return nil, err
	}
	if err := u.rtRepo.Create(ctx, rt); err != nil {
		return nil, storeError(err)
	}

	csrfPlain, _, err := newRandomTokenAndHash()
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return &LoginResult{
		Body: AuthLoginResponse{
			User:  toUserDTO(user),
			Token: u.accessDTO(access, user),
		},
		RefreshTokenPlain: refreshPlain,
		CsrfTokenPlain:    csrfPlain,
	}, nil
}

func (u *AuthUsecase) Me(ctx context.Context, id model.Identity) (UserDTO, error) {
	if id.UserID <= 0 {
		return UserDTO{}, errUnauthenticated()
	}

	user, err := u.users.FindByID(ctx, id.UserID)
	if err != nil || user == nil {
		return UserDTO{}, errUnauthenticated()
	}
	if !user.IsActive {
		return UserDTO{}, NewHTTPError(http.StatusForbidden, "user disabled")
	}
	return toUserDTO(user), nil
}

// Refresh はリフレッシュトークンを1回だけ使えるものとして回転させる。
// 使用済みトークンが来たら盗用とみなしてfamilyごと失効させる。
func (u *AuthUsecase) Refresh(ctx context.Context, refreshTokenPlain string, userAgent string) (*RefreshResult, error) {
	if err := u.validator.ValidateRefresh(ctx, refreshTokenPlain, userAgent); err != nil {
		return nil, err
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshTokenPlain))
	if err != nil || rt == nil {
		return nil, errUnauthenticated()
	}

	now := u.now()
	if rt.RevokedAt != nil || !now.Before(rt.ExpiresAt) {
		return nil, errUnauthenticated()
	}

	//used済みが来たら replay
	if rt.UsedAt != nil {
		return nil, u.revokeOnReuse(ctx, rt, "replay")
	}
	//user_agent違いは再認証
	if userAgent != "" && rt.UserAgent != "" && userAgent != rt.UserAgent {
		return nil, u.revokeOnReuse(ctx, rt, "user_agent_mismatch")
	}

	user, err := u.users.FindByID(ctx, rt.UserID)
	if err != nil || user == nil {
		return nil, errUnauthenticated()
	}
	if !user.IsActive {
		return nil, NewHTTPError(http.StatusForbidden, "user disabled")
	}

	newPlain, next, err := u.newRefreshToken(user.ID, rt.FamilyID, userAgent)
	if err != nil {
		return nil, err
	}
	//同時に2回来たら片方はErrConflict
	if err := u.rtRepo.Rotate(ctx, rt.ID, next, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, u.revokeOnReuse(ctx, rt, "concurrent_refresh")
		}
		return nil, storeError(err)
	}

	access, err := u.tokens.Issue(user)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	csrfPlain, _, err := newRandomTokenAndHash()
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return &RefreshResult{
		Body:              u.accessDTO(access, user),
		RefreshTokenPlain: newPlain,
		CsrfTokenPlain:    csrfPlain,
	}, nil
}

func (u *AuthUsecase) revokeOnReuse(ctx context.Context, rt *model.RefreshToken, reason string) error {
	u.log.Warn("refresh token reuse detected",
		zap.Int64("user_id", rt.UserID),
		zap.String("family_id", rt.FamilyID),
		zap.String("reason", reason),
	)
	if err := u.rtRepo.RevokeFamily(ctx, rt.FamilyID, u.now()); err != nil {
		u.log.Error("revoke refresh family failed", zap.String("family_id", rt.FamilyID), zap.Error(err))
	}
	return NewHTTPError(http.StatusUnauthorized, "refresh token reuse detected")
}

// Logout はそのログイン（family）だけを失効させる。他端末はそのまま
func (u *AuthUsecase) Logout(ctx context.Context, refreshTokenPlain string) error {
	if refreshTokenPlain == "" {
		return errUnauthenticated()
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshTokenPlain))
	if err != nil || rt == nil {
		return errUnauthenticated()
	}
	return storeError(u.rtRepo.RevokeFamily(ctx, rt.FamilyID, u.now()))
}

// ForceLogout はtoken_versionを上げて発行済みアクセストークンを無効にする
func (u *AuthUsecase) ForceLogout(ctx context.Context, actor model.Identity, targetUserID int64) (ForceLogoutResponse, error) {
	if err := u.validator.ValidateForceLogout(ctx, targetUserID); err != nil {
		return ForceLogoutResponse{}, err
	}

	newVersion, err := u.users.BumpTokenVersion(ctx, targetUserID)
	if err != nil {
		return ForceLogoutResponse{}, storeError(err)
	}
	if err := u.rtRepo.RevokeAllForUser(ctx, targetUserID, u.now()); err != nil {
		return ForceLogoutResponse{}, storeError(err)
	}

	if err := u.audits.Create(ctx, model.AuditLog{
		ActorUserID:  actor.UserID,
		Action:       model.AuditActionForceLogout,
		ResourceType: model.AuditResourceUser,
		ResourceID:   strconv.FormatInt(targetUserID, 10),
		BeforeJSON:   `{"token_version":` + strconv.Itoa(newVersion-1) + `}`,
		AfterJSON:    `{"token_version":` + strconv.Itoa(newVersion) + `}`,
		CreatedAt:    u.now(),
	}); err != nil {
		u.log.Error("audit log for force logout failed", zap.Int64("target_user_id", targetUserID), zap.Error(err))
	}

	return ForceLogoutResponse{UserID: targetUserID, NewTokenVersion: newVersion}, nil
}

// familyIDが空なら新しいログイン
func (u *AuthUsecase) newRefreshToken(userID int64, familyID, userAgent string) (string, *model.RefreshToken, error) {
	plain, hash, err := newRandomTokenAndHash()
	if err != nil {
		return "", nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	id := uuid.NewString()
	if familyID == "" {
		familyID = id
	}
	return plain, &model.RefreshToken{
		ID:        id,
		FamilyID:  familyID,
		UserID:    userID,
		TokenHash: hash,
		UserAgent: userAgent,
		ExpiresAt: u.now().Add(u.refreshTTL),
	}, nil
}

func (u *AuthUsecase) accessDTO(access string, user *model.User) JwtAccessTokenDTO {
	return JwtAccessTokenDTO{
		AccessToken:  access,
		ExpiresIn:    int(u.tokens.TTL().Seconds()),
		TokenVersion: user.TokenVersion,
	}
}

// model.UserをAPI返却用DTOに変換。
func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Phone:        u.Phone,
		Role:         string(u.Role),
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
	}
}

// refresh token生成（平文 + DB保存hash）
func newRandomTokenAndHash() (plain string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, hashToken(plain), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
