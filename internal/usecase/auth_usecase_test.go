package usecase_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type passAuthValidator struct{}

func (passAuthValidator) ValidateRegister(ctx context.Context, email, password string) error {
	return nil
}
func (passAuthValidator) ValidateLogin(ctx context.Context, email, password string) error {
	return nil
}
func (passAuthValidator) ValidateRefresh(ctx context.Context, token, ua string) error { return nil }
func (passAuthValidator) ValidateForceLogout(ctx context.Context, id int64) error     { return nil }

type authDeps struct {
	users  *UserRepoMock
	tokens *RefreshTokenRepoMock
	audits *AuditRepoMock
	hasher *usecase.BcryptPasswordHasher
	jwt    *usecase.TokenService
}

func newAuthDeps() *authDeps {
	return &authDeps{
		users:  new(UserRepoMock),
		tokens: new(RefreshTokenRepoMock),
		audits: new(AuditRepoMock),
		hasher: usecase.NewBcryptPasswordHasher(bcrypt.MinCost),
		jwt:    usecase.NewTokenService("test-secret", 15*time.Minute),
	}
}

func (d *authDeps) usecase() *usecase.AuthUsecase {
	return usecase.NewAuthUsecase(d.users, d.tokens, d.audits, passAuthValidator{}, d.hasher, d.jwt, 24*time.Hour, zap.NewNop())
}

func sha(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// =====================
// Register / Login
// =====================

func TestAuthUsecase_Register_HashesPassword(t *testing.T) {
	d := newAuthDeps()

	d.users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.Email == "a@example.com" &&
			u.PasswordHash != "Passw0rd!" &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("Passw0rd!")) == nil &&
			u.Role == model.RoleUser && u.IsActive
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.User).ID = 5
	}).Return(nil)

	out, err := d.usecase().Register(context.Background(), usecase.AuthRegisterRequest{Email: " A@Example.com ", Password: "Passw0rd!"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.ID)
	assert.Equal(t, "USER", out.Role)
}

func TestAuthUsecase_Register_DuplicateEmail(t *testing.T) {
	d := newAuthDeps()
	d.users.On("Create", mock.Anything, mock.Anything).Return(repo.ErrConflict)

	_, err := d.usecase().Register(context.Background(), usecase.AuthRegisterRequest{Email: "a@example.com", Password: "Passw0rd!"})
	assertKind(t, err, usecase.KindConflict)
	assertErrContains(t, err, "email already used")
}

func TestAuthUsecase_Login(t *testing.T) {
	d := newAuthDeps()
	hash, err := d.hasher.Hash("Passw0rd!")
	require.NoError(t, err)
	user := &model.User{ID: 5, Email: "a@example.com", PasswordHash: hash, Role: model.RoleAdmin, TokenVersion: 3, IsActive: true}

	d.users.On("FindByEmail", mock.Anything, "a@example.com").Return(user, nil)
	// last_loginの失敗ではログインを止めない
	d.users.On("TouchLastLogin", mock.Anything, int64(5), mock.AnythingOfType("time.Time")).Return(errors.New("write failed"))
	d.tokens.On("Create", mock.Anything, mock.MatchedBy(func(rt *model.RefreshToken) bool {
		return rt.UserID == 5 && rt.UserAgent == "ua-1" && rt.TokenHash != "" && rt.FamilyID == rt.ID
	})).Return(nil)

	res, err := d.usecase().Login(context.Background(), usecase.AuthLoginRequest{Email: "A@example.com", Password: "Passw0rd!"}, "ua-1")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RefreshTokenPlain)
	assert.NotEmpty(t, res.CsrfTokenPlain)
	assert.Equal(t, 900, res.Body.Token.ExpiresIn)
	assert.Equal(t, 3, res.Body.Token.TokenVersion)

	id, tv, err := d.jwt.Parse(res.Body.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id.UserID)
	assert.True(t, id.IsAdmin())
	assert.Equal(t, 3, tv)
}

func TestAuthUsecase_Login_WrongPassword(t *testing.T) {
	d := newAuthDeps()
	hash, _ := d.hasher.Hash("Passw0rd!")
	d.users.On("FindByEmail", mock.Anything, "a@example.com").Return(&model.User{ID: 5, PasswordHash: hash, IsActive: true}, nil)

	_, err := d.usecase().Login(context.Background(), usecase.AuthLoginRequest{Email: "a@example.com", Password: "nope"}, "ua")
	assertKind(t, err, usecase.KindUnauthenticated)
	d.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthUsecase_Login_DisabledUser(t *testing.T) {
	d := newAuthDeps()
	d.users.On("FindByEmail", mock.Anything, "a@example.com").Return(&model.User{ID: 5, IsActive: false}, nil)

	_, err := d.usecase().Login(context.Background(), usecase.AuthLoginRequest{Email: "a@example.com", Password: "x"}, "ua")
	assertKind(t, err, usecase.KindUnauthorized)
}

// =====================
// Refresh
// =====================

func TestAuthUsecase_Refresh_Rotates(t *testing.T) {
	d := newAuthDeps()
	rt := &model.RefreshToken{ID: "rt-1", FamilyID: "fam-1", UserID: 5, UserAgent: "ua", ExpiresAt: time.Now().Add(time.Hour)}

	d.tokens.On("FindByTokenHash", mock.Anything, sha("old")).Return(rt, nil)
	d.users.On("FindByID", mock.Anything, int64(5)).Return(&model.User{ID: 5, Role: model.RoleUser, IsActive: true}, nil)
	d.tokens.On("Rotate", mock.Anything, "rt-1", mock.MatchedBy(func(next *model.RefreshToken) bool {
		// 同じfamilyで次の1本
		return next.FamilyID == "fam-1" && next.ID != "rt-1" && next.TokenHash != sha("old")
	}), mock.AnythingOfType("time.Time")).Return(nil)

	res, err := d.usecase().Refresh(context.Background(), "old", "ua")
	require.NoError(t, err)
	assert.NotEqual(t, "old", res.RefreshTokenPlain)
	assert.NotEmpty(t, res.Body.AccessToken)
	d.tokens.AssertNotCalled(t, "RevokeFamily", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthUsecase_Refresh_ReplayRevokesFamily(t *testing.T) {
	d := newAuthDeps()
	used := time.Now().Add(-time.Minute)
	rt := &model.RefreshToken{ID: "rt-1", FamilyID: "fam-1", UserID: 5, ExpiresAt: time.Now().Add(time.Hour), UsedAt: &used}

	d.tokens.On("FindByTokenHash", mock.Anything, sha("old")).Return(rt, nil)
	d.tokens.On("RevokeFamily", mock.Anything, "fam-1", mock.AnythingOfType("time.Time")).Return(nil)

	_, err := d.usecase().Refresh(context.Background(), "old", "ua")
	assertErrContains(t, err, "reuse detected")
	d.tokens.AssertExpectations(t)
	d.tokens.AssertNotCalled(t, "Rotate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthUsecase_Refresh_ConcurrentRotateLoses(t *testing.T) {
	d := newAuthDeps()
	rt := &model.RefreshToken{ID: "rt-1", FamilyID: "fam-1", UserID: 5, ExpiresAt: time.Now().Add(time.Hour)}

	d.tokens.On("FindByTokenHash", mock.Anything, sha("old")).Return(rt, nil)
	d.users.On("FindByID", mock.Anything, int64(5)).Return(&model.User{ID: 5, IsActive: true}, nil)
	d.tokens.On("Rotate", mock.Anything, "rt-1", mock.Anything, mock.Anything).Return(repo.ErrConflict)
	d.tokens.On("RevokeFamily", mock.Anything, "fam-1", mock.Anything).Return(nil)

	_, err := d.usecase().Refresh(context.Background(), "old", "ua")
	assertErrContains(t, err, "reuse detected")
	d.tokens.AssertExpectations(t)
}

func TestAuthUsecase_Refresh_Expired(t *testing.T) {
	d := newAuthDeps()
	rt := &model.RefreshToken{ID: "rt-1", FamilyID: "fam-1", UserID: 5, ExpiresAt: time.Now().Add(-time.Second)}

	d.tokens.On("FindByTokenHash", mock.Anything, sha("old")).Return(rt, nil)

	_, err := d.usecase().Refresh(context.Background(), "old", "ua")
	assertKind(t, err, usecase.KindUnauthenticated)
	d.tokens.AssertNotCalled(t, "Rotate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthUsecase_Refresh_UserAgentMismatch(t *testing.T) {
	d := newAuthDeps()
	rt := &model.RefreshToken{ID: "rt-1", FamilyID: "fam-1", UserID: 5, UserAgent: "chrome", ExpiresAt: time.Now().Add(time.Hour)}

	d.tokens.On("FindByTokenHash", mock.Anything, sha("old")).Return(rt, nil)
	d.tokens.On("RevokeFamily", mock.Anything, "fam-1", mock.Anything).Return(nil)

	_, err := d.usecase().Refresh(context.Background(), "old", "curl")
	assertKind(t, err, usecase.KindUnauthenticated)
	d.users.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

// =====================
// Logout / ForceLogout
// =====================

func TestAuthUsecase_Logout(t *testing.T) {
	d := newAuthDeps()
	d.tokens.On("FindByTokenHash", mock.Anything, sha("rt")).Return(&model.RefreshToken{ID: "rt-1", FamilyID: "fam-1"}, nil)
	d.tokens.On("RevokeFamily", mock.Anything, "fam-1", mock.AnythingOfType("time.Time")).Return(nil)

	require.NoError(t, d.usecase().Logout(context.Background(), "rt"))
	assertKind(t, d.usecase().Logout(context.Background(), ""), usecase.KindUnauthenticated)
	d.tokens.AssertExpectations(t)
}

func TestAuthUsecase_ForceLogout(t *testing.T) {
	d := newAuthDeps()

	d.users.On("BumpTokenVersion", mock.Anything, int64(7)).Return(3, nil)
	d.tokens.On("RevokeAllForUser", mock.Anything, int64(7), mock.AnythingOfType("time.Time")).Return(nil)
	d.audits.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionForceLogout &&
			l.ResourceID == "7" &&
			l.BeforeJSON == `{"token_version":2}` &&
			l.AfterJSON == `{"token_version":3}`
	})).Return(nil)

	res, err := d.usecase().ForceLogout(context.Background(), adminActor, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NewTokenVersion)
	d.audits.AssertExpectations(t)
	d.tokens.AssertExpectations(t)
}

func TestAuthUsecase_ForceLogout_UnknownUser(t *testing.T) {
	d := newAuthDeps()
	d.users.On("BumpTokenVersion", mock.Anything, int64(7)).Return(0, repo.ErrNotFound)

	_, err := d.usecase().ForceLogout(context.Background(), adminActor, 7)
	assertKind(t, err, usecase.KindNotFound)
	d.tokens.AssertNotCalled(t, "RevokeAllForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthUsecase_Me(t *testing.T) {
	d := newAuthDeps()
	d.users.On("FindByID", mock.Anything, int64(5)).Return(&model.User{ID: 5, Email: "a@example.com", IsActive: true}, nil)

	out, err := d.usecase().Me(context.Background(), model.Identity{UserID: 5})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", out.Email)

	_, err = d.usecase().Me(context.Background(), model.Identity{})
	assertKind(t, err, usecase.KindUnauthenticated)
}
