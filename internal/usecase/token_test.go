package usecase_test

import (
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndParse(t *testing.T) {
	s := usecase.NewTokenService("secret", time.Minute)

	raw, err := s.Issue(&model.User{ID: 9, Email: "x@example.com", Role: model.RoleUser, TokenVersion: 4})
	require.NoError(t, err)

	id, tv, err := s.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{UserID: 9, Role: model.RoleUser, Email: "x@example.com"}, id)
	assert.Equal(t, 4, tv)
}

func TestTokenService_RejectsOtherSecret(t *testing.T) {
	raw, err := usecase.NewTokenService("a", time.Minute).Issue(&model.User{ID: 9, Role: model.RoleUser})
	require.NoError(t, err)

	_, _, err = usecase.NewTokenService("b", time.Minute).Parse(raw)
	assert.ErrorIs(t, err, usecase.ErrInvalidToken)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	s := usecase.NewTokenService("secret", -time.Minute)
	raw, err := s.Issue(&model.User{ID: 9, Role: model.RoleUser})
	require.NoError(t, err)

	_, _, err = s.Parse(raw)
	assert.ErrorIs(t, err, usecase.ErrInvalidToken)
}

func TestTokenService_RejectsNoneAndUnknownRole(t *testing.T) {
	s := usecase.NewTokenService("secret", time.Minute)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, usecase.AccessClaims{
		Role:             "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = s.Parse(none)
	assert.ErrorIs(t, err, usecase.ErrInvalidToken)

	root, err := jwt.NewWithClaims(jwt.SigningMethodHS256, usecase.AccessClaims{
		Role:             "ROOT",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, _, err = s.Parse(root)
	assert.ErrorIs(t, err, usecase.ErrInvalidToken)
}
