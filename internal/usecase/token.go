package usecase

import (
	"errors"
	"strconv"
	"time"

	"storefront/internal/domain/model"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// アクセストークンのclaims
type AccessClaims struct {
	Role         string `json:"role"`
	Email        string `json:"email"`
	TokenVersion int    `json:"tv"`
	jwt.RegisteredClaims
}

// TokenService はHS256のアクセストークンを発行・検証する
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

func (s *TokenService) Issue(user *model.User) (string, error) {
	now := s.now()
	claims := AccessClaims{
		Role:         string(user.Role),
		Email:        user.Email,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse は検証済みの呼び出し元とtoken_versionを返す
func (s *TokenService) Parse(raw string) (model.Identity, int, error) {
	var claims AccessClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || token == nil || !token.Valid {
		return model.Identity{}, 0, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return model.Identity{}, 0, ErrInvalidToken
	}
	role := model.Role(claims.Role)
	if role != model.RoleUser && role != model.RoleAdmin {
		return model.Identity{}, 0, ErrInvalidToken
	}
	if claims.TokenVersion < 0 {
		return model.Identity{}, 0, ErrInvalidToken
	}

	return model.Identity{UserID: userID, Role: role, Email: claims.Email}, claims.TokenVersion, nil
}
