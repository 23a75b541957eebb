package validator

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"storefront/internal/repository"
	"storefront/internal/usecase"
)

// 簡易メール形式
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcryptの上限
)

type authValidator struct {
	users repository.UserRepository
}

// Usecaseは interface を依存注入
func NewAuthValidator(users repository.UserRepository) usecase.AuthValidator {
	return &authValidator{users: users}
}

func invalid(msg string) error {
	return usecase.NewHTTPError(http.StatusBadRequest, msg)
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	// 必須チェック
	if email == "" || password == "" {
		return invalid("email and password are required")
	}

	// email形式
	if !isEmailLike(email) {
		return invalid("invalid email")
	}

	if err := checkPassword(password); err != nil {
		return err
	}

	// email重複チェック（DBが必要）
	u, err := v.users.FindByEmail(ctx, strings.ToLower(email))
	if err == nil && u != nil {
		return usecase.NewHTTPError(http.StatusConflict, "email already used")
	}

	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	// 必須チェック
	if email == "" || password == "" {
		return invalid("email and password are required")
	}

	// email形式
	if !isEmailLike(email) {
		return invalid("invalid email")
	}

	return nil
}

// refresh 入力を検証
func (v *authValidator) ValidateRefresh(ctx context.Context, refreshToken string, userAgent string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return usecase.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return nil
}

// 強制ログアウトの入力を検証
func (v *authValidator) ValidateForceLogout(ctx context.Context, targetUserID int64) error {
	if targetUserID <= 0 {
		return invalid("invalid user id")
	}
	return nil
}

// 8文字以上で英字と数字を両方含む
func checkPassword(pw string) error {
	if len(pw) < minPasswordLen {
		return invalid("password must be at least 8 characters")
	}
	if len(pw) > maxPasswordLen {
		return invalid("password too long")
	}

	var hasLetter, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return invalid("password must contain letters and digits")
	}
	return nil
}

func isEmailLike(s string) bool {
	return len(s) <= 254 && emailPattern.MatchString(s)
}
