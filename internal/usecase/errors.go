package usecase

import (
	"errors"
	"fmt"
	"net/http"

	repo "storefront/internal/repository"
)

// ErrorKind はクライアントへ返すエラー種別
type ErrorKind string

const (
	KindValidation          ErrorKind = "VALIDATION_ERROR"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindUnauthenticated     ErrorKind = "UNAUTHENTICATED"
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindAlreadyPaid         ErrorKind = "ALREADY_PAID"
	KindConflict            ErrorKind = "CONFLICT"
	KindSignatureInvalid    ErrorKind = "SIGNATURE_INVALID"
	KindUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindStoreBusy           ErrorKind = "STORE_BUSY"
	KindInternal            ErrorKind = "INTERNAL"
)

type HTTPError struct {
	Status  int
	Kind    ErrorKind
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Retryable はクライアント/プロバイダが再試行してよいか
func (e *HTTPError) Retryable() bool {
	return e.Kind == KindUpstreamUnavailable || e.Kind == KindStoreBusy
}

// NewHTTPError はstatusから種別を決める
func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Kind:    kindForStatus(status),
		Message: message,
	}
}

func newKindError(status int, kind ErrorKind, message string) error {
	return &HTTPError{Status: status, Kind: kind, Message: message}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadGateway:
		return KindUpstreamUnavailable
	case http.StatusServiceUnavailable:
		return KindStoreBusy
	default:
		return KindInternal
	}
}

func errAlreadyPaid() error {
	return newKindError(http.StatusConflict, KindAlreadyPaid, "order already paid")
}

func errSignatureInvalid() error {
	return newKindError(http.StatusBadRequest, KindSignatureInvalid, "invalid signature")
}

func errUpstream() error {
	return NewHTTPError(http.StatusBadGateway, "payment provider unavailable")
}

// storeError はrepositoryのエラーをHTTPErrorへ寄せる。
// HTTPErrorはそのまま返す（WithinTxの中で作ったもの）。
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repo.ErrBusy):
		return NewHTTPError(http.StatusServiceUnavailable, "store busy, retry")
	case errors.Is(err, repo.ErrNotFound):
		return NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrConflict):
		return NewHTTPError(http.StatusConflict, "conflict")
	default:
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
}
