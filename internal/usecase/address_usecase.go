package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
)

type AddressDTO struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	PostalCode string  `json:"postal_code"`
	Prefecture string  `json:"prefecture"`
	City       string  `json:"city"`
	Line1      string  `json:"line1"`
	Line2      string  `json:"line2"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	IsDefault  bool    `json:"is_default"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  *string `json:"updated_at,omitempty"`
}

// 作成・更新で共通の入力
type AddressInput struct {
	PostalCode string `json:"postal_code"`
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
}

func (in AddressInput) trimmed() AddressInput {
	return AddressInput{
		PostalCode: strings.TrimSpace(in.PostalCode),
		Prefecture: strings.TrimSpace(in.Prefecture),
		City:       strings.TrimSpace(in.City),
		Line1:      strings.TrimSpace(in.Line1),
		Line2:      strings.TrimSpace(in.Line2),
		Name:       strings.TrimSpace(in.Name),
		Phone:      strings.TrimSpace(in.Phone),
	}
}

func (in AddressInput) validate() error {
	if in.PostalCode == "" || in.Prefecture == "" || in.City == "" || in.Line1 == "" || in.Name == "" {
		return NewHTTPError(http.StatusBadRequest, "postal_code, prefecture, city, line1 and name are required")
	}
	return nil
}

type AddressUsecase struct {
	addresses repository.AddressRepository
	now       func() time.Time
}

func NewAddressUsecase(addresses repository.AddressRepository) *AddressUsecase {
	return &AddressUsecase{addresses: addresses, now: time.Now}
}

func (u *AddressUsecase) List(ctx context.Context, id model.Identity) ([]AddressDTO, error) {
	if id.UserID <= 0 {
		return nil, errUnauthenticated()
	}

	list, err := u.addresses.ListByUserID(ctx, id.UserID)
	if err != nil {
		return nil, storeError(err)
	}

	out := make([]AddressDTO, 0, len(list))
	for i := range list {
		out = append(out, toAddressDTO(&list[i]))
	}
	return out, nil
}

func (u *AddressUsecase) Create(ctx context.Context, id model.Identity, req AddressInput) (AddressDTO, error) {
	if id.UserID <= 0 {
		return AddressDTO{}, errUnauthenticated()
	}

	//入力チェック
	req = req.trimmed()
	if err := req.validate(); err != nil {
		return AddressDTO{}, err
	}

	now := u.now()
	created, err := u.addresses.Create(ctx, model.Address{
		UserID:     id.UserID,
		PostalCode: req.PostalCode,
		Prefecture: req.Prefecture,
		City:       req.City,
		Line1:      req.Line1,
		Line2:      req.Line2,
		Name:       req.Name,
		Phone:      req.Phone,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return AddressDTO{}, storeError(err)
	}

	return toAddressDTO(&created), nil
}

func (u *AddressUsecase) Update(ctx context.Context, id model.Identity, addressID int64, req AddressInput) error {
	if err := checkAddressTarget(id, addressID); err != nil {
		return err
	}

	req = req.trimmed()
	if err := req.validate(); err != nil {
		return err
	}

	err := u.addresses.UpdateOwned(ctx, id.UserID, model.Address{
		ID:         addressID,
		PostalCode: req.PostalCode,
		Prefecture: req.Prefecture,
		City:       req.City,
		Line1:      req.Line1,
		Line2:      req.Line2,
		Name:       req.Name,
		Phone:      req.Phone,
		UpdatedAt:  u.now(),
	})
	return storeError(err)
}

func (u *AddressUsecase) Delete(ctx context.Context, id model.Identity, addressID int64) error {
	if err := checkAddressTarget(id, addressID); err != nil {
		return err
	}
	return storeError(u.addresses.DeleteOwned(ctx, id.UserID, addressID))
}

func (u *AddressUsecase) SetDefault(ctx context.Context, id model.Identity, addressID int64) error {
	if err := checkAddressTarget(id, addressID); err != nil {
		return err
	}
	return storeError(u.addresses.SetDefault(ctx, id.UserID, addressID))
}

// 所有チェックはstore側（user_id絞り込み）。他人の住所はErrNotFound→404
func checkAddressTarget(id model.Identity, addressID int64) error {
	if id.UserID <= 0 {
		return errUnauthenticated()
	}
	if addressID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid address id")
	}
	return nil
}

func toAddressDTO(a *model.Address) AddressDTO {
	dto := AddressDTO{
		ID:         a.ID,
		UserID:     a.UserID,
		PostalCode: a.PostalCode,
		Prefecture: a.Prefecture,
		City:       a.City,
		Line1:      a.Line1,
		Line2:      a.Line2,
		Name:       a.Name,
		Phone:      a.Phone,
		IsDefault:  a.IsDefault,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
	t := a.UpdatedAt.Format(time.RFC3339)
	dto.UpdatedAt = &t
	return dto
}
