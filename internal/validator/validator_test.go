package validator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type userRepoStub struct{ mock.Mock }

func (m *userRepoStub) Create(ctx context.Context, user *model.User) error { return nil }
func (m *userRepoStub) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	return nil, nil
}
func (m *userRepoStub) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}
func (m *userRepoStub) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	return nil
}
func (m *userRepoStub) BumpTokenVersion(ctx context.Context, userID int64) (int, error) {
	return 0, nil
}

func status(t *testing.T, err error) int {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "want HTTPError, got %v", err)
	return he.Status
}

func TestValidateRegister(t *testing.T) {
	users := new(userRepoStub)
	users.On("FindByEmail", mock.Anything, "new@example.com").Return(nil, errors.New("not found"))
	users.On("FindByEmail", mock.Anything, "taken@example.com").Return(&model.User{ID: 1}, nil)
	v := NewAuthValidator(users)

	cases := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{"ok", "new@example.com", "abcdef12", 0},
		{"empty", "", "abcdef12", 400},
		{"bad email", "new@example", "abcdef12", 400},
		{"short", "new@example.com", "abc12", 400},
		{"letters only", "new@example.com", "abcdefgh", 400},
		{"digits only", "new@example.com", "12345678", 400},
		{"taken", "Taken@example.com", "abcdef12", 409},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateRegister(context.Background(), tc.email, tc.password)
			if tc.want == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.want, status(t, err))
		})
	}
}

func TestValidateLoginAndRefresh(t *testing.T) {
	v := NewAuthValidator(new(userRepoStub))

	assert.NoError(t, v.ValidateLogin(context.Background(), "a@example.com", "x"))
	assert.Equal(t, 400, status(t, v.ValidateLogin(context.Background(), "a@example.com", "")))
	assert.Equal(t, 401, status(t, v.ValidateRefresh(context.Background(), " ", "ua")))
	assert.Equal(t, 400, status(t, v.ValidateForceLogout(context.Background(), 0)))
}

func TestValidateCreateOrder(t *testing.T) {
	v := NewOrderValidator()
	ship := &model.ShippingAddress{Name: "Hanako", PostalCode: "1", Prefecture: "Tokyo", City: "Chiyoda", Line1: "1-1"}
	customer := usecase.CustomerInput{Name: "Hanako", Email: "h@example.com"}

	ok := usecase.CreateOrderInput{
		Items:    []usecase.LineInput{{ProductID: 1, Quantity: 1}},
		Shipping: ship,
		Customer: customer,
	}
	assert.NoError(t, v.ValidateCreateOrder(context.Background(), ok))

	// カートから作る場合は明細なしでよい
	fromCart := ok
	fromCart.Items = nil
	assert.NoError(t, v.ValidateCreateOrder(context.Background(), fromCart))

	// 住所帳を使うなら配送先は不要
	withAddress := ok
	withAddress.Shipping = nil
	withAddress.AddressID = 3
	assert.NoError(t, v.ValidateCreateOrder(context.Background(), withAddress))

	noShip := ok
	noShip.Shipping = nil
	assert.Error(t, v.ValidateCreateOrder(context.Background(), noShip))

	badEmail := ok
	badEmail.Customer.Email = "nope"
	assert.Error(t, v.ValidateCreateOrder(context.Background(), badEmail))

	badQty := ok
	badQty.Items = []usecase.LineInput{{ProductID: 1, Quantity: 0}}
	assert.Error(t, v.ValidateCreateOrder(context.Background(), badQty))

	hugeQty := ok
	hugeQty.Items = []usecase.LineInput{{ProductID: 1, Quantity: math.MaxInt64}}
	assert.Error(t, v.ValidateCreateOrder(context.Background(), hugeQty))

	missingCity := ok
	missingCity.Shipping = &model.ShippingAddress{Name: "Hanako", PostalCode: "1", Prefecture: "Tokyo", Line1: "1-1"}
	assert.Error(t, v.ValidateCreateOrder(context.Background(), missingCity))
}
