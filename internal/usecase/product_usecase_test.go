package usecase_test

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type productDeps struct {
	tx        *TxManagerMock
	products  *ProductRepoMock
	inventory *InventoryRepoMock
	audits    *AuditRepoMock
	fx        *ConverterMock
}

func newProductDeps() *productDeps {
	d := &productDeps{
		tx:        new(TxManagerMock),
		products:  new(ProductRepoMock),
		inventory: new(InventoryRepoMock),
		audits:    new(AuditRepoMock),
		fx:        new(ConverterMock),
	}
	d.tx.Repos = &TxReposMock{products: d.products, inventory: d.inventory, auditLogs: d.audits}
	return d
}

func (d *productDeps) usecase() *usecase.ProductUsecase {
	return usecase.NewProductUsecase(d.products, d.audits, d.tx, d.fx, "usd", zap.NewNop())
}

// ===== public list =====

func TestProductUsecase_ListPublicProducts_Validation(t *testing.T) {
	d := newProductDeps()
	lo, hi := dec("10"), dec("5")

	cases := []struct {
		name string
		in   usecase.ListProductsInput
		want string
	}{
		{"page", usecase.ListProductsInput{Page: 0, Limit: 10}, "invalid page"},
		{"limit", usecase.ListProductsInput{Page: 1, Limit: 101}, "invalid limit"},
		{"range", usecase.ListProductsInput{Page: 1, Limit: 10, MinPrice: &lo, MaxPrice: &hi}, "min_price must be <= max_price"},
		{"sort", usecase.ListProductsInput{Page: 1, Limit: 10, Sort: "rating"}, "invalid sort"},
		{"currency", usecase.ListProductsInput{Page: 1, Limit: 10, Currency: "dollars"}, "invalid currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.usecase().ListPublicProducts(context.Background(), tc.in)
			assertErrContains(t, err, tc.want)
		})
	}
	d.products.AssertNotCalled(t, "ListPublic", mock.Anything, mock.Anything)
}

func TestProductUsecase_ListPublicProducts_DisplayCurrency(t *testing.T) {
	d := newProductDeps()

	d.products.On("ListPublic", mock.Anything, repo.ProductListQuery{Page: 1, Limit: 20, Q: "coat"}).Return([]model.Product{jacket()}, int64(1), nil)
	d.fx.On("Convert", mock.Anything, priceIs("100"), "USD", "INR").Return(dec("8350"), nil)

	out, err := d.usecase().ListPublicProducts(context.Background(), usecase.ListProductsInput{Page: 1, Limit: 20, Q: " coat ", Currency: "inr"})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)

	v := out.Items[0]
	assert.Equal(t, "USD", v.Currency)
	assert.True(t, v.Price.Equal(dec("100")))
	require.NotNil(t, v.DisplayPrice)
	assert.True(t, v.DisplayPrice.Equal(dec("8350")))
	assert.Equal(t, "INR", v.DisplayCurrency)
}

func TestProductUsecase_ListPublicProducts_BaseCurrencySkipsFx(t *testing.T) {
	d := newProductDeps()

	d.products.On("ListPublic", mock.Anything, mock.Anything).Return([]model.Product{jacket()}, int64(1), nil)

	out, err := d.usecase().ListPublicProducts(context.Background(), usecase.ListProductsInput{Page: 1, Limit: 20, Currency: "USD"})
	require.NoError(t, err)
	assert.Nil(t, out.Items[0].DisplayPrice)
	d.fx.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProductUsecase_GetProductDetail_FxDown(t *testing.T) {
	d := newProductDeps()

	d.products.On("FindByID", mock.Anything, int64(1)).Return(jacket(), nil)
	d.fx.On("Convert", mock.Anything, mock.Anything, "USD", "EUR").Return(nil, errors.New("timeout"))

	_, err := d.usecase().GetProductDetail(context.Background(), 1, "EUR")
	assertKind(t, err, usecase.KindUpstreamUnavailable)
}

func TestProductUsecase_GetProductDetail_InactiveIsNotFound(t *testing.T) {
	d := newProductDeps()
	p := jacket()
	p.IsActive = false

	d.products.On("FindByID", mock.Anything, int64(1)).Return(p, nil)

	_, err := d.usecase().GetProductDetail(context.Background(), 1, "")
	assertKind(t, err, usecase.KindNotFound)
}

// ===== admin =====

func TestProductUsecase_AdminCreateProduct(t *testing.T) {
	d := newProductDeps()

	d.products.On("Create", mock.Anything, mock.MatchedBy(func(p model.Product) bool {
		return p.Name == "Coat" && p.Price.Equal(dec("12.35")) && len(p.Sizes) == 2
	})).Return(model.Product{ID: 42, Name: "Coat"}, nil)
	d.audits.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionCreateProduct && l.ResourceID == "42" && l.ActorUserID == 1
	})).Return(errors.New("audit down"))

	id, err := d.usecase().AdminCreateProduct(context.Background(), adminActor, usecase.AdminProductInput{
		Name:  " Coat ",
		Price: dec("12.345"),
		Stock: 3,
		Sizes: []string{"S", " S", "M", ""},
	})
	// 監査ログの失敗で作成は失敗しない
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	d.audits.AssertExpectations(t)
}

func TestProductUsecase_AdminCreateProduct_Validation(t *testing.T) {
	d := newProductDeps()

	_, err := d.usecase().AdminCreateProduct(context.Background(), adminActor, usecase.AdminProductInput{Name: "x", Price: dec("-1")})
	assertErrContains(t, err, "price must be >= 0")
	d.products.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProductUsecase_AdminUpdateProduct_KeepsStock(t *testing.T) {
	d := newProductDeps()

	d.products.On("FindByID", mock.Anything, int64(1)).Return(jacket(), nil)
	d.products.On("Update", mock.Anything, mock.MatchedBy(func(p model.Product) bool {
		return p.ID == 1 && p.Name == "Jacket v2" && p.Stock == 5
	})).Return(nil)
	d.audits.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateProduct && l.BeforeJSON != "" && l.AfterJSON != l.BeforeJSON
	})).Return(nil)

	err := d.usecase().AdminUpdateProduct(context.Background(), adminActor, 1, usecase.AdminProductInput{
		Name: "Jacket v2", Price: dec("120"), Stock: 999, IsActive: true,
	})
	require.NoError(t, err)
	d.products.AssertExpectations(t)
}

func TestProductUsecase_AdminUpdateInventory(t *testing.T) {
	d := newProductDeps()

	d.tx.On("WithinTx", mock.Anything).Return(nil)
	d.inventory.On("Set", mock.Anything, int64(1), int64(12), int64(1), "restock").Return(int64(5), nil)
	d.audits.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateStock &&
			l.BeforeJSON == `{"stock":5}` &&
			l.AfterJSON == `{"stock":12}`
	})).Return(nil)

	err := d.usecase().AdminUpdateInventory(context.Background(), adminActor, 1, 12, " restock ")
	require.NoError(t, err)

	d.inventory.AssertExpectations(t)
	d.audits.AssertExpectations(t)
}

func TestProductUsecase_AdminUpdateInventory_AuditFailureRollsBack(t *testing.T) {
	d := newProductDeps()

	d.tx.On("WithinTx", mock.Anything).Return(nil)
	d.inventory.On("Set", mock.Anything, int64(1), int64(0), int64(1), "lost").Return(int64(5), nil)
	d.audits.On("Create", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

	err := d.usecase().AdminUpdateInventory(context.Background(), adminActor, 1, 0, "lost")
	assertErrContains(t, err, "db error")
}

func TestProductUsecase_AdminUpdateInventory_ReasonRequired(t *testing.T) {
	d := newProductDeps()

	err := d.usecase().AdminUpdateInventory(context.Background(), adminActor, 1, 3, "  ")
	assertErrContains(t, err, "reason required")
	d.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}
