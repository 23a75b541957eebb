package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 表示用の通貨換算（注文金額には使わない）
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

type ProductUsecase struct {
	productRepo  repo.ProductRepository
	auditRepo    repo.AuditLogRepository
	tx           repo.TransactionManager
	fx           CurrencyConverter
	baseCurrency string
	log          *zap.Logger
	now          func() time.Time
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	auditRepo repo.AuditLogRepository,
	tx repo.TransactionManager,
	fx CurrencyConverter,
	baseCurrency string,
	log *zap.Logger,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo:  productRepo,
		auditRepo:    auditRepo,
		tx:           tx,
		fx:           fx,
		baseCurrency: strings.ToUpper(baseCurrency),
		log:          log,
		now:          time.Now,
	}
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
	// 表示通貨（空なら基準通貨のまま）
	Currency string
}

// 一覧・詳細で返す形
type ProductView struct {
	model.Product
	Currency        string           `json:"currency"`
	DisplayPrice    *decimal.Decimal `json:"display_price,omitempty"`
	DisplayCurrency string           `json:"display_currency,omitempty"`
}

type ProductListOutput struct {
	Items []ProductView `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}
	display, err := u.displayCurrency(in.Currency)
	if err != nil {
		return ProductListOutput{}, err
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, storeError(err)
	}

	views := make([]ProductView, 0, len(items))
	for _, p := range items {
		v, err := u.toView(ctx, p, display)
		if err != nil {
			return ProductListOutput{}, err
		}
		views = append(views, v)
	}

	return ProductListOutput{
		Items: views,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64, currency string) (ProductView, error) {
	if productID <= 0 {
		return ProductView{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	display, err := u.displayCurrency(currency)
	if err != nil {
		return ProductView{}, err
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err != nil {
		return ProductView{}, storeError(err)
	}

	//非公開は存在しない扱い
	if !p.IsActive {
		return ProductView{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return u.toView(ctx, p, display)
}

func (u *ProductUsecase) displayCurrency(raw string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" || c == u.baseCurrency {
		return "", nil
	}
	if !currencyPattern.MatchString(c) {
		return "", NewHTTPError(http.StatusBadRequest, "invalid currency")
	}
	if u.fx == nil {
		return "", NewHTTPError(http.StatusBadRequest, "currency conversion not available")
	}
	return c, nil
}

func (u *ProductUsecase) toView(ctx context.Context, p model.Product, display string) (ProductView, error) {
	v := ProductView{Product: p, Currency: u.baseCurrency}
	if display == "" {
		return v, nil
	}
	converted, err := u.fx.Convert(ctx, p.Price, u.baseCurrency, display)
	if err != nil {
		u.log.Warn("fx conversion failed", zap.String("to", display), zap.Error(err))
		return ProductView{}, NewHTTPError(http.StatusBadGateway, "exchange rates unavailable")
	}
	v.DisplayPrice = &converted
	v.DisplayCurrency = display
	return v, nil
}

type AdminProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int64
	IsActive    bool
	Sizes       []string
	Colors      []string
}

func validateProductInput(in AdminProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "name required")
	}
	if in.Price.IsNegative() {
		return NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}
	if in.Stock < 0 {
		return NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}
	return nil
}

func cleanVariants(list []string) []string {
	out := make([]string, 0, len(list))
	seen := map[string]bool{}
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, actor model.Identity, in AdminProductInput) (int64, error) {
	if actor.UserID <= 0 {
		return 0, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateProductInput(in); err != nil {
		return 0, err
	}

	p, err := u.productRepo.Create(ctx, model.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		IsActive:    in.IsActive,
		Sizes:       cleanVariants(in.Sizes),
		Colors:      cleanVariants(in.Colors),
	})
	if err != nil {
		return 0, storeError(err)
	}

	u.audit(ctx, model.AuditLog{
		ActorUserID:  actor.UserID,
		Action:       model.AuditActionCreateProduct,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   strconv.FormatInt(p.ID, 10),
		AfterJSON:    productJSON(p),
	})
	return p.ID, nil
}

// 在庫は変えない（在庫はAdminUpdateInventoryで履歴付きで変更する）
func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, actor model.Identity, productID int64, in AdminProductInput) error {
	if actor.UserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := validateProductInput(in); err != nil {
		return err
	}

	before, err := u.productRepo.FindByID(ctx, productID)
	if err != nil {
		return storeError(err)
	}

	after := before
	after.Name = strings.TrimSpace(in.Name)
	after.Description = in.Description
	after.Price = in.Price.Round(2)
	after.IsActive = in.IsActive
	after.Sizes = cleanVariants(in.Sizes)
	after.Colors = cleanVariants(in.Colors)

	if err := u.productRepo.Update(ctx, after); err != nil {
		return storeError(err)
	}

	u.audit(ctx, model.AuditLog{
		ActorUserID:  actor.UserID,
		Action:       model.AuditActionUpdateProduct,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   strconv.FormatInt(productID, 10),
		BeforeJSON:   productJSON(before),
		AfterJSON:    productJSON(after),
	})
	return nil
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, actor model.Identity, productID int64) error {
	if actor.UserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	if err := u.productRepo.SoftDelete(ctx, productID); err != nil {
		return storeError(err)
	}

	u.audit(ctx, model.AuditLog{
		ActorUserID:  actor.UserID,
		Action:       model.AuditActionDeleteProduct,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   strconv.FormatInt(productID, 10),
	})
	return nil
}

// AdminUpdateInventory は在庫・調整履歴・監査ログを1トランザクションで書く
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, actor model.Identity, productID int64, newStock int64, reason string) error {
	if actor.UserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if newStock < 0 {
		return NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewHTTPError(http.StatusBadRequest, "reason required")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Inventory().Set(ctx, productID, newStock, actor.UserID, reason)
		if err != nil {
			return err
		}

		//「誰が」「何を」「どの対象に」「どう変えたか」を残す
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   strconv.FormatInt(productID, 10),
			BeforeJSON:   `{"stock":` + strconv.FormatInt(before, 10) + `}`,
			AfterJSON:    `{"stock":` + strconv.FormatInt(newStock, 10) + `}`,
			CreatedAt:    u.now(),
		})
	})
	return storeError(err)
}

// 監査ログの書き込み失敗は操作自体を失敗にしない
func (u *ProductUsecase) audit(ctx context.Context, entry model.AuditLog) {
	entry.CreatedAt = u.now()
	if err := u.auditRepo.Create(ctx, entry); err != nil {
		u.log.Error("audit log write failed",
			zap.String("action", string(entry.Action)),
			zap.String("resource_id", entry.ResourceID),
			zap.Error(err),
		)
	}
}

func productJSON(p model.Product) string {
	b, err := json.Marshal(map[string]interface{}{
		"name":      p.Name,
		"price":     p.Price.StringFixed(2),
		"is_active": p.IsActive,
		"sizes":     []string(p.Sizes),
		"colors":    []string(p.Colors),
	})
	if err != nil {
		return ""
	}
	return string(b)
}
