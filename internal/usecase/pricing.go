package usecase

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// 明細の入力（価格は受け取らない）
type LineInput struct {
	ProductID     int64  `json:"product_id"`
	Quantity      int64  `json:"quantity"`
	SelectedSize  string `json:"selected_size"`
	SelectedColor string `json:"selected_color"`
}

func (l LineInput) key() model.CartLineKey {
	return model.CartLineKey{ProductID: l.ProductID, SelectedColor: l.SelectedColor, SelectedSize: l.SelectedSize}
}

type QuoteLine struct {
	Product       model.Product
	Quantity      int64
	SelectedSize  string
	SelectedColor string
	UnitPrice     decimal.Decimal
	LineTotal     decimal.Decimal
}

// Quote はカタログ価格から計算した確定金額
type Quote struct {
	Lines       []QuoteLine
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
	TotalMinor  int64
	Currency    string
}

// 商品1点あたりの上限
const MaxLineQuantity = 99

type PriceCalculator struct {
	currency              string
	freeShippingThreshold decimal.Decimal
	flatShippingFee       decimal.Decimal
}

func NewPriceCalculator(currency string, freeShippingThreshold, flatShippingFee decimal.Decimal) PriceCalculator {
	return PriceCalculator{
		currency:              strings.ToUpper(currency),
		freeShippingThreshold: freeShippingThreshold,
		flatShippingFee:       flatShippingFee,
	}
}

func (c PriceCalculator) Currency() string {
	return c.currency
}

// Quote は明細から金額を計算する。
// 単価は必ず現在のカタログ価格を使う。
func (c PriceCalculator) Quote(ctx context.Context, products repo.ProductRepository, lines []LineInput) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, NewHTTPError(http.StatusBadRequest, "items required")
	}

	// 同じキーはまとめる（順序は最初の出現順）
	merged := make([]LineInput, 0, len(lines))
	index := map[model.CartLineKey]int{}
	for _, l := range lines {
		if l.ProductID <= 0 {
			return Quote{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
		}
		if l.Quantity <= 0 {
			return Quote{}, NewHTTPError(http.StatusBadRequest, "quantity must be > 0")
		}
		if l.Quantity > MaxLineQuantity {
			return Quote{}, errQuantityTooLarge()
		}
		l.SelectedSize = strings.TrimSpace(l.SelectedSize)
		l.SelectedColor = strings.TrimSpace(l.SelectedColor)
		if i, ok := index[l.key()]; ok {
			// 足す前に上限を見る（オーバーフローさせない）
			if merged[i].Quantity > MaxLineQuantity-l.Quantity {
				return Quote{}, errQuantityTooLarge()
			}
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.key()] = len(merged)
		merged = append(merged, l)
	}

	ids := make([]int64, 0, len(merged))
	seen := map[int64]bool{}
	for _, l := range merged {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}

	found, err := products.FindByIDs(ctx, ids)
	if err != nil {
		return Quote{}, storeError(err)
	}
	byID := make(map[int64]model.Product, len(found))
	for _, p := range found {
		if p.IsActive {
			byID[p.ID] = p
		}
	}

	// 1つでも欠けていたら全体を拒否
	var missing []int64
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return Quote{}, NewHTTPError(http.StatusNotFound, "products not found: "+joinIDs(missing))
	}

	q := Quote{Currency: c.currency, Subtotal: decimal.Zero}
	for _, l := range merged {
		p := byID[l.ProductID]
		if !p.HasVariant(l.SelectedSize, l.SelectedColor) {
			return Quote{}, NewHTTPError(http.StatusBadRequest, "invalid variant for product "+strconv.FormatInt(p.ID, 10))
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(l.Quantity))
		q.Lines = append(q.Lines, QuoteLine{
			Product:       p,
			Quantity:      l.Quantity,
			SelectedSize:  l.SelectedSize,
			SelectedColor: l.SelectedColor,
			UnitPrice:     p.Price,
			LineTotal:     lineTotal,
		})
		q.Subtotal = q.Subtotal.Add(lineTotal)
	}

	q.ShippingFee = c.ShippingFor(q.Subtotal)
	q.Total = q.Subtotal.Add(q.ShippingFee)
	q.TotalMinor = ToMinor(q.Total)
	return q, nil
}

// 送料: しきい値以上は無料
func (c PriceCalculator) ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(c.freeShippingThreshold) {
		return decimal.Zero
	}
	return c.flatShippingFee
}

// ToMinor は最小通貨単位（x100、四捨五入）
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func errQuantityTooLarge() error {
	return NewHTTPError(http.StatusBadRequest, "quantity too large")
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
