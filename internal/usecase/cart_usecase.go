package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジック。
// 持ち主はログインユーザーかゲスト（X-Guest-ID）のどちらか。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
	tx           repo.TransactionManager
	now          func() time.Time
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
	tx repo.TransactionManager,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
		tx:           tx,
		now:          time.Now,
	}
}

// price は unit_price_snapshot（追加時点の価格）
type CartItemResponse struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
	SelectedSize  string          `json:"selected_size,omitempty"`
	SelectedColor string          `json:"selected_color,omitempty"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

type AddCartInput struct {
	ProductID     int64
	Quantity      int64
	SelectedSize  string
	SelectedColor string
}

type UpdateCartItemInput struct {
	Quantity int64
}

type SyncMode string

const (
	SyncMerge   SyncMode = "merge"
	SyncReplace SyncMode = "replace"
)

// ローカル（未ログイン時）のカートをサーバーへ反映する入力
type SyncCartInput struct {
	Mode  SyncMode
	Items []LineInput
}

type SkippedLine struct {
	ProductID int64  `json:"product_id"`
	Reason    string `json:"reason"`
}

type SyncCartResult struct {
	Cart    CartResponse  `json:"cart"`
	Skipped []SkippedLine `json:"skipped"`
}

type ClaimCartResult struct {
	Claimed bool          `json:"claimed"`
	Cart    CartResponse  `json:"cart"`
	Skipped []SkippedLine `json:"skipped"`
}

func errNoOwner() error {
	return NewHTTPError(http.StatusUnauthorized, "login or guest id required")
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, owner model.Owner) (CartResponse, error) {
	if owner.IsZero() {
		return CartResponse{}, errNoOwner()
	}

	cart, err := u.cartRepo.GetOrCreateActive(ctx, owner)
	if err != nil {
		return CartResponse{}, storeError(err)
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// AddToCart はカートに追加（同一キーは数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, owner model.Owner, in AddCartInput) (CartResponse, error) {
	if owner.IsZero() {
		return CartResponse{}, errNoOwner()
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 || in.Quantity > MaxLineQuantity {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	key := model.CartLineKey{
		ProductID:     in.ProductID,
		SelectedColor: strings.TrimSpace(in.SelectedColor),
		SelectedSize:  strings.TrimSpace(in.SelectedSize),
	}

	// ACTIVEカート取得（無ければ作成）
	cart, err := u.cartRepo.GetOrCreateActive(ctx, owner)
	if err != nil {
		return CartResponse{}, storeError(err)
	}

	// 商品チェック（公開のみ）
	p, err := u.activeProduct(ctx, in.ProductID)
	if err != nil {
		return CartResponse{}, err
	}
	if !p.HasVariant(key.SelectedSize, key.SelectedColor) {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid variant")
	}

	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, storeError(err)
	}

	var existingQty int64
	for _, it := range items {
		if it.Key() == key {
			existingQty = it.Quantity
			break
		}
	}

	newQty := existingQty + in.Quantity
	if newQty > p.Stock {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "stock exceeded")
	}
	if newQty > MaxLineQuantity {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "quantity too large")
	}

	// unit_price_snapshot は「追加時点の価格」を渡す
	if err := u.cartItemRepo.UpsertIncrement(ctx, cart.ID, key, in.Quantity, p.Price); err != nil {
		return CartResponse{}, storeError(err)
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// 数量変更（所有チェック＋在庫チェック）。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, owner model.Owner, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if owner.IsZero() {
		return CartResponse{}, errNoOwner()
	}
	if cartItemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Quantity < 1 || in.Quantity > MaxLineQuantity {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	//他人の明細は存在しない扱い
	item, err := u.cartItemRepo.FindOwned(ctx, owner, cartItemID)
	if err != nil {
		return CartResponse{}, storeError(err)
	}

	//商品の在庫チェック
	p, err := u.activeProduct(ctx, item.ProductID)
	if err != nil {
		return CartResponse{}, err
	}
	if in.Quantity > p.Stock {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "stock exceeded")
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, item.CartID, cartItemID, in.Quantity); err != nil {
		return CartResponse{}, storeError(err)
	}

	return u.buildCartResponse(ctx, item.CartID)
}

// 明細削除
func (u *CartUsecase) DeleteCartItem(ctx context.Context, owner model.Owner, cartItemID int64) (CartResponse, error) {
	if owner.IsZero() {
		return CartResponse{}, errNoOwner()
	}
	if cartItemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	item, err := u.cartItemRepo.FindOwned(ctx, owner, cartItemID)
	if err != nil {
		return CartResponse{}, storeError(err)
	}
	if err := u.cartItemRepo.Delete(ctx, item.CartID, cartItemID); err != nil {
		return CartResponse{}, storeError(err)
	}
	return u.buildCartResponse(ctx, item.CartID)
}

// SyncCart はローカルの明細をサーバーカートへ反映する。
// merge: 同じキーは数量加算 / replace: サーバー側を捨てて置き換え。
// 無効な行はエラーにせずskippedで返す。
func (u *CartUsecase) SyncCart(ctx context.Context, owner model.Owner, in SyncCartInput) (SyncCartResult, error) {
	if owner.IsZero() {
		return SyncCartResult{}, errNoOwner()
	}
	if in.Mode == "" {
		in.Mode = SyncMerge
	}
	if in.Mode != SyncMerge && in.Mode != SyncReplace {
		return SyncCartResult{}, NewHTTPError(http.StatusBadRequest, "mode must be merge or replace")
	}

	var cartID int64
	skipped := []SkippedLine{}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateActive(ctx, owner)
		if err != nil {
			return err
		}
		cartID = cart.ID

		if in.Mode == SyncReplace {
			if err := r.Carts().Clear(ctx, cart.ID); err != nil {
				return err
			}
		}

		valid, bad, err := filterLines(ctx, r.Products(), in.Items)
		if err != nil {
			return err
		}
		skipped = append(skipped, bad...)

		if in.Mode == SyncMerge {
			current, err := r.CartItems().ListByCartID(ctx, cart.ID)
			if err != nil {
				return err
			}
			var full []SkippedLine
			valid, full = capMerged(current, valid)
			skipped = append(skipped, full...)
		}

		for _, l := range valid {
			if in.Mode == SyncReplace {
				err = r.CartItems().UpsertSet(ctx, cart.ID, l.line.key(), l.line.Quantity, l.product.Price)
			} else {
				err = r.CartItems().UpsertIncrement(ctx, cart.ID, l.line.key(), l.line.Quantity, l.product.Price)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SyncCartResult{}, storeError(err)
	}

	cart, err := u.buildCartResponse(ctx, cartID)
	if err != nil {
		return SyncCartResult{}, err
	}
	return SyncCartResult{Cart: cart, Skipped: skipped}, nil
}

// ClaimGuestCart はゲストカートをログインユーザーのカートへ1回だけ取り込む。
// 2回目以降（別タブ・リトライ）は何もせず現在のカートを返す。
func (u *CartUsecase) ClaimGuestCart(ctx context.Context, id model.Identity, guestID string) (ClaimCartResult, error) {
	if id.UserID <= 0 {
		return ClaimCartResult{}, errUnauthenticated()
	}
	guestID = strings.TrimSpace(guestID)
	if guestID == "" {
		return ClaimCartResult{}, NewHTTPError(http.StatusBadRequest, "guest id required")
	}

	userOwner := model.Owner{UserID: id.UserID}
	claimed := false
	skipped := []SkippedLine{}
	var userCartID int64

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		userCart, err := r.Carts().GetOrCreateActive(ctx, userOwner)
		if err != nil {
			return err
		}
		userCartID = userCart.ID

		guestCart, err := r.Carts().FindActive(ctx, model.Owner{GuestID: guestID})
		if errors.Is(err, repo.ErrNotFound) {
			//取り込み済み or そもそも無い
			return nil
		}
		if err != nil {
			return err
		}

		//claimed_at IS NULL の条件付き更新で勝った1回だけ取り込む
		ok, err := r.Carts().MarkClaimed(ctx, guestCart.ID, id.UserID, u.now())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		items, err := r.CartItems().ListByCartID(ctx, guestCart.ID)
		if err != nil {
			return err
		}
		lines := make([]LineInput, 0, len(items))
		for _, it := range items {
			lines = append(lines, LineInput{
				ProductID:     it.ProductID,
				Quantity:      it.Quantity,
				SelectedSize:  it.SelectedSize,
				SelectedColor: it.SelectedColor,
			})
		}

		valid, bad, err := filterLines(ctx, r.Products(), lines)
		if err != nil {
			return err
		}
		current, err := r.CartItems().ListByCartID(ctx, userCart.ID)
		if err != nil {
			return err
		}
		valid, full := capMerged(current, valid)
		skipped = append(append(skipped, bad...), full...)

		for _, l := range valid {
			if err := r.CartItems().UpsertIncrement(ctx, userCart.ID, l.line.key(), l.line.Quantity, l.product.Price); err != nil {
				return err
			}
		}

		if err := r.Carts().Clear(ctx, guestCart.ID); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return ClaimCartResult{}, storeError(err)
	}

	cart, err := u.buildCartResponse(ctx, userCartID)
	if err != nil {
		return ClaimCartResult{}, err
	}
	return ClaimCartResult{Claimed: claimed, Cart: cart, Skipped: skipped}, nil
}

type validLine struct {
	line    LineInput
	product model.Product
}

// filterLines は取り込める行と取り込めない行に分ける
func filterLines(ctx context.Context, products repo.ProductRepository, lines []LineInput) ([]validLine, []SkippedLine, error) {
	if len(lines) == 0 {
		return nil, nil, nil
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.ProductID > 0 {
			ids = append(ids, l.ProductID)
		}
	}
	found, err := products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[int64]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	var valid []validLine
	var skipped []SkippedLine
	for _, l := range lines {
		l.SelectedSize = strings.TrimSpace(l.SelectedSize)
		l.SelectedColor = strings.TrimSpace(l.SelectedColor)
		p, ok := byID[l.ProductID]
		switch {
		case l.Quantity < 1:
			skipped = append(skipped, SkippedLine{ProductID: l.ProductID, Reason: "invalid quantity"})
		case !ok || !p.IsActive:
			skipped = append(skipped, SkippedLine{ProductID: l.ProductID, Reason: "product not available"})
		case !p.HasVariant(l.SelectedSize, l.SelectedColor):
			skipped = append(skipped, SkippedLine{ProductID: l.ProductID, Reason: "invalid variant"})
		default:
			if l.Quantity > MaxLineQuantity {
				l.Quantity = MaxLineQuantity
			}
			valid = append(valid, validLine{line: l, product: p})
		}
	}
	return valid, skipped, nil
}

// capMerged は既存の数量と足して上限を超える分を削る。1つも足せない行はskippedへ。
func capMerged(current []model.CartItem, lines []validLine) ([]validLine, []SkippedLine) {
	have := make(map[model.CartLineKey]int64, len(current))
	for _, it := range current {
		have[it.Key()] = it.Quantity
	}

	out := make([]validLine, 0, len(lines))
	var skipped []SkippedLine
	for _, l := range lines {
		k := l.line.key()
		room := MaxLineQuantity - have[k]
		if room <= 0 {
			skipped = append(skipped, SkippedLine{ProductID: l.line.ProductID, Reason: "quantity limit reached"})
			continue
		}
		if l.line.Quantity > room {
			l.line.Quantity = room
		}
		have[k] += l.line.Quantity
		out = append(out, l)
	}
	return out, skipped
}

func (u *CartUsecase) activeProduct(ctx context.Context, productID int64) (model.Product, error) {
	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product")
	}
	if err != nil {
		return model.Product{}, storeError(err)
	}
	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product")
	}
	return p, nil
}

// cartIDの明細をまとめてCartResponseを作る。
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, storeError(err)
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	byID := map[int64]model.Product{}
	if len(ids) > 0 {
		found, err := u.productRepo.FindByIDs(ctx, ids)
		if err != nil {
			return CartResponse{}, storeError(err)
		}
		for _, p := range found {
			byID[p.ID] = p
		}
	}

	respItems := make([]CartItemResponse, 0, len(items))
	total := decimal.Zero

	for _, it := range items {
		//非公開・削除済みは表示しない
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive {
			continue
		}

		lineTotal := it.UnitPriceSnapshot.Mul(decimal.NewFromInt(it.Quantity))
		respItems = append(respItems, CartItemResponse{
			ID:            it.ID,
			ProductID:     it.ProductID,
			Name:          p.Name,
			Price:         it.UnitPriceSnapshot,
			Quantity:      it.Quantity,
			SelectedSize:  it.SelectedSize,
			SelectedColor: it.SelectedColor,
			LineTotal:     lineTotal,
		})
		total = total.Add(lineTotal)
	}

	return CartResponse{Items: respItems, Total: total}, nil
}
