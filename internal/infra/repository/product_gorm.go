package repository

import (
	"context"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 公開中（is_active）の商品だけ。論理削除はgormが除外する
func (r *ProductGormRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	base := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Scopes(publicOnly, matchName(q.Q), priceBetween(q))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	products := []model.Product{}
	err := base.Scopes(sortBy(q.Sort), paginate(q.Page, q.Limit)).Find(&products).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return products, total, nil
}

func publicOnly(db *gorm.DB) *gorm.DB {
	return db.Where("is_active")
}

// %と_はそのまま検索語として扱う
func matchName(q string) func(*gorm.DB) *gorm.DB {
	q = strings.TrimSpace(q)
	return func(db *gorm.DB) *gorm.DB {
		if q == "" {
			return db
		}
		esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
		return db.Where("name ILIKE ?", "%"+esc+"%")
	}
}

func priceBetween(q repo.ProductListQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if q.MinPrice != nil {
			db = db.Where("price >= ?", *q.MinPrice)
		}
		if q.MaxPrice != nil {
			db = db.Where("price <= ?", *q.MaxPrice)
		}
		return db
	}
}

// 同値のときもページ間で順序が揺れないようidを添える
func sortBy(sort string) func(*gorm.DB) *gorm.DB {
	order := "created_at DESC, id DESC"
	switch sort {
	case "price_asc":
		order = "price ASC, id ASC"
	case "price_desc":
		order = "price DESC, id DESC"
	}
	return func(db *gorm.DB) *gorm.DB { return db.Order(order) }
}

func paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).Take(&p, id).Error; err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

// 無いIDは黙って落とす（呼び出し側で件数を比べる）
func (r *ProductGormRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	products := []model.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&products).Error; err != nil {
		return nil, translate(err)
	}
	return products, nil
}

func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

// stockは更新しない（在庫はInventoryRepositoryで履歴付きで変える）
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{ID: p.ID}).
		Select("name", "description", "price", "is_active", "sizes", "colors").
		Updates(&p)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ProductGormRepository) SoftDelete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
