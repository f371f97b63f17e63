package items

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/internal/repo"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
)

const (
	msgItemNotFound  = "Item not found"
	msgOwnerNotFound = "Item has no current owner"
)

// Repository manages item, ownership and category persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateItem(ctx context.Context, item *models.Item) error
	CreateOwnership(ctx context.Context, owns *models.Owns) error
	FindItem(ctx context.Context, itemID uint64) (*models.Item, error)
	ListItems(ctx context.Context) ([]models.Item, error)
	ListRandomItems(ctx context.Context, limit int) ([]models.Item, error)
	UpdateItem(ctx context.Context, itemID uint64, updates map[string]any) error
	DeleteItem(ctx context.Context, itemID uint64) (int64, error)
	DeleteOwnership(ctx context.Context, itemID uint64) error
	CountPostsReferencing(ctx context.Context, itemID uint64) (int64, error)
	FindOwner(ctx context.Context, itemID uint64) (*models.Owns, error)
	ListOwnedItems(ctx context.Context, userID uint64) ([]models.Item, error)
	FindOwnedItem(ctx context.Context, userID, itemID uint64) (*models.Item, error)
	ListOtherItems(ctx context.Context, userID uint64) ([]models.Item, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns an items repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) CreateItem(ctx context.Context, item *models.Item) error {
	return r.DB(ctx).Create(item).Error
}

func (r *repository) CreateOwnership(ctx context.Context, owns *models.Owns) error {
	return r.DB(ctx).Create(owns).Error
}

func (r *repository) FindItem(ctx context.Context, itemID uint64) (*models.Item, error) {
	var item models.Item
	if err := r.DB(ctx).Where("item_id = ?", itemID).First(&item).Error; err != nil {
		return nil, repo.NotFound(err, msgItemNotFound)
	}
	return &item, nil
}

func (r *repository) ListItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	if err := r.DB(ctx).Order("item_id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListRandomItems(ctx context.Context, limit int) ([]models.Item, error) {
	db := r.DB(ctx)
	var items []models.Item
	if err := db.Order(repo.RandomOrder(db)).Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpdateItem(ctx context.Context, itemID uint64, updates map[string]any) error {
	return r.DB(ctx).Model(&models.Item{}).Where("item_id = ?", itemID).Updates(updates).Error
}

func (r *repository) DeleteItem(ctx context.Context, itemID uint64) (int64, error) {
	res := r.DB(ctx).Where("item_id = ?", itemID).Delete(&models.Item{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteOwnership(ctx context.Context, itemID uint64) error {
	return r.DB(ctx).Where("item_id = ?", itemID).Delete(&models.Owns{}).Error
}

func (r *repository) CountPostsReferencing(ctx context.Context, itemID uint64) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Post{}).
		Where("requesting_item_id = ? OR offering_item_id = ?", itemID, itemID).
		Count(&count).Error
	return count, err
}

func (r *repository) FindOwner(ctx context.Context, itemID uint64) (*models.Owns, error) {
	var owns models.Owns
	if err := r.DB(ctx).Where("item_id = ?", itemID).First(&owns).Error; err != nil {
		return nil, repo.NotFound(err, msgOwnerNotFound)
	}
	return &owns, nil
}

func (r *repository) ListOwnedItems(ctx context.Context, userID uint64) ([]models.Item, error) {
	var items []models.Item
	if err := r.ownedItems(ctx, userID).Order("item.item_id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindOwnedItem(ctx context.Context, userID, itemID uint64) (*models.Item, error) {
	var item models.Item
	if err := r.ownedItems(ctx, userID).Where("owns.item_id = ?", itemID).First(&item).Error; err != nil {
		return nil, repo.NotFound(err, msgItemNotFound)
	}
	return &item, nil
}

func (r *repository) ownedItems(ctx context.Context, userID uint64) *gorm.DB {
	return r.DB(ctx).Model(&models.Item{}).
		Joins("JOIN owns ON owns.item_id = item.item_id").
		Where("owns.user_id = ?", userID)
}

func (r *repository) ListOtherItems(ctx context.Context, userID uint64) ([]models.Item, error) {
	var items []models.Item
	err := r.DB(ctx).
		Where("NOT EXISTS (SELECT 1 FROM owns WHERE owns.item_id = item.item_id AND owns.user_id = ?)", userID).
		Order("item_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := r.DB(ctx).Order("category_id ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}
