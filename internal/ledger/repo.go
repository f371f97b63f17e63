package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/internal/repo"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
)

// Repository manages persistence for completed-trade records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.TradeTransaction) error
	ListByUser(ctx context.Context, userID uint64) ([]models.TradeTransaction, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, record *models.TradeTransaction) error {
	return r.DB(ctx).Create(record).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uint64) ([]models.TradeTransaction, error) {
	var records []models.TradeTransaction
	if err := r.DB(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("transaction_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
