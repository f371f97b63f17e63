package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
)

// Service records and reads the append-only trade history.
type Service interface {
	RecordTrade(ctx context.Context, tx *gorm.DB, input RecordTradeInput) (*models.TradeTransaction, error)
	ListForUser(ctx context.Context, userID uint64) ([]models.TradeTransaction, error)
}

type service struct {
	repo Repository
}

// RecordTradeInput captures both sides of a completed swap.
type RecordTradeInput struct {
	User1ID       uint64 `json:"user1_id"`
	User1ItemName string `json:"user1_itemName"`
	User1ItemSold int    `json:"user1_itemSold"`
	User2ID       uint64 `json:"user2_id"`
	User2ItemName string `json:"user2_itemName"`
	User2ItemSold int    `json:"user2_itemSold"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// RecordTrade appends one history row. When tx is set the row joins the
// caller's transaction.
func (s *service) RecordTrade(ctx context.Context, tx *gorm.DB, input RecordTradeInput) (*models.TradeTransaction, error) {
	if input.User1ID == 0 || input.User2ID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "both trade parties are required")
	}
	if input.User1ID == input.User2ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trade parties must differ")
	}
	if input.User1ItemSold < 1 || input.User2ItemSold < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "traded amounts must be positive")
	}

	record := &models.TradeTransaction{
		User1ID:       input.User1ID,
		User1ItemName: input.User1ItemName,
		User1ItemSold: input.User1ItemSold,
		User2ID:       input.User2ID,
		User2ItemName: input.User2ItemName,
		User2ItemSold: input.User2ItemSold,
	}
	if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) ListForUser(ctx context.Context, userID uint64) ([]models.TradeTransaction, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}
