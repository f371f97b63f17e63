package items

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/metrics"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
	"github.com/angelmondragon/barter-backend/pkg/outbox/payloads"
)

// RandomItemsLimit is the number of items returned by ListRandomItems.
const RandomItemsLimit = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the ownership ledger: items, their single current owner, and categories.
type Service interface {
	ListItem(ctx context.Context, input ListItemInput) (*ListItemResult, error)
	GetItem(ctx context.Context, itemID uint64) (*models.Item, error)
	ListItems(ctx context.Context) ([]models.Item, error)
	ListRandomItems(ctx context.Context) ([]models.Item, error)
	UpdateItem(ctx context.Context, itemID uint64, input UpdateItemInput) error
	DeleteItem(ctx context.Context, itemID uint64) error
	ListOwnedItems(ctx context.Context, userID uint64) ([]models.Item, error)
	GetOwnedItem(ctx context.Context, userID, itemID uint64) (*models.Item, error)
	ListOtherItems(ctx context.Context, userID uint64) ([]models.Item, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CurrentOwner(ctx context.Context, tx *gorm.DB, itemID uint64) (*models.Owns, error)
}

// ListItemInput carries the item attributes plus its owner and broker.
type ListItemInput struct {
	Name         string          `json:"name"`
	Value        decimal.Decimal `json:"value"`
	TransferCost decimal.Decimal `json:"transfer_cost"`
	CategoryID   *uint64         `json:"category_id"`
	Condition    string          `json:"condition"`
	UserID       uint64          `json:"user_id"`
	FriendUserID uint64          `json:"friend_user_id"`
}

type ListItemResult struct {
	ItemID uint64 `json:"item_id"`
}

type UpdateItemInput struct {
	Name         string          `json:"name"`
	Value        decimal.Decimal `json:"value"`
	TransferCost decimal.Decimal `json:"transfer_cost"`
}

type service struct {
	tx      txRunner
	repo    Repository
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.CoordinatorMetrics
}

// NewService builds the ownership ledger service.
func NewService(tx txRunner, repo Repository, publisher outboxPublisher, logg *logger.Logger, m *metrics.CoordinatorMetrics) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("items repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{tx: tx, repo: repo, outbox: publisher, logg: logg, metrics: m}, nil
}

func (s *service) ListItem(ctx context.Context, input ListItemInput) (result *ListItemResult, err error) {
	if input.UserID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "User ID is required")
	}
	if input.FriendUserID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Friend User ID is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	if input.Value.IsNegative() || input.TransferCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "value and transfer cost must not be negative")
	}

	started := time.Now()
	defer func() { s.metrics.Observe("list_item", started, err) }()

	broker := input.FriendUserID
	item := &models.Item{
		Name:         name,
		Value:        input.Value,
		TransferCost: input.TransferCost,
		CategoryID:   input.CategoryID,
		Condition:    strings.TrimSpace(input.Condition),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateItem(ctx, item); err != nil {
			return db.Classify(err, "insert_item")
		}
		owns := &models.Owns{
			UserID:               input.UserID,
			ItemID:               item.ID,
			IntermediaryFriendID: &broker,
		}
		if err := repo.CreateOwnership(ctx, owns); err != nil {
			return db.Classify(err, "insert_ownership")
		}
		return db.Classify(s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventItemListed,
			AggregateType: enums.AggregateItem,
			AggregateID:   item.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			Data: payloads.ItemListedEvent{
				ItemID:   item.ID,
				OwnerID:  input.UserID,
				BrokerID: broker,
				Name:     item.Name,
			},
		}), "emit_item_listed")
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, input.UserID), map[string]any{
			"item_id":   item.ID,
			"broker_id": broker,
		})
		s.logg.Info(logCtx, "item listed")
	}
	return &ListItemResult{ItemID: item.ID}, nil
}

func (s *service) GetItem(ctx context.Context, itemID uint64) (*models.Item, error) {
	if itemID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	return s.repo.FindItem(ctx, itemID)
}

func (s *service) ListItems(ctx context.Context) ([]models.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *service) ListRandomItems(ctx context.Context) ([]models.Item, error) {
	return s.repo.ListRandomItems(ctx, RandomItemsLimit)
}

func (s *service) UpdateItem(ctx context.Context, itemID uint64, input UpdateItemInput) error {
	if itemID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	if input.Value.IsNegative() || input.TransferCost.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "value and transfer cost must not be negative")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindItem(ctx, itemID); err != nil {
			return err
		}
		return db.Classify(repo.UpdateItem(ctx, itemID, map[string]any{
			"name":          name,
			"value":         input.Value,
			"transfer_cost": input.TransferCost,
		}), "update_item")
	})
}

// DeleteItem removes the item and its ownership row together. Items still
// referenced by a post are refused.
func (s *service) DeleteItem(ctx context.Context, itemID uint64) (err error) {
	if itemID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	started := time.Now()
	defer func() { s.metrics.Observe("delete_item", started, err) }()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		refs, err := repo.CountPostsReferencing(ctx, itemID)
		if err != nil {
			return db.Classify(err, "count_posts")
		}
		if refs > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "Item is referenced by an open trade").
				WithDetails(map[string]any{"item_id": itemID, "posts": refs})
		}
		if err := repo.DeleteOwnership(ctx, itemID); err != nil {
			return db.Classify(err, "delete_ownership")
		}
		deleted, err := repo.DeleteItem(ctx, itemID)
		if err != nil {
			return db.Classify(err, "delete_item")
		}
		if deleted == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, msgItemNotFound)
		}
		return nil
	})
}

func (s *service) ListOwnedItems(ctx context.Context, userID uint64) ([]models.Item, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListOwnedItems(ctx, userID)
}

func (s *service) GetOwnedItem(ctx context.Context, userID, itemID uint64) (*models.Item, error) {
	if userID == 0 || itemID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and item id are required")
	}
	return s.repo.FindOwnedItem(ctx, userID, itemID)
}

func (s *service) ListOtherItems(ctx context.Context, userID uint64) ([]models.Item, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListOtherItems(ctx, userID)
}

func (s *service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.repo.ListCategories(ctx)
}

// CurrentOwner returns the ownership row for itemID, read through tx when set.
func (s *service) CurrentOwner(ctx context.Context, tx *gorm.DB, itemID uint64) (*models.Owns, error) {
	if itemID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	return s.repo.WithTx(tx).FindOwner(ctx, itemID)
}
