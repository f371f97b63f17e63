package trades

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/internal/ledger"
	"github.com/angelmondragon/barter-backend/internal/locks"
	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/metrics"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
	"github.com/angelmondragon/barter-backend/pkg/outbox/payloads"
)

const (
	leadingHashLength = 8
	minHashLength     = leadingHashLength
	maxHashLength     = 255
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ownerLookup interface {
	CurrentOwner(ctx context.Context, tx *gorm.DB, itemID uint64) (*models.Owns, error)
}

type eventHistory interface {
	ListByAggregate(tx *gorm.DB, aggregateID string) ([]models.OutboxEvent, error)
}

// Service coordinates the trade lifecycle: propose, cancel and accept.
type Service interface {
	ProposeTrade(ctx context.Context, input ProposeTradeInput) (*ProposeTradeResult, error)
	CancelTrade(ctx context.Context, postID uint64) (*CancelTradeResult, error)
	AcceptTrade(ctx context.Context, postID uint64) (*AcceptTradeResult, error)
	TradeState(ctx context.Context, postID uint64) (enums.TradeState, error)
	GetPost(ctx context.Context, postID uint64) (*models.Post, error)
	ListPosts(ctx context.Context) ([]models.Post, error)
	ListFullPosts(ctx context.Context, limit int) ([]FullPost, error)
	ListUserPosts(ctx context.Context, userID uint64) ([]PostSummary, error)
	ListRequestedPosts(ctx context.Context, userID uint64) ([]PostSummary, error)
}

// Deps groups the collaborators of the trade service.
type Deps struct {
	Tx      txRunner
	Repo    Repository
	Ledger  ledger.Service
	Owners  ownerLookup
	Outbox  outboxPublisher
	Locker  locks.ItemLocker
	Events  eventHistory
	Logger  *logger.Logger
	Metrics *metrics.CoordinatorMetrics
}

type service struct {
	tx      txRunner
	repo    Repository
	ledger  ledger.Service
	owners  ownerLookup
	outbox  outboxPublisher
	locker  locks.ItemLocker
	events  eventHistory
	logg    *logger.Logger
	metrics *metrics.CoordinatorMetrics
}

// NewService builds the trade coordinator. A nil locker falls back to row locks only.
func NewService(deps Deps) (Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("trades repository required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if deps.Owners == nil {
		return nil, fmt.Errorf("owner lookup required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	locker := deps.Locker
	if locker == nil {
		locker = locks.NoopItemLocker{}
	}
	return &service{
		tx:      deps.Tx,
		repo:    deps.Repo,
		ledger:  deps.Ledger,
		owners:  deps.Owners,
		outbox:  deps.Outbox,
		locker:  locker,
		events:  deps.Events,
		logg:    deps.Logger,
		metrics: deps.Metrics,
	}, nil
}

func validateProposal(input ProposeTradeInput) error {
	if input.InitiatorID == 0 || input.RequestingItemID == 0 || input.OfferingItemID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "Required fields are missing")
	}
	if input.RequestingItemID == input.OfferingItemID {
		return pkgerrors.New(pkgerrors.CodeValidation, "requested and offered items must differ")
	}
	if input.RequestingAmount < 1 || input.OfferingAmount < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amounts must be at least 1")
	}
	if !utf8.ValidString(input.HashCode) || strings.TrimSpace(input.HashCode) == "" ||
		utf8.RuneCountInString(input.HashCode) < minHashLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("hash code must be at least %d characters", minHashLength))
	}
	if utf8.RuneCountInString(input.HashCode) > maxHashLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("hash code must be at most %d characters", maxHashLength))
	}
	return nil
}

func (s *service) ProposeTrade(ctx context.Context, input ProposeTradeInput) (result *ProposeTradeResult, err error) {
	if err := validateProposal(input); err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() { s.metrics.Observe("propose_trade", started, err) }()

	counterparty, err := s.resolveCounterparty(ctx, nil, input.RequestingItemID)
	if err != nil {
		return nil, err
	}
	if counterparty == input.InitiatorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot propose a trade for your own item")
	}

	hash := input.HashCode
	partnership := &models.Partnership{
		User1ID:          input.InitiatorID,
		User2ID:          counterparty,
		User1Accepted:    true,
		User2Accepted:    false,
		User1LeadingHash: leadingHash(hash),
	}
	post := &models.Post{
		RequestingItemID: input.RequestingItemID,
		RequestingAmount: input.RequestingAmount,
		OfferingItemID:   input.OfferingItemID,
		OfferingAmount:   input.OfferingAmount,
		IsNegotiable:     input.IsNegotiable,
		HashCode:         hash,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		offered, err := s.owners.CurrentOwner(ctx, tx, input.OfferingItemID)
		if err != nil && !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return db.Classify(err, "verify_offering_owner")
		}
		if offered == nil || offered.UserID != input.InitiatorID {
			return pkgerrors.New(pkgerrors.CodeValidation, "offered item is not owned by the initiator")
		}
		current, err := s.resolveCounterparty(ctx, tx, input.RequestingItemID)
		if err != nil {
			return err
		}
		if current != counterparty {
			return pkgerrors.New(pkgerrors.CodeConflict, "requested item changed owner")
		}

		repo := s.repo.WithTx(tx)
		if err := repo.CreatePartnership(ctx, partnership); err != nil {
			return db.Classify(err, "insert_partnership")
		}
		post.PostingPartnershipID = partnership.ID
		if err := repo.CreatePost(ctx, post); err != nil {
			return db.Classify(err, "insert_post")
		}
		return db.Classify(s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTradeProposed,
			AggregateType: enums.AggregateTrade,
			AggregateID:   post.ID,
			Actor:         &outbox.ActorRef{UserID: input.InitiatorID},
			Data: payloads.TradeProposedEvent{
				PostID:           post.ID,
				PartnershipID:    partnership.ID,
				InitiatorID:      input.InitiatorID,
				CounterpartyID:   counterparty,
				RequestingItemID: input.RequestingItemID,
				OfferingItemID:   input.OfferingItemID,
				Negotiable:       input.IsNegotiable,
			},
		}), "emit_trade_proposed")
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithPostID(s.logg.WithUserID(ctx, input.InitiatorID), post.ID), map[string]any{
			"partnership_id":  partnership.ID,
			"counterparty_id": counterparty,
		})
		s.logg.Info(logCtx, "trade proposed")
	}
	return &ProposeTradeResult{PartnershipID: partnership.ID, PostID: post.ID}, nil
}

// leadingHash is the first leadingHashLength characters of code.
func leadingHash(code string) string {
	runes := []rune(code)
	return string(runes[:min(len(runes), leadingHashLength)])
}

func (s *service) resolveCounterparty(ctx context.Context, tx *gorm.DB, itemID uint64) (uint64, error) {
	owner, err := s.owners.CurrentOwner(ctx, tx, itemID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "No user found for the requested item")
		}
		return 0, db.Classify(err, "resolve_counterparty")
	}
	return owner.UserID, nil
}

// CancelTrade withdraws a post and drops its partnership once no post remains.
func (s *service) CancelTrade(ctx context.Context, postID uint64) (result *CancelTradeResult, err error) {
	if postID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "post id is required")
	}

	started := time.Now()
	defer func() { s.metrics.Observe("cancel_trade", started, err) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		post, err := repo.LockPost(ctx, postID)
		if err != nil {
			return db.Classify(err, "load_post")
		}
		partnership, err := repo.FindPartnership(ctx, post.PostingPartnershipID)
		if err != nil {
			return db.Classify(err, "load_partnership")
		}
		if err := s.guardTransition(tx, postID, enums.TradeStateRejected, "load_post"); err != nil {
			return err
		}
		if err := repo.DeletePost(ctx, postID); err != nil {
			return db.Classify(err, "delete_post")
		}
		remaining, err := repo.CountPosts(ctx, post.PostingPartnershipID)
		if err != nil {
			return db.Classify(err, "count_posts")
		}
		result = &CancelTradeResult{PostID: postID, PartnershipID: post.PostingPartnershipID}
		if remaining == 0 {
			if err := repo.DeletePartnership(ctx, post.PostingPartnershipID); err != nil {
				return db.Classify(err, "delete_partnership")
			}
			result.PartnershipRemoved = true
		}
		return db.Classify(s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTradeCancelled,
			AggregateType: enums.AggregateTrade,
			AggregateID:   postID,
			Actor:         &outbox.ActorRef{UserID: partnership.User1ID},
			Data: payloads.TradeCancelledEvent{
				PostID:             postID,
				PartnershipID:      result.PartnershipID,
				PartnershipRemoved: result.PartnershipRemoved,
			},
		}), "emit_trade_cancelled")
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithPostID(ctx, postID), map[string]any{
			"partnership_id":      result.PartnershipID,
			"partnership_removed": result.PartnershipRemoved,
		})
		s.logg.Info(logCtx, "trade cancelled")
	}
	return result, nil
}

// TradeState reports where a post is in its lifecycle. Posts that are gone
// are resolved from the trade events recorded for them.
func (s *service) TradeState(ctx context.Context, postID uint64) (enums.TradeState, error) {
	if postID == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "post id is required")
	}
	_, err := s.repo.FindPost(ctx, postID)
	if err != nil && !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return "", err
	}
	return s.stateOf(nil, postID, err == nil)
}

func (s *service) GetPost(ctx context.Context, postID uint64) (*models.Post, error) {
	if postID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "post id is required")
	}
	return s.repo.FindPost(ctx, postID)
}

func (s *service) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.repo.ListPosts(ctx)
}

func (s *service) ListFullPosts(ctx context.Context, limit int) ([]FullPost, error) {
	if limit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must not be negative")
	}
	return s.repo.ListFullPosts(ctx, limit)
}

func (s *service) ListUserPosts(ctx context.Context, userID uint64) ([]PostSummary, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListPostSummaries(ctx, SummaryFilter{InitiatorID: userID})
}

func (s *service) ListRequestedPosts(ctx context.Context, userID uint64) ([]PostSummary, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListPostSummaries(ctx, SummaryFilter{CounterpartyID: userID, OnlyUnanswered: true})
}
