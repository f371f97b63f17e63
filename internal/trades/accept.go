package trades

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/internal/ledger"
	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
	"github.com/angelmondragon/barter-backend/pkg/outbox/payloads"
)

// Steps of an acceptance, used as details.step on failures.
const (
	stepLoadPost           = "load_post"
	stepRecordTransaction  = "record_transaction"
	stepDeleteOwnership    = "delete_ownership"
	stepDeletePosts        = "delete_posts"
	stepDeletePartnerships = "delete_partnerships"
	stepRetireItems        = "retire_items"
	stepEmitAccepted       = "emit_trade_accepted"
)

// AcceptTrade completes the swap described by the post. The history row,
// ownership removal, post and partnership cleanup and item retirement commit
// together or not at all.
func (s *service) AcceptTrade(ctx context.Context, postID uint64) (result *AcceptTradeResult, err error) {
	if postID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "post id is required")
	}

	started := time.Now()
	defer func() { s.metrics.Observe("accept_trade", started, err) }()

	post, err := s.repo.FindPost(ctx, postID)
	if err != nil {
		return nil, db.Classify(err, stepLoadPost)
	}

	held, err := s.locker.LockItems(ctx, post.RequestingItemID, post.OfferingItemID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := held.Release(context.WithoutCancel(ctx)); relErr != nil && s.logg != nil {
			lockCtx := s.logg.WithItemIDs(s.logg.WithPostID(ctx, postID), post.RequestingItemID, post.OfferingItemID)
			s.logg.Error(lockCtx, "release item locks", relErr)
		}
	}()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.acceptInTx(ctx, tx, postID)
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithItemIDs(s.logg.WithPostID(ctx, postID), result.RetiredItemIDs...)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"transaction_id":          result.TransactionID,
			"removed_post_ids":        result.RemovedPostIDs,
			"removed_partnership_ids": result.RemovedPartnershipIDs,
		})
		s.logg.Info(logCtx, "trade accepted")
	}
	return result, nil
}

func (s *service) acceptInTx(ctx context.Context, tx *gorm.DB, postID uint64) (*AcceptTradeResult, error) {
	repo := s.repo.WithTx(tx)

	post, err := repo.LockPost(ctx, postID)
	if err != nil {
		return nil, db.Classify(err, stepLoadPost)
	}
	partnership, err := repo.FindPartnership(ctx, post.PostingPartnershipID)
	if err != nil {
		return nil, db.Classify(err, stepLoadPost)
	}
	itemIDs := []uint64{post.RequestingItemID, post.OfferingItemID}
	items, err := repo.FindItems(ctx, itemIDs)
	if err != nil {
		return nil, db.Classify(err, stepLoadPost)
	}
	requested, okRequested := items[post.RequestingItemID]
	offered, okOffered := items[post.OfferingItemID]
	if !okRequested || !okOffered {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Item not found").
			WithDetails(map[string]any{"step": stepLoadPost})
	}

	if err := s.guardTransition(tx, postID, enums.TradeStateAccepted, stepLoadPost); err != nil {
		return nil, err
	}

	record, err := s.ledger.RecordTrade(ctx, tx, ledger.RecordTradeInput{
		User1ID:       partnership.User1ID,
		User1ItemName: offered.Name,
		User1ItemSold: post.OfferingAmount,
		User2ID:       partnership.User2ID,
		User2ItemName: requested.Name,
		User2ItemSold: post.RequestingAmount,
	})
	if err != nil {
		return nil, db.Classify(err, stepRecordTransaction)
	}

	if err := repo.DeleteOwnerships(ctx, itemIDs); err != nil {
		return nil, db.Classify(err, stepDeleteOwnership)
	}

	touching, err := repo.PostsTouchingItems(ctx, itemIDs)
	if err != nil {
		return nil, db.Classify(err, stepDeletePosts)
	}
	postIDs := make([]uint64, 0, len(touching))
	partnershipIDs := make([]uint64, 0, len(touching))
	seen := make(map[uint64]struct{}, len(touching))
	for _, p := range touching {
		postIDs = append(postIDs, p.ID)
		if _, ok := seen[p.PostingPartnershipID]; !ok {
			seen[p.PostingPartnershipID] = struct{}{}
			partnershipIDs = append(partnershipIDs, p.PostingPartnershipID)
		}
	}
	if err := repo.DeletePosts(ctx, postIDs); err != nil {
		return nil, db.Classify(err, stepDeletePosts)
	}

	removedPartnerships, err := repo.DeletePartnershipsWithoutPosts(ctx, partnershipIDs)
	if err != nil {
		return nil, db.Classify(err, stepDeletePartnerships)
	}

	if err := repo.DeleteItems(ctx, itemIDs); err != nil {
		return nil, db.Classify(err, stepRetireItems)
	}

	result := &AcceptTradeResult{
		PostID:                postID,
		TransactionID:         record.ID,
		RetiredItemIDs:        itemIDs,
		RemovedPostIDs:        postIDs,
		RemovedPartnershipIDs: removedPartnerships,
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTradeAccepted,
		AggregateType: enums.AggregateTrade,
		AggregateID:   postID,
		Actor:         &outbox.ActorRef{UserID: partnership.User2ID},
		Data: payloads.TradeAcceptedEvent{
			PostID:                postID,
			TransactionID:         record.ID,
			User1ID:               partnership.User1ID,
			User2ID:               partnership.User2ID,
			RetiredItemIDs:        result.RetiredItemIDs,
			RemovedPostIDs:        result.RemovedPostIDs,
			RemovedPartnershipIDs: result.RemovedPartnershipIDs,
		},
	}); err != nil {
		return nil, db.Classify(err, stepEmitAccepted)
	}
	return result, nil
}
