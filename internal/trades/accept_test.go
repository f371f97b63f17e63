package trades

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/internal/ledger"
	"github.com/angelmondragon/barter-backend/internal/locks"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
)

var errInjected = errors.New("injected failure")

// faultyRepo performs the real write for failStep and then fails, so a
// missing rollback would be visible in the store.
type faultyRepo struct {
	Repository
	failStep string
}

func (r *faultyRepo) WithTx(tx *gorm.DB) Repository {
	return &faultyRepo{Repository: r.Repository.WithTx(tx), failStep: r.failStep}
}

func (r *faultyRepo) DeleteOwnerships(ctx context.Context, itemIDs []uint64) error {
	if err := r.Repository.DeleteOwnerships(ctx, itemIDs); err != nil || r.failStep != stepDeleteOwnership {
		return err
	}
	return errInjected
}

func (r *faultyRepo) DeletePosts(ctx context.Context, postIDs []uint64) error {
	if err := r.Repository.DeletePosts(ctx, postIDs); err != nil || r.failStep != stepDeletePosts {
		return err
	}
	return errInjected
}

func (r *faultyRepo) DeletePartnershipsWithoutPosts(ctx context.Context, ids []uint64) ([]uint64, error) {
	removed, err := r.Repository.DeletePartnershipsWithoutPosts(ctx, ids)
	if err != nil || r.failStep != stepDeletePartnerships {
		return removed, err
	}
	return nil, errInjected
}

func (r *faultyRepo) DeleteItems(ctx context.Context, itemIDs []uint64) error {
	if err := r.Repository.DeleteItems(ctx, itemIDs); err != nil || r.failStep != stepRetireItems {
		return err
	}
	return errInjected
}

type faultyLedger struct {
	ledger.Service
}

func (l faultyLedger) RecordTrade(ctx context.Context, tx *gorm.DB, input ledger.RecordTradeInput) (*models.TradeTransaction, error) {
	if _, err := l.Service.RecordTrade(ctx, tx, input); err != nil {
		return nil, err
	}
	return nil, errInjected
}

type faultyPublisher struct {
	inner outboxPublisher
}

func (p faultyPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if err := p.inner.Emit(ctx, tx, event); err != nil {
		return err
	}
	if event.EventType == enums.EventTradeAccepted {
		return errInjected
	}
	return nil
}

type contendedLocker struct{}

func (contendedLocker) LockItems(context.Context, ...uint64) (*locks.Held, error) {
	return nil, locks.ErrContended
}

func TestAcceptTrade_Scenario(t *testing.T) {
	store := newMemLockStore()
	itemLocker, err := locks.NewRedisItemLocker(store, 0)
	require.NoError(t, err)
	f := newFixture(t, func(d *Deps) { d.Locker = itemLocker })
	ctx := context.Background()

	proposed, err := f.svc.ProposeTrade(ctx, scenarioProposal())
	require.NoError(t, err)
	rival, err := f.svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID:      3,
		RequestingItemID: 20,
		RequestingAmount: 1,
		OfferingItemID:   30,
		OfferingAmount:   1,
		HashCode:         "rival-hash-1",
	})
	require.NoError(t, err)

	res, err := f.svc.AcceptTrade(ctx, proposed.PostID)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{proposed.PostID, rival.PostID}, res.RemovedPostIDs)
	require.ElementsMatch(t, []uint64{proposed.PartnershipID, rival.PartnershipID}, res.RemovedPartnershipIDs)
	require.ElementsMatch(t, []uint64{10, 20}, res.RetiredItemIDs)

	var history []models.TradeTransaction
	require.NoError(t, f.conn.Find(&history).Error)
	require.Len(t, history, 1)
	require.Equal(t, res.TransactionID, history[0].ID)
	require.Equal(t, uint64(1), history[0].User1ID)
	require.Equal(t, "Bike", history[0].User1ItemName)
	require.Equal(t, 1, history[0].User1ItemSold)
	require.Equal(t, uint64(2), history[0].User2ID)
	require.Equal(t, "Guitar", history[0].User2ItemName)
	require.Equal(t, 1, history[0].User2ItemSold)

	var owns int64
	require.NoError(t, f.conn.Model(&models.Owns{}).Where("item_id IN ?", []uint64{10, 20}).Count(&owns).Error)
	require.Zero(t, owns)

	after := f.snapshot(t)
	require.Zero(t, after["post"])
	require.Zero(t, after["partnership"])
	require.Equal(t, int64(1), after["item"], "only item 30 survives")
	require.Equal(t, int64(1), after["owns"])

	state, err := f.svc.TradeState(ctx, proposed.PostID)
	require.NoError(t, err)
	require.Equal(t, enums.TradeStateAccepted, state)

	require.Equal(t, []string{"bx:lock:item:10", "bx:lock:item:20"}, store.acquired)
	require.Empty(t, store.keys, "item locks released")

	_, err = f.svc.AcceptTrade(ctx, proposed.PostID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	require.NoError(t, f.conn.Find(&history).Error)
	require.Len(t, history, 1)
}

func TestAcceptTrade_RollsBackOnFailureAtEveryStep(t *testing.T) {
	steps := []string{
		stepRecordTransaction,
		stepDeleteOwnership,
		stepDeletePosts,
		stepDeletePartnerships,
		stepRetireItems,
		stepEmitAccepted,
	}
	for _, step := range steps {
		t.Run(step, func(t *testing.T) {
			f := newFixture(t, func(d *Deps) {
				switch step {
				case stepRecordTransaction:
					d.Ledger = faultyLedger{Service: d.Ledger}
				case stepEmitAccepted:
					d.Outbox = faultyPublisher{inner: d.Outbox}
				default:
					d.Repo = &faultyRepo{Repository: d.Repo, failStep: step}
				}
			})
			ctx := context.Background()

			proposed, err := f.svc.ProposeTrade(ctx, scenarioProposal())
			require.NoError(t, err)
			before := f.snapshot(t)

			_, err = f.svc.AcceptTrade(ctx, proposed.PostID)
			require.ErrorIs(t, err, errInjected)
			require.True(t, pkgerrors.Is(err, pkgerrors.CodeTransaction))
			require.Equal(t, map[string]any{"step": step}, pkgerrors.As(err).Details())

			require.Equal(t, before, f.snapshot(t))
			post, err := f.svc.GetPost(ctx, proposed.PostID)
			require.NoError(t, err)
			require.Equal(t, proposed.PartnershipID, post.PostingPartnershipID)
		})
	}
}

func TestAcceptTrade_ContendedItemsAreRetryable(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Locker = contendedLocker{} })
	ctx := context.Background()

	proposed, err := f.svc.ProposeTrade(ctx, scenarioProposal())
	require.NoError(t, err)
	before := f.snapshot(t)

	_, err = f.svc.AcceptTrade(ctx, proposed.PostID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	require.True(t, pkgerrors.As(err).Retryable())
	require.Equal(t, before, f.snapshot(t))
}

func TestAcceptTrade_HeldLockBlocksSecondAcceptor(t *testing.T) {
	store := newMemLockStore()
	itemLocker, err := locks.NewRedisItemLocker(store, 0)
	require.NoError(t, err)
	f := newFixture(t, func(d *Deps) { d.Locker = itemLocker })
	ctx := context.Background()

	proposed, err := f.svc.ProposeTrade(ctx, scenarioProposal())
	require.NoError(t, err)

	held, err := itemLocker.LockItems(ctx, 20)
	require.NoError(t, err)

	_, err = f.svc.AcceptTrade(ctx, proposed.PostID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))

	require.NoError(t, held.Release(ctx))
	_, err = f.svc.AcceptTrade(ctx, proposed.PostID)
	require.NoError(t, err)
}

func TestAcceptTrade_UnknownPost(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AcceptTrade(context.Background(), 404)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = f.svc.AcceptTrade(context.Background(), 0)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSettledPostCannotMoveAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	proposed, err := f.svc.ProposeTrade(ctx, scenarioProposal())
	require.NoError(t, err)
	require.NoError(t, f.conn.Create(&models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTradeAccepted,
		AggregateType: enums.AggregateTrade,
		AggregateID:   strconv.FormatUint(proposed.PostID, 10),
		Payload:       "{}",
	}).Error)
	before := f.snapshot(t)

	_, err = f.svc.AcceptTrade(ctx, proposed.PostID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "got %v", err)
	require.Equal(t, "trade is already accepted", pkgerrors.As(err).Message())
	require.Equal(t, map[string]any{"step": stepLoadPost, "state": "accepted", "target": "accepted"}, pkgerrors.As(err).Details())

	_, err = f.svc.CancelTrade(ctx, proposed.PostID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "got %v", err)

	require.Equal(t, before, f.snapshot(t))
	state, err := f.svc.TradeState(ctx, proposed.PostID)
	require.NoError(t, err)
	require.Equal(t, enums.TradeStateAccepted, state)
}
