package trades

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
)

func TestProposeTrade_CreatesPartnershipAndPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ProposeTrade(ctx, scenarioProposal())
	require.NoError(t, err)

	var partnership models.Partnership
	require.NoError(t, f.conn.First(&partnership, res.PartnershipID).Error)
	require.Equal(t, uint64(1), partnership.User1ID)
	require.Equal(t, uint64(2), partnership.User2ID)
	require.True(t, partnership.User1Accepted)
	require.False(t, partnership.User2Accepted)
	require.Equal(t, "abcdef12", partnership.User1LeadingHash)

	post, err := f.svc.GetPost(ctx, res.PostID)
	require.NoError(t, err)
	require.Equal(t, res.PartnershipID, post.PostingPartnershipID)
	require.Equal(t, uint64(20), post.RequestingItemID)
	require.Equal(t, uint64(10), post.OfferingItemID)
	require.True(t, post.IsNegotiable)
	require.Equal(t, "abcdef1234", post.HashCode)

	state, err := f.svc.TradeState(ctx, res.PostID)
	require.NoError(t, err)
	require.Equal(t, enums.TradeStateProposed, state)
}

func TestProposeTrade_Validation(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot(t)

	cases := map[string]struct {
		mutate  func(*ProposeTradeInput)
		message string
	}{
		"missing initiator": {mutate: func(in *ProposeTradeInput) { in.InitiatorID = 0 }, message: "Required fields are missing"},
		"missing requested": {mutate: func(in *ProposeTradeInput) { in.RequestingItemID = 0 }, message: "Required fields are missing"},
		"same item":         {mutate: func(in *ProposeTradeInput) { in.OfferingItemID = in.RequestingItemID }},
		"zero amount":       {mutate: func(in *ProposeTradeInput) { in.OfferingAmount = 0 }},
		"short hash":        {mutate: func(in *ProposeTradeInput) { in.HashCode = "abc" }},
		"blank hash":        {mutate: func(in *ProposeTradeInput) { in.HashCode = "        " }},
		"long hash":         {mutate: func(in *ProposeTradeInput) { in.HashCode = strings.Repeat("a", 256) }},
		"invalid utf8 hash": {mutate: func(in *ProposeTradeInput) { in.HashCode = "abcdefg\xff" }},
		"own item":          {mutate: func(in *ProposeTradeInput) { in.RequestingItemID = 10; in.OfferingItemID = 20 }},
		"offer not owned":   {mutate: func(in *ProposeTradeInput) { in.OfferingItemID = 30 }},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := scenarioProposal()
			tc.mutate(&in)
			_, err := f.svc.ProposeTrade(context.Background(), in)
			require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
			if tc.message != "" {
				require.Equal(t, tc.message, pkgerrors.As(err).Message())
			}
		})
	}
	require.Equal(t, before, f.snapshot(t))
}

func TestProposeTrade_KeepsHashCodeAsSupplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := scenarioProposal()
	in.HashCode = " äöüßéèêë-42 "
	res, err := f.svc.ProposeTrade(ctx, in)
	require.NoError(t, err)

	var partnership models.Partnership
	require.NoError(t, f.conn.First(&partnership, res.PartnershipID).Error)
	require.Equal(t, " äöüßéèê", partnership.User1LeadingHash)
	require.True(t, utf8.ValidString(partnership.User1LeadingHash))

	post, err := f.svc.GetPost(ctx, res.PostID)
	require.NoError(t, err)
	require.Equal(t, " äöüßéèêë-42 ", post.HashCode)
}

func TestProposeTrade_RequestedItemWithoutOwner(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Where("item_id = ?", 20).Delete(&models.Owns{}).Error)

	_, err := f.svc.ProposeTrade(context.Background(), scenarioProposal())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	require.Equal(t, "No user found for the requested item", pkgerrors.As(err).Message())
}

func TestProposeThenCancel_LeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.snapshot(t)

	res, err := f.svc.ProposeTrade(ctx, scenarioProposal())
	require.NoError(t, err)

	cancelled, err := f.svc.CancelTrade(ctx, res.PostID)
	require.NoError(t, err)
	require.True(t, cancelled.PartnershipRemoved)

	after := f.snapshot(t)
	require.Zero(t, after["post"])
	require.Zero(t, after["partnership"])
	require.Equal(t, before["owns"], after["owns"])
	require.Equal(t, before["outbox_events"]+2, after["outbox_events"])

	state, err := f.svc.TradeState(ctx, res.PostID)
	require.NoError(t, err)
	require.Equal(t, enums.TradeStateRejected, state)

	_, err = f.svc.CancelTrade(ctx, res.PostID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	require.Equal(t, "Post not found", pkgerrors.As(err).Message())
}

func TestCancelTrade_StoreFailuresAreTyped(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.ProposeTrade(context.Background(), scenarioProposal())
	require.NoError(t, err)

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err = f.svc.CancelTrade(expired, res.PostID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	require.True(t, pkgerrors.As(err).Retryable())

	require.NoError(t, f.client.Close())
	_, err = f.svc.CancelTrade(context.Background(), res.PostID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeTransaction), "got %v", err)
	require.Equal(t, map[string]any{"step": "begin"}, pkgerrors.As(err).Details())
}

func TestCancelTrade_KeepsPartnershipWithOtherPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ProposeTrade(ctx, scenarioProposal())
	require.NoError(t, err)
	sibling := models.Post{
		PostingPartnershipID: res.PartnershipID,
		RequestingItemID:     20,
		RequestingAmount:     2,
		OfferingItemID:       10,
		OfferingAmount:       3,
		HashCode:             "abcdef9999",
	}
	require.NoError(t, f.conn.Create(&sibling).Error)

	cancelled, err := f.svc.CancelTrade(ctx, res.PostID)
	require.NoError(t, err)
	require.False(t, cancelled.PartnershipRemoved)

	var partnerships int64
	require.NoError(t, f.conn.Model(&models.Partnership{}).Count(&partnerships).Error)
	require.Equal(t, int64(1), partnerships)

	cancelled, err = f.svc.CancelTrade(ctx, sibling.ID)
	require.NoError(t, err)
	require.True(t, cancelled.PartnershipRemoved)
}

func TestPostReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ProposeTrade(ctx, scenarioProposal())
	require.NoError(t, err)
	second, err := f.svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID:      3,
		RequestingItemID: 20,
		RequestingAmount: 1,
		OfferingItemID:   30,
		OfferingAmount:   2,
		HashCode:         "zzzzzzzz99",
	})
	require.NoError(t, err)

	posts, err := f.svc.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	full, err := f.svc.ListFullPosts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, full, 2)
	require.Equal(t, first.PostID, full[0].PostID)
	require.Equal(t, "Guitar", full[0].RequestingItemName)
	require.Equal(t, "Bike", full[0].OfferingItemName)
	require.True(t, full[0].IsNegotiable)
	require.False(t, full[1].IsNegotiable)

	limited, err := f.svc.ListFullPosts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	mine, err := f.svc.ListUserPosts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, second.PostID, mine[0].PostID)
	require.Equal(t, "Camera", mine[0].OfferingItemName)

	requested, err := f.svc.ListRequestedPosts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, requested, 2)
	require.False(t, requested[0].User2Accepted)

	none, err := f.svc.ListRequestedPosts(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = f.svc.GetPost(ctx, 999)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	_, err = f.svc.TradeState(ctx, 999)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestTradeStateOf(t *testing.T) {
	require.Equal(t, enums.TradeStateProposed, TradeStateOf(true, false))
	require.Equal(t, enums.TradeStateProposed, TradeStateOf(true, true))
	require.Equal(t, enums.TradeStateAccepted, TradeStateOf(false, true))
	require.Equal(t, enums.TradeStateRejected, TradeStateOf(false, false))
	require.True(t, TradeStateOf(true, false).CanTransition(enums.TradeStateAccepted))
	require.False(t, TradeStateOf(false, true).CanTransition(enums.TradeStateRejected))
}

func TestReplayTradeState(t *testing.T) {
	event := func(eventType enums.OutboxEventType) models.OutboxEvent {
		return models.OutboxEvent{EventType: eventType, AggregateType: enums.AggregateTrade}
	}
	cases := []struct {
		name       string
		postExists bool
		history    []models.OutboxEvent
		want       enums.TradeState
		known      bool
	}{
		{name: "live post without events", postExists: true, want: enums.TradeStateProposed, known: true},
		{name: "live post", postExists: true, history: []models.OutboxEvent{event(enums.EventTradeProposed)}, want: enums.TradeStateProposed, known: true},
		{name: "accepted", history: []models.OutboxEvent{event(enums.EventTradeProposed), event(enums.EventTradeAccepted)}, want: enums.TradeStateAccepted, known: true},
		{name: "cancelled", history: []models.OutboxEvent{event(enums.EventTradeProposed), event(enums.EventTradeCancelled)}, want: enums.TradeStateRejected, known: true},
		{name: "superseded by another trade", history: []models.OutboxEvent{event(enums.EventTradeProposed)}, want: enums.TradeStateRejected, known: true},
		{name: "settled row still present", postExists: true, history: []models.OutboxEvent{event(enums.EventTradeAccepted)}, want: enums.TradeStateAccepted, known: true},
		{name: "other aggregate only", history: []models.OutboxEvent{{EventType: enums.EventTradeAccepted, AggregateType: enums.AggregateItem}}},
		{name: "nothing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, known := replayTradeState(tc.postExists, tc.history)
			require.Equal(t, tc.known, known)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}
