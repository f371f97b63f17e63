package trades

import (
	"strconv"

	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
)

// TradeStateOf derives a post's lifecycle state from what the store still holds.
// A live post is proposed; a gone post is accepted when a completed trade was
// recorded for it and rejected otherwise.
func TradeStateOf(postExists, historyExists bool) enums.TradeState {
	switch {
	case postExists:
		return enums.TradeStateProposed
	case historyExists:
		return enums.TradeStateAccepted
	default:
		return enums.TradeStateRejected
	}
}

// replayTradeState folds the trade events recorded for a post over whether its
// row still exists. A settling event wins over a surviving row. known is false
// when neither the row nor any proposal event exists.
func replayTradeState(postExists bool, history []models.OutboxEvent) (state enums.TradeState, known bool) {
	var proposed, accepted, cancelled bool
	for _, event := range history {
		if event.AggregateType != enums.AggregateTrade {
			continue
		}
		switch event.EventType {
		case enums.EventTradeProposed:
			proposed = true
		case enums.EventTradeAccepted:
			accepted = true
		case enums.EventTradeCancelled:
			cancelled = true
		}
	}
	switch {
	case accepted:
		return TradeStateOf(false, true), true
	case cancelled:
		return TradeStateOf(false, false), true
	case postExists, proposed:
		return TradeStateOf(postExists, false), true
	}
	return "", false
}

// stateOf reads the post's event history through tx (nil reads outside any
// transaction) and replays it.
func (s *service) stateOf(tx *gorm.DB, postID uint64, postExists bool) (enums.TradeState, error) {
	if s.events == nil {
		if !postExists {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, msgPostNotFound)
		}
		return TradeStateOf(true, false), nil
	}
	history, err := s.events.ListByAggregate(tx, strconv.FormatUint(postID, 10))
	if err != nil {
		return "", err
	}
	state, known := replayTradeState(postExists, history)
	if !known {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, msgPostNotFound)
	}
	return state, nil
}

// guardTransition fails with STATE_CONFLICT unless the locked post may move to next.
func (s *service) guardTransition(tx *gorm.DB, postID uint64, next enums.TradeState, step string) error {
	from, err := s.stateOf(tx, postID, true)
	if err != nil {
		return db.Classify(err, step)
	}
	if !from.CanTransition(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "trade is already "+string(from)).
			WithDetails(map[string]any{"step": step, "state": string(from), "target": string(next)})
	}
	return nil
}
