package enums

import "fmt"

// OutboxAggregateType is outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateItem       OutboxAggregateType = "item"
	AggregateTrade      OutboxAggregateType = "trade"
	AggregateFriendship OutboxAggregateType = "friendship"
)

// OutboxEventType is outbox_events.event_type.
type OutboxEventType string

const (
	EventItemListed      OutboxEventType = "item_listed"
	EventTradeProposed   OutboxEventType = "trade_proposed"
	EventTradeCancelled  OutboxEventType = "trade_cancelled"
	EventTradeAccepted   OutboxEventType = "trade_accepted"
	EventFriendRequested OutboxEventType = "friend_requested"
	EventFriendResponded OutboxEventType = "friend_responded"
)

// eventAggregates pins every event type to the aggregate it is recorded under.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventItemListed:      AggregateItem,
	EventTradeProposed:   AggregateTrade,
	EventTradeCancelled:  AggregateTrade,
	EventTradeAccepted:   AggregateTrade,
	EventFriendRequested: AggregateFriendship,
	EventFriendResponded: AggregateFriendship,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateItem, AggregateTrade, AggregateFriendship:
		return true
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}
