package enums

import "fmt"

// TradeState tracks a post through its lifecycle.
type TradeState string

const (
	TradeStateProposed TradeState = "proposed"
	TradeStateAccepted TradeState = "accepted"
	TradeStateRejected TradeState = "rejected"
)

var validTradeStates = []TradeState{
	TradeStateProposed,
	TradeStateAccepted,
	TradeStateRejected,
}

var tradeTransitions = map[TradeState][]TradeState{
	TradeStateProposed: {TradeStateAccepted, TradeStateRejected},
}

// IsValid reports whether the value matches a known trade state.
func (s TradeState) IsValid() bool {
	for _, candidate := range validTradeStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s TradeState) IsTerminal() bool {
	return s == TradeStateAccepted || s == TradeStateRejected
}

// CanTransition reports whether moving from s to next is a legal step.
func (s TradeState) CanTransition(next TradeState) bool {
	for _, candidate := range tradeTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseTradeState converts raw input into TradeState.
func ParseTradeState(value string) (TradeState, error) {
	for _, candidate := range validTradeStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trade state %q", value)
}
