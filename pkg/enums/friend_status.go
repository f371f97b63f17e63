package enums

import (
	"fmt"
	"strings"
)

// FriendStatus maps to the friend.status column.
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "Pending"
	FriendStatusAccepted FriendStatus = "Accepted"
	FriendStatusRejected FriendStatus = "Rejected"
)

var validFriendStatuses = []FriendStatus{
	FriendStatusPending,
	FriendStatusAccepted,
	FriendStatusRejected,
}

// IsValid reports whether the value matches a canonical friend status.
func (s FriendStatus) IsValid() bool {
	for _, candidate := range validFriendStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsResponse reports whether the status may be set when answering a request.
func (s FriendStatus) IsResponse() bool {
	return s == FriendStatusAccepted || s == FriendStatusRejected
}

// ParseFriendStatus converts raw input into its canonical capitalised form.
func ParseFriendStatus(value string) (FriendStatus, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validFriendStatuses {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid friend status %q", value)
}
