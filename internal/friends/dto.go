package friends

import "github.com/angelmondragon/barter-backend/pkg/enums"

// RequestOutcome tells callers whether a friend row was written.
type RequestOutcome string

const (
	OutcomeSent        RequestOutcome = "sent"
	OutcomeSelfRequest RequestOutcome = "self_request"
)

const msgSelfRequest = "You can't befriend yourself"

type SendRequestResult struct {
	Outcome  RequestOutcome `json:"outcome"`
	Message  string         `json:"message"`
	FriendID uint64         `json:"friend_id,omitempty"`
}

type RespondResult struct {
	FriendID uint64             `json:"friend_id"`
	Status   enums.FriendStatus `json:"status"`
}

// Contact is a user row reached through a friend relation.
type Contact struct {
	UserID uint64 `json:"user_id" gorm:"column:user_id"`
	Email  string `json:"email" gorm:"column:email"`
}

// IncomingRequest is a pending request addressed to the reader.
type IncomingRequest struct {
	FriendID uint64 `json:"friend_id" gorm:"column:friend_id"`
	UserID   uint64 `json:"user_id" gorm:"column:user_id"`
	Email    string `json:"email" gorm:"column:email"`
}
