package payloads

import "github.com/angelmondragon/barter-backend/pkg/enums"

// ItemListedEvent is emitted when an item is listed under a brokered ownership.
type ItemListedEvent struct {
	ItemID   uint64 `json:"item_id"`
	OwnerID  uint64 `json:"owner_id"`
	BrokerID uint64 `json:"broker_id"`
	Name     string `json:"name"`
}

// TradeProposedEvent announces a new post under a partnership.
type TradeProposedEvent struct {
	PostID           uint64 `json:"post_id"`
	PartnershipID    uint64 `json:"partnership_id"`
	InitiatorID      uint64 `json:"initiator_id"`
	CounterpartyID   uint64 `json:"counterparty_id"`
	RequestingItemID uint64 `json:"requesting_item_id"`
	OfferingItemID   uint64 `json:"offering_item_id"`
	Negotiable       bool   `json:"negotiable"`
}

// TradeCancelledEvent reports a withdrawn post.
type TradeCancelledEvent struct {
	PostID             uint64 `json:"post_id"`
	PartnershipID      uint64 `json:"partnership_id"`
	PartnershipRemoved bool   `json:"partnership_removed"`
}

// TradeAcceptedEvent reports a completed swap and everything it retired.
type TradeAcceptedEvent struct {
	PostID                uint64   `json:"post_id"`
	TransactionID         uint64   `json:"transaction_id"`
	User1ID               uint64   `json:"user1_id"`
	User2ID               uint64   `json:"user2_id"`
	RetiredItemIDs        []uint64 `json:"retired_item_ids"`
	RemovedPostIDs        []uint64 `json:"removed_post_ids"`
	RemovedPartnershipIDs []uint64 `json:"removed_partnership_ids"`
}

// FriendRequestedEvent is emitted when a pending friend row is created.
type FriendRequestedEvent struct {
	FriendID    uint64 `json:"friend_id"`
	RequesterID uint64 `json:"requester_id"`
	ReceiverID  uint64 `json:"receiver_id"`
}

// FriendRespondedEvent is emitted when the receiver answers a request.
type FriendRespondedEvent struct {
	FriendID uint64             `json:"friend_id"`
	Status   enums.FriendStatus `json:"status"`
}
