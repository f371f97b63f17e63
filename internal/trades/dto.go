package trades

// ProposeTradeInput mirrors the /postpartnership body.
type ProposeTradeInput struct {
	InitiatorID      uint64 `json:"user1_id"`
	RequestingItemID uint64 `json:"requestingItemId"`
	RequestingAmount int    `json:"requestingAmount"`
	OfferingItemID   uint64 `json:"offeringItemId"`
	OfferingAmount   int    `json:"offeringAmount"`
	IsNegotiable     bool   `json:"isNegotiable"`
	HashCode         string `json:"hashcode"`
}

type ProposeTradeResult struct {
	PartnershipID uint64 `json:"partnership_id"`
	PostID        uint64 `json:"post_id"`
}

type CancelTradeResult struct {
	PostID             uint64 `json:"post_id"`
	PartnershipID      uint64 `json:"partnership_id"`
	PartnershipRemoved bool   `json:"partnership_removed"`
}

// AcceptTradeResult lists everything the accepted trade retired.
type AcceptTradeResult struct {
	PostID                uint64   `json:"post_id"`
	TransactionID         uint64   `json:"transaction_id"`
	RetiredItemIDs        []uint64 `json:"retired_item_ids"`
	RemovedPostIDs        []uint64 `json:"removed_post_ids"`
	RemovedPartnershipIDs []uint64 `json:"removed_partnership_ids"`
}

// FullPost is a post with both item names resolved.
type FullPost struct {
	PostID             uint64 `gorm:"column:post_id" json:"post_id"`
	RequestingAmount   int    `gorm:"column:requesting_amount" json:"requesting_amount"`
	RequestingItemName string `gorm:"column:requesting_item_name" json:"requesting_item_name"`
	OfferingAmount     int    `gorm:"column:offering_amount" json:"offering_amount"`
	OfferingItemName   string `gorm:"column:offering_item_name" json:"offering_item_name"`
	IsNegotiable       bool   `gorm:"column:is_negotiable" json:"isNegotiable"`
}

// PostSummary is a post seen from one side of its partnership.
type PostSummary struct {
	PostID             uint64 `gorm:"column:post_id" json:"post_id"`
	PartnershipID      uint64 `gorm:"column:partnership_id" json:"partnership_id"`
	User2Accepted      bool   `gorm:"column:user2_accepted" json:"user2_accepted"`
	RequestingItemID   uint64 `gorm:"column:requesting_item_id" json:"requesting_item_id"`
	RequestingAmount   int    `gorm:"column:requesting_amount" json:"requesting_amount"`
	OfferingItemID     uint64 `gorm:"column:offering_item_id" json:"offering_item_id"`
	OfferingAmount     int    `gorm:"column:offering_amount" json:"offering_amount"`
	RequestingItemName string `gorm:"column:requesting_item_name" json:"requesting_item_name"`
	OfferingItemName   string `gorm:"column:offering_item_name" json:"offering_item_name"`
}
