package models

// Post is an open trade proposal published under a partnership.
type Post struct {
	ID                   uint64 `gorm:"column:post_id;primaryKey;autoIncrement" json:"post_id"`
	PostingPartnershipID uint64 `gorm:"column:posting_partnership_id;not null;index" json:"posting_partnership_id"`
	RequestingItemID     uint64 `gorm:"column:requesting_item_id;not null;index" json:"requesting_item_id"`
	RequestingAmount     int    `gorm:"column:requesting_amount;not null" json:"requesting_amount"`
	OfferingItemID       uint64 `gorm:"column:offering_item_id;not null;index" json:"offering_item_id"`
	OfferingAmount       int    `gorm:"column:offering_amount;not null" json:"offering_amount"`
	IsNegotiable         bool   `gorm:"column:isNegotiable;not null;default:false" json:"isNegotiable"`
	HashCode             string `gorm:"column:hash_code;type:varchar(255)" json:"hash_code"`
}

func (Post) TableName() string { return "post" }
