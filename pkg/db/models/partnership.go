package models

// Partnership pairs the initiator (user1) and counterparty (user2) of a trade.
type Partnership struct {
	ID               uint64 `gorm:"column:partnership_id;primaryKey;autoIncrement" json:"partnership_id"`
	User1ID          uint64 `gorm:"column:user1_id;not null" json:"user1_id"`
	User2ID          uint64 `gorm:"column:user2_id;not null" json:"user2_id"`
	User1Accepted    bool   `gorm:"column:user1_accepted;not null;default:false" json:"user1_accepted"`
	User2Accepted    bool   `gorm:"column:user2_accepted;not null;default:false" json:"user2_accepted"`
	User1LeadingHash string `gorm:"column:user1_leadinghash;type:varchar(8)" json:"user1_leadinghash"`
}

func (Partnership) TableName() string { return "partnership" }
