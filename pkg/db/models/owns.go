package models

// Owns binds an item to its single current owner and the friend brokering it.
type Owns struct {
	ID                   uint64  `gorm:"column:owns_id;primaryKey;autoIncrement" json:"owns_id"`
	UserID               uint64  `gorm:"column:user_id;not null" json:"user_id"`
	ItemID               uint64  `gorm:"column:item_id;not null;uniqueIndex" json:"item_id"`
	IntermediaryFriendID *uint64 `gorm:"column:intermediary_friend_id" json:"intermediary_friend_id"`
}

func (Owns) TableName() string { return "owns" }
