package models

import "time"

// TradeTransaction is the append-only record of a completed trade.
type TradeTransaction struct {
	ID            uint64    `gorm:"column:transaction_id;primaryKey;autoIncrement" json:"transaction_id"`
	User1ID       uint64    `gorm:"column:user1_id;not null" json:"user1_id"`
	User1ItemName string    `gorm:"column:user1_itemName;type:varchar(255);not null" json:"user1_itemName"`
	User1ItemSold int       `gorm:"column:user1_itemSold;not null" json:"user1_itemSold"`
	User2ID       uint64    `gorm:"column:user2_id;not null" json:"user2_id"`
	User2ItemName string    `gorm:"column:user2_itemName;type:varchar(255);not null" json:"user2_itemName"`
	User2ItemSold int       `gorm:"column:user2_itemSold;not null" json:"user2_itemSold"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (TradeTransaction) TableName() string { return "transaction" }
