package models

import "github.com/shopspring/decimal"

// Item is a listed good. Ownership lives in Owns, never on the item row.
type Item struct {
	ID           uint64          `gorm:"column:item_id;primaryKey;autoIncrement" json:"item_id"`
	Name         string          `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Value        decimal.Decimal `gorm:"column:value;type:decimal(10,2);not null" json:"value"`
	TransferCost decimal.Decimal `gorm:"column:transfer_cost;type:decimal(10,2);not null" json:"transfer_cost"`
	CategoryID   *uint64         `gorm:"column:category_id" json:"category_id"`
	Condition    string          `gorm:"column:condition;type:varchar(64)" json:"condition"`
}

func (Item) TableName() string { return "item" }
