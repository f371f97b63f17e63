package models

type Category struct {
	ID   uint64 `gorm:"column:category_id;primaryKey;autoIncrement" json:"category_id"`
	Name string `gorm:"column:name;type:varchar(255);not null" json:"name"`
}

func (Category) TableName() string { return "category" }
