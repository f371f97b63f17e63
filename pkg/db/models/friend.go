package models

import "github.com/angelmondragon/barter-backend/pkg/enums"

// Friend is a directed friend request; UserID is the requester.
type Friend struct {
	ID           uint64             `gorm:"column:friend_id;primaryKey;autoIncrement" json:"friend_id"`
	UserID       uint64             `gorm:"column:user_id;not null" json:"user_id"`
	FriendUserID uint64             `gorm:"column:friend_user_id;not null" json:"friend_user_id"`
	Status       enums.FriendStatus `gorm:"column:status;type:varchar(16);not null;default:Pending" json:"status"`
}

func (Friend) TableName() string { return "friend" }
