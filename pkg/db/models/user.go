package models

// User is a marketplace member. Password holds an Argon2id encoded hash.
type User struct {
	ID          uint64 `gorm:"column:user_id;primaryKey;autoIncrement" json:"user_id"`
	Email       string `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	Password    string `gorm:"column:password;type:varchar(255);not null" json:"-"`
	PhoneNumber string `gorm:"column:phone_number;type:varchar(32)" json:"phone_number"`
	Address     string `gorm:"column:address;type:varchar(255)" json:"address"`
	AccessLevel int    `gorm:"column:access_level;not null;default:1" json:"access_level"`
}

func (User) TableName() string { return "users" }
