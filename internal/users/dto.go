package users

import "github.com/angelmondragon/barter-backend/pkg/db/models"

// UserDTO is the transport shape that omits the password hash.
type UserDTO struct {
	ID          uint64 `json:"user_id"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	AccessLevel int    `json:"access_level"`
}

// SignupInput mirrors the /signup body.
type SignupInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=32"`
	Address     string `json:"address" validate:"omitempty,max=255"`
	AccessLevel int    `json:"access_level" validate:"omitempty,min=0"`
}

type SignupResult struct {
	UserID uint64 `json:"user_id"`
}

type SigninResult struct {
	Message     string `json:"message"`
	UserID      uint64 `json:"user_id"`
	AccessLevel int    `json:"access_level"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	PhoneNumber  string
	Address      string
	AccessLevel  int
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Address:     u.Address,
		AccessLevel: u.AccessLevel,
	}
}

func FromModels(rows []models.User) []UserDTO {
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

func (c CreateUserDTO) ToModel() *models.User {
	level := c.AccessLevel
	if level <= 0 {
		level = defaultAccessLevel
	}
	return &models.User{
		Email:       c.Email,
		Password:    c.PasswordHash,
		PhoneNumber: c.PhoneNumber,
		Address:     c.Address,
		AccessLevel: level,
	}
}
