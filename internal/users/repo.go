package users

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/internal/repo"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
)

const msgUserNotFound = "User not found"

// Repository reads and writes the users table. Password hashes never leave
// this package except through models.User.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.DB(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail expects email already normalised by the service.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, repo.NotFound(err, msgUserNotFound)
	}
	return &user, nil
}

func (r *Repository) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("user_id = ?", id).First(&user).Error; err != nil {
		return nil, repo.NotFound(err, msgUserNotFound)
	}
	return &user, nil
}

func (r *Repository) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := r.DB(ctx).Order("user_id").Find(&out).Error
	return out, err
}
