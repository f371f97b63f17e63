package friends

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/barter-backend/internal/repo"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/enums"
)

const msgRequestNotFound = "Friend request not found"

// Repository persists friend rows and runs the relation reads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBetween(ctx context.Context, a, b uint64) (*models.Friend, error)
	Create(ctx context.Context, friend *models.Friend) error
	LockByID(ctx context.Context, friendID uint64) (*models.Friend, error)
	UpdateStatus(ctx context.Context, friendID uint64, status enums.FriendStatus) error
	ListAccepted(ctx context.Context, userID uint64) ([]Contact, error)
	ListIncoming(ctx context.Context, userID uint64) ([]IncomingRequest, error)
	ListCandidates(ctx context.Context, userID uint64) ([]Contact, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// FindBetween returns the row linking a and b in either direction, or nil.
func (r *repository) FindBetween(ctx context.Context, a, b uint64) (*models.Friend, error) {
	var rows []models.Friend
	err := r.DB(ctx).
		Where("(user_id = ? AND friend_user_id = ?) OR (user_id = ? AND friend_user_id = ?)", a, b, b, a).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) Create(ctx context.Context, friend *models.Friend) error {
	return r.DB(ctx).Create(friend).Error
}

func (r *repository) LockByID(ctx context.Context, friendID uint64) (*models.Friend, error) {
	var friend models.Friend
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("friend_id = ?", friendID).
		First(&friend).Error
	if err != nil {
		return nil, repo.NotFound(err, msgRequestNotFound)
	}
	return &friend, nil
}

func (r *repository) UpdateStatus(ctx context.Context, friendID uint64, status enums.FriendStatus) error {
	return r.DB(ctx).Model(&models.Friend{}).
		Where("friend_id = ?", friendID).
		Update("status", status).Error
}

func (r *repository) ListAccepted(ctx context.Context, userID uint64) ([]Contact, error) {
	var out []Contact
	err := r.DB(ctx).Table("users AS u").
		Select("u.user_id, u.email").
		Joins("JOIN friend f ON (f.user_id = ? AND f.friend_user_id = u.user_id) OR (f.friend_user_id = ? AND f.user_id = u.user_id)", userID, userID).
		Where("f.status = ?", enums.FriendStatusAccepted).
		Order("u.user_id ASC").
		Scan(&out).Error
	return out, err
}

func (r *repository) ListIncoming(ctx context.Context, userID uint64) ([]IncomingRequest, error) {
	var out []IncomingRequest
	err := r.DB(ctx).Table("users AS u").
		Select("f.friend_id, u.user_id, u.email").
		Joins("JOIN friend f ON f.user_id = u.user_id").
		Where("f.friend_user_id = ? AND f.status = ?", userID, enums.FriendStatusPending).
		Order("f.friend_id ASC").
		Scan(&out).Error
	return out, err
}

// ListCandidates returns everyone linked to userID by any friend row,
// whatever its status.
func (r *repository) ListCandidates(ctx context.Context, userID uint64) ([]Contact, error) {
	var out []Contact
	err := r.DB(ctx).Table("friend AS f").
		Distinct("u.user_id", "u.email").
		Joins("JOIN users u ON (u.user_id = f.friend_user_id OR u.user_id = f.user_id)").
		Where("(f.user_id = ? AND f.friend_user_id <> ?) OR (f.friend_user_id = ? AND f.user_id <> ?)", userID, userID, userID, userID).
		Where("u.user_id <> ?", userID).
		Order("u.user_id ASC").
		Scan(&out).Error
	return out, err
}
