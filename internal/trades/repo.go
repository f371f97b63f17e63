package trades

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/barter-backend/internal/repo"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
)

const msgPostNotFound = "Post not found"

// Repository manages partnerships, posts and the rows a completed trade retires.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePartnership(ctx context.Context, partnership *models.Partnership) error
	CreatePost(ctx context.Context, post *models.Post) error
	FindPost(ctx context.Context, postID uint64) (*models.Post, error)
	LockPost(ctx context.Context, postID uint64) (*models.Post, error)
	FindPartnership(ctx context.Context, partnershipID uint64) (*models.Partnership, error)
	FindItems(ctx context.Context, itemIDs []uint64) (map[uint64]models.Item, error)
	DeletePost(ctx context.Context, postID uint64) error
	CountPosts(ctx context.Context, partnershipID uint64) (int64, error)
	DeletePartnership(ctx context.Context, partnershipID uint64) error
	DeleteOwnerships(ctx context.Context, itemIDs []uint64) error
	PostsTouchingItems(ctx context.Context, itemIDs []uint64) ([]models.Post, error)
	DeletePosts(ctx context.Context, postIDs []uint64) error
	DeletePartnershipsWithoutPosts(ctx context.Context, partnershipIDs []uint64) ([]uint64, error)
	DeleteItems(ctx context.Context, itemIDs []uint64) error
	ListPosts(ctx context.Context) ([]models.Post, error)
	ListFullPosts(ctx context.Context, limit int) ([]FullPost, error)
	ListPostSummaries(ctx context.Context, filter SummaryFilter) ([]PostSummary, error)
}

// SummaryFilter selects posts by the side of the partnership a user is on.
type SummaryFilter struct {
	InitiatorID    uint64
	CounterpartyID uint64
	OnlyUnanswered bool
}

type repository struct {
	repo.Base
}

// NewRepository returns a trades repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) CreatePartnership(ctx context.Context, partnership *models.Partnership) error {
	return r.DB(ctx).Create(partnership).Error
}

func (r *repository) CreatePost(ctx context.Context, post *models.Post) error {
	return r.DB(ctx).Create(post).Error
}

func (r *repository) FindPost(ctx context.Context, postID uint64) (*models.Post, error) {
	var post models.Post
	if err := r.DB(ctx).Where("post_id = ?", postID).First(&post).Error; err != nil {
		return nil, repo.NotFound(err, msgPostNotFound)
	}
	return &post, nil
}

// LockPost reads the post with FOR UPDATE where the dialect supports it.
func (r *repository) LockPost(ctx context.Context, postID uint64) (*models.Post, error) {
	var post models.Post
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("post_id = ?", postID).
		First(&post).Error
	if err != nil {
		return nil, repo.NotFound(err, msgPostNotFound)
	}
	return &post, nil
}

func (r *repository) FindPartnership(ctx context.Context, partnershipID uint64) (*models.Partnership, error) {
	var partnership models.Partnership
	if err := r.DB(ctx).Where("partnership_id = ?", partnershipID).First(&partnership).Error; err != nil {
		return nil, repo.NotFound(err, "Partnership not found")
	}
	return &partnership, nil
}

func (r *repository) FindItems(ctx context.Context, itemIDs []uint64) (map[uint64]models.Item, error) {
	var rows []models.Item
	if err := r.DB(ctx).Where("item_id IN ?", itemIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint64]models.Item, len(rows))
	for _, item := range rows {
		out[item.ID] = item
	}
	return out, nil
}

func (r *repository) DeletePost(ctx context.Context, postID uint64) error {
	return r.DB(ctx).Where("post_id = ?", postID).Delete(&models.Post{}).Error
}

func (r *repository) CountPosts(ctx context.Context, partnershipID uint64) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Post{}).
		Where("posting_partnership_id = ?", partnershipID).
		Count(&count).Error
	return count, err
}

func (r *repository) DeletePartnership(ctx context.Context, partnershipID uint64) error {
	return r.DB(ctx).Where("partnership_id = ?", partnershipID).Delete(&models.Partnership{}).Error
}

func (r *repository) DeleteOwnerships(ctx context.Context, itemIDs []uint64) error {
	return r.DB(ctx).Where("item_id IN ?", itemIDs).Delete(&models.Owns{}).Error
}

func (r *repository) PostsTouchingItems(ctx context.Context, itemIDs []uint64) ([]models.Post, error) {
	var posts []models.Post
	err := r.DB(ctx).
		Where("requesting_item_id IN ? OR offering_item_id IN ?", itemIDs, itemIDs).
		Order("post_id ASC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *repository) DeletePosts(ctx context.Context, postIDs []uint64) error {
	if len(postIDs) == 0 {
		return nil
	}
	return r.DB(ctx).Where("post_id IN ?", postIDs).Delete(&models.Post{}).Error
}

// DeletePartnershipsWithoutPosts removes the candidates no post refers to
// anymore and returns their ids.
func (r *repository) DeletePartnershipsWithoutPosts(ctx context.Context, partnershipIDs []uint64) ([]uint64, error) {
	if len(partnershipIDs) == 0 {
		return nil, nil
	}
	var orphaned []uint64
	err := r.DB(ctx).Model(&models.Partnership{}).
		Where("partnership_id IN ?", partnershipIDs).
		Where("NOT EXISTS (SELECT 1 FROM post WHERE post.posting_partnership_id = partnership.partnership_id)").
		Order("partnership_id ASC").
		Pluck("partnership_id", &orphaned).Error
	if err != nil {
		return nil, err
	}
	if len(orphaned) == 0 {
		return nil, nil
	}
	if err := r.DB(ctx).Where("partnership_id IN ?", orphaned).Delete(&models.Partnership{}).Error; err != nil {
		return nil, err
	}
	return orphaned, nil
}

func (r *repository) DeleteItems(ctx context.Context, itemIDs []uint64) error {
	return r.DB(ctx).Where("item_id IN ?", itemIDs).Delete(&models.Item{}).Error
}

func (r *repository) ListPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := r.DB(ctx).Order("post_id ASC").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// ListFullPosts joins each post with both item names. A positive limit
// returns that many posts in random order.
func (r *repository) ListFullPosts(ctx context.Context, limit int) ([]FullPost, error) {
	db := r.DB(ctx)
	query := db.Table("post").
		Select(
			"post.post_id, post.requesting_amount, req_item.name AS requesting_item_name, "+
				"post.offering_amount, off_item.name AS offering_item_name, ? AS is_negotiable",
			clause.Column{Table: "post", Name: "isNegotiable"},
		).
		Joins("JOIN item AS req_item ON req_item.item_id = post.requesting_item_id").
		Joins("JOIN item AS off_item ON off_item.item_id = post.offering_item_id")
	if limit > 0 {
		query = query.Order(repo.RandomOrder(db)).Limit(limit)
	} else {
		query = query.Order("post.post_id ASC")
	}

	var rows []FullPost
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPostSummaries(ctx context.Context, filter SummaryFilter) ([]PostSummary, error) {
	query := r.DB(ctx).Table("post").
		Select("post.post_id, partnership.partnership_id, partnership.user2_accepted, " +
			"post.requesting_item_id, post.requesting_amount, post.offering_item_id, post.offering_amount, " +
			"req_item.name AS requesting_item_name, off_item.name AS offering_item_name").
		Joins("JOIN partnership ON partnership.partnership_id = post.posting_partnership_id").
		Joins("JOIN item AS req_item ON req_item.item_id = post.requesting_item_id").
		Joins("JOIN item AS off_item ON off_item.item_id = post.offering_item_id")
	if filter.InitiatorID != 0 {
		query = query.Where("partnership.user1_id = ?", filter.InitiatorID)
	}
	if filter.CounterpartyID != 0 {
		query = query.Where("partnership.user2_id = ?", filter.CounterpartyID)
	}
	if filter.OnlyUnanswered {
		query = query.Where("partnership.user2_accepted = ?", false)
	}

	var rows []PostSummary
	if err := query.Order("post.post_id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
