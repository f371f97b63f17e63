package friends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/metrics"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
	"github.com/angelmondragon/barter-backend/pkg/outbox/payloads"
)

const msgAlreadyLinked = "Friend request already exists or you are already friends"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type userDirectory interface {
	FindIDByEmail(ctx context.Context, email string) (uint64, error)
}

// Service negotiates friendships between users.
type Service interface {
	SendFriendRequest(ctx context.Context, requesterID uint64, receiverEmail string) (*SendRequestResult, error)
	RespondToFriendRequest(ctx context.Context, friendID uint64, status string) (*RespondResult, error)
	ListAcceptedFriends(ctx context.Context, userID uint64) ([]Contact, error)
	ListIncomingRequests(ctx context.Context, userID uint64) ([]IncomingRequest, error)
	ListFriendCandidates(ctx context.Context, userID uint64) ([]Contact, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	users   userDirectory
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.CoordinatorMetrics
}

func NewService(tx txRunner, repo Repository, users userDirectory, publisher outboxPublisher, logg *logger.Logger, m *metrics.CoordinatorMetrics) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("friends repository required")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{tx: tx, repo: repo, users: users, outbox: publisher, logg: logg, metrics: m}, nil
}

func (s *service) SendFriendRequest(ctx context.Context, requesterID uint64, receiverEmail string) (result *SendRequestResult, err error) {
	email := strings.TrimSpace(receiverEmail)
	if requesterID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "User ID is required")
	}
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Friend email is required")
	}

	started := time.Now()
	defer func() { s.metrics.Observe("send_friend_request", started, err) }()

	receiverID, err := s.users.FindIDByEmail(ctx, email)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Receiver not found")
		}
		return nil, err
	}
	if receiverID == requesterID {
		return &SendRequestResult{Outcome: OutcomeSelfRequest, Message: msgSelfRequest}, nil
	}

	friend := &models.Friend{
		UserID:       requesterID,
		FriendUserID: receiverID,
		Status:       enums.FriendStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindBetween(ctx, requesterID, receiverID)
		if err != nil {
			return db.Classify(err, "find_friendship")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, msgAlreadyLinked)
		}
		if err := repo.Create(ctx, friend); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, msgAlreadyLinked)
			}
			return db.Classify(err, "insert_friend")
		}
		return db.Classify(s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFriendRequested,
			AggregateType: enums.AggregateFriendship,
			AggregateID:   friend.ID,
			Actor:         &outbox.ActorRef{UserID: requesterID},
			Data: payloads.FriendRequestedEvent{
				FriendID:    friend.ID,
				RequesterID: requesterID,
				ReceiverID:  receiverID,
			},
		}), "emit_friend_requested")
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, requesterID), map[string]any{
			"friend_id":   friend.ID,
			"receiver_id": receiverID,
		})
		s.logg.Info(logCtx, "friend request sent")
	}
	return &SendRequestResult{Outcome: OutcomeSent, Message: "Friend request sent", FriendID: friend.ID}, nil
}

func (s *service) RespondToFriendRequest(ctx context.Context, friendID uint64, raw string) (result *RespondResult, err error) {
	if friendID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "friend id is required")
	}
	status, parseErr := enums.ParseFriendStatus(raw)
	if parseErr != nil || !status.IsResponse() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be Accepted or Rejected")
	}

	started := time.Now()
	defer func() { s.metrics.Observe("respond_friend_request", started, err) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.LockByID(ctx, friendID)
		if err != nil {
			return db.Classify(err, "load_friend")
		}
		if err := repo.UpdateStatus(ctx, row.ID, status); err != nil {
			return db.Classify(err, "update_friend_status")
		}
		return db.Classify(s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFriendResponded,
			AggregateType: enums.AggregateFriendship,
			AggregateID:   row.ID,
			Actor:         &outbox.ActorRef{UserID: row.FriendUserID},
			Data: payloads.FriendRespondedEvent{
				FriendID: row.ID,
				Status:   status,
			},
		}), "emit_friend_responded")
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"friend_id": friendID, "status": status}), "friend request answered")
	}
	return &RespondResult{FriendID: friendID, Status: status}, nil
}

func (s *service) ListAcceptedFriends(ctx context.Context, userID uint64) ([]Contact, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListAccepted(ctx, userID)
}

func (s *service) ListIncomingRequests(ctx context.Context, userID uint64) ([]IncomingRequest, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListIncoming(ctx, userID)
}

func (s *service) ListFriendCandidates(ctx context.Context, userID uint64) ([]Contact, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListCandidates(ctx, userID)
}
