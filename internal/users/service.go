package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/angelmondragon/barter-backend/pkg/logger"
)

const defaultAccessLevel = 1

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

type userStore interface {
	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uint64) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// Service is the users directory.
type Service interface {
	Signup(ctx context.Context, input SignupInput) (*SignupResult, error)
	Signin(ctx context.Context, email, password string) (*SigninResult, error)
	Get(ctx context.Context, userID uint64) (*UserDTO, error)
	List(ctx context.Context) ([]UserDTO, error)
	FindIDByEmail(ctx context.Context, email string) (uint64, error)
}

type service struct {
	repo   userStore
	hasher passwordHasher
	logg   *logger.Logger
}

func NewService(repo userStore, hasher passwordHasher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher required")
	}
	return &service{repo: repo, hasher: hasher, logg: logg}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Email and Password required")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user, err := s.repo.Create(ctx, CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		PhoneNumber:  strings.TrimSpace(input.PhoneNumber),
		Address:      strings.TrimSpace(input.Address),
		AccessLevel:  input.AccessLevel,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, db.Classify(err, "insert_user")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, user.ID), "user signed up")
	}
	return &SignupResult{UserID: user.ID}, nil
}

func (s *service) Signin(ctx context.Context, email, password string) (*SigninResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Email and Password required")
	}

	invalid := pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid credentials")
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	ok, err := s.hasher.Verify(password, user.Password)
	if err != nil || !ok {
		return nil, invalid
	}

	return &SigninResult{
		Message:     "Login successful",
		UserID:      user.ID,
		AccessLevel: user.AccessLevel,
	}, nil
}

func (s *service) Get(ctx context.Context, userID uint64) (*UserDTO, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) List(ctx context.Context) ([]UserDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return FromModels(rows), nil
}

func (s *service) FindIDByEmail(ctx context.Context, email string) (uint64, error) {
	email = normalizeEmail(email)
	if email == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}
