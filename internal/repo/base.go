package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Scoped returns tx when the caller is inside a transaction, otherwise the
// context-bound base connection.
func (b Base) Scoped(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return b.DB(ctx)
}

// NotFound converts gorm.ErrRecordNotFound into a typed not-found error
// carrying message. Other errors are returned unchanged.
func NotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return err
}

// RandomOrder returns the dialect's random ordering expression.
func RandomOrder(db *gorm.DB) clause.OrderBy {
	fn := "RANDOM()"
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "mysql" {
		fn = "RAND()"
	}
	return clause.OrderBy{Expression: clause.Expr{SQL: fn}}
}
