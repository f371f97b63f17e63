package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/logger"
)

// Client owns the pooled connection every repository shares and is the only
// place transactions are opened.
type Client struct {
	conn      *gorm.DB
	driver    string
	txTimeout time.Duration
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the configured store. Postgres is the default dialect; mysql and
// sqlite are accepted for local work and tests.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLog(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", dialector.Name(), err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	tunePool(pool, cfg)

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         dialector.Name(),
			"max_open_conns": cfg.MaxOpenConns,
			"tx_timeout":     cfg.TxTimeout.String(),
		}), "database ready")
	}
	return &Client{conn: conn, driver: dialector.Name(), txTimeout: cfg.TxTimeout}, nil
}

// NewFromGorm wraps a connection opened elsewhere, as tests do.
func NewFromGorm(conn *gorm.DB, txTimeout time.Duration) *Client {
	c := &Client{conn: conn, txTimeout: txTimeout}
	if conn != nil && conn.Dialector != nil {
		c.driver = conn.Dialector.Name()
	}
	return c
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", config.DriverPostgres:
		// Simple protocol keeps pgbouncer in transaction mode happy.
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	case config.DriverMySQL:
		return mysql.Open(cfg.DSN), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func tunePool(pool *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB { return c.conn }

func (c *Client) Driver() string { return c.driver }

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn as one unit of work bounded by the configured timeout.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.WithTxTimeout(ctx, c.txTimeout, fn)
}

// WithTxTimeout runs fn as one unit of work bounded by timeout; zero leaves
// ctx as the only bound. Typed errors from fn are returned as-is, joined with
// the rollback failure if there was one. Begin and commit failures, and any
// untyped failure once the deadline passed, come back classified. A panic
// rolls back and re-panics.
func (c *Client) WithTxTimeout(ctx context.Context, timeout time.Duration, fn func(tx *gorm.DB) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx := c.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return txFailure(ctx, tx.Error, "begin")
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if ctx.Err() != nil {
			err = txFailure(ctx, err, "transaction")
		}
		if rbErr := tx.Rollback().Error; rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return txFailure(ctx, err, "commit")
	}
	return nil
}

// txFailure classifies err, treating it as a deadline failure when ctx ran
// out even if the driver reported something else (sql.ErrTxDone after the
// driver rolled back, for one).
func txFailure(ctx context.Context, err error, step string) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return Classify(err, step)
}
