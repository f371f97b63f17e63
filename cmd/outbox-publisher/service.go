package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/internal/locks"
	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	defaultTxTimeout      = 2 * time.Minute
	leaderReleaseTimeout  = 5 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTxTimeout(context.Context, time.Duration, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	// Leader is optional. When set, a replica drains a batch only while it
	// holds the lock.
	Leader locks.Lock
}

// Service drains outbox_events onto Pub/Sub. Delivery is at least once: a row
// is marked published only after the broker acknowledged it.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	leader           locks.Lock
	publisherFactory publisherFactory

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	txTimeout    time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	for _, dep := range []struct {
		name    string
		missing bool
	}{
		{"config", p.Config == nil},
		{"logger", p.Logger == nil},
		{"database client", p.DB == nil},
		{"pubsub client", p.PubSub == nil},
		{"outbox repository", p.Repository == nil},
		{"event registry", p.Registry == nil},
	} {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	factory := p.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher { return newGCPPublisher(p.PubSub.Publisher(topic)) }
	}
	cfg := p.Config.Outbox
	return &Service{
		logg:             p.Logger,
		db:               p.DB,
		repo:             p.Repository,
		pubsub:           p.PubSub,
		registry:         p.Registry,
		leader:           p.Leader,
		publisherFactory: factory,
		batchSize:        positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:      positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		txTimeout:        positiveOr(cfg.TxTimeout, defaultTxTimeout),
	}, nil
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; an empty batch waits one poll interval; a failed batch backs
// off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := s.pollInterval
	for ctx.Err() == nil {
		processed, err := s.tick(ctx)
		switch {
		case err != nil:
			s.logg.Error(s.logg.WithField(ctx, "backoff", wait.String()), "outbox batch failed", err)
			wait = nextBackoff(wait, s.pollInterval, maxBackoff)
		case processed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// tick runs one batch, or nothing when another replica holds the leader lock.
func (s *Service) tick(ctx context.Context) (bool, error) {
	if s.leader == nil {
		return s.processBatch(ctx)
	}
	held, err := s.leader.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire publisher lock: %w", err)
	}
	if !held {
		return false, nil
	}
	defer func() {
		// Shutdown cancels ctx; the lease still has to be handed back.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaderReleaseTimeout)
		defer cancel()
		if err := s.leader.Release(releaseCtx); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release publisher lock failed")
		}
	}()
	return s.processBatch(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
