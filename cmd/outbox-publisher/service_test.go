package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/enums"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
	"github.com/angelmondragon/barter-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/barter-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		tradeEvent(t, "7", 0),
		tradeEvent(t, "8", 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	svc := newTestService(t, repo, pub, nil)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	require.Empty(t, repo.terminal)
}

func TestProcessBatchSetsMessageAttributes(t *testing.T) {
	event := tradeEvent(t, "42", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	svc := newTestService(t, repo, pub, nil)

	var topics []string
	svc.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"trade-topic"}, topics)
	require.Len(t, pub.sent, 1)

	attrs := pub.sent[0].Attributes
	require.Equal(t, "42", attrs["aggregate_id"])
	require.Equal(t, string(enums.EventTradeAccepted), attrs["event_type"])
	require.Equal(t, string(enums.AggregateTrade), attrs["aggregate_type"])
	require.NotEmpty(t, attrs["event_id"])
	require.Equal(t, event.Payload, string(pub.sent[0].Data))
}

func TestProcessBatchTerminatesUnresolvableEvents(t *testing.T) {
	event := tradeEvent(t, "9", 0)
	event.EventType = enums.OutboxEventType("order_created")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, nil)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Empty(t, pub.sent)
	require.Empty(t, repo.published)
}

func TestProcessBatchTerminatesAtMaxAttempts(t *testing.T) {
	event := tradeEvent(t, "11", 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	svc := newTestService(t, repo, pub, &config.OutboxConfig{BatchSize: 1, PollIntervalMS: 100, MaxAttempts: 2})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Empty(t, repo.failed)
}

func TestProcessBatchNilPublisherIsTerminal(t *testing.T) {
	event := tradeEvent(t, "12", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	svc := newTestService(t, repo, nil, nil)
	svc.publisherFactory = func(string) publisher { return nil }

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestTickSkipsBatchWithoutLeadership(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{tradeEvent(t, "5", 0)}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	leader := &fakeLock{}
	svc := newTestService(t, repo, pub, nil)
	svc.leader = leader

	processed, err := svc.tick(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
	require.Empty(t, repo.published)

	leader.grant = true
	processed, err = svc.tick(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, repo.published, 1)
	require.Equal(t, 1, leader.released)
}

func TestProcessBatchStaysWithinTxBudget(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		tradeEvent(t, "21", 0),
		tradeEvent(t, "22", 0),
	}}
	pub := &fakePublisher{results: []publishResult{stalledResult{}, fakePublishResult{}}}
	svc := newTestService(t, repo, pub, &config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
		TxTimeout:      400 * time.Millisecond,
	})

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err, "marks must commit before the tx deadline")
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Empty(t, repo.published)
	require.Len(t, pub.sent, 1, "second row waits for the next tick")
	require.Equal(t, []time.Duration{400 * time.Millisecond}, svc.db.(*fakeDB).timeouts)
}

func TestProcessBatchUsesOutboxTxBudget(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, &fakePublisher{}, nil)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []time.Duration{defaultTxTimeout}, svc.db.(*fakeDB).timeouts)
}

func TestTickReleasesLeaderAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	leader := &fakeLock{grant: true, onAcquire: cancel}
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, nil)
	svc.leader = leader

	_, _ = svc.tick(ctx)
	require.Equal(t, 1, leader.released)
	require.NoError(t, leader.releaseErr)
}

func TestNextBackoffCaps(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(500*time.Millisecond, 500*time.Millisecond, maxBackoff))
	require.Equal(t, maxBackoff, nextBackoff(8*time.Second, time.Second, maxBackoff))
	require.Equal(t, 2*time.Second, nextBackoff(0, time.Second, maxBackoff))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	_, err = NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: &fakeRepo{},
	})
	require.EqualError(t, err, "event registry is required")
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, outboxCfg *config.OutboxConfig) *Service {
	t.Helper()
	cfg := &config.Config{
		PubSub: config.PubSubConfig{TradeEventsTopic: "trade-topic"},
		Outbox: config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5},
	}
	if outboxCfg != nil {
		cfg.Outbox = *outboxCfg
	}
	reg, err := registry.NewEventRegistry(cfg.PubSub)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(string) publisher { return pub },
	})
	require.NoError(t, err)
	return svc
}

func tradeEvent(t *testing.T, postID string, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.TradeAcceptedEvent{PostID: 1, TransactionID: 2, User1ID: 3, User2ID: 4})
	require.NoError(t, err)
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTradeAccepted,
		AggregateType: enums.AggregateTrade,
		AggregateID:   postID,
		Payload:       string(env),
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

// fakeDB fails the commit when the unit of work outlived its timeout, as the
// real client does.
type fakeDB struct {
	timeouts []time.Duration
}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTxTimeout(ctx context.Context, timeout time.Duration, fn func(*gorm.DB) error) error {
	f.timeouts = append(f.timeouts, timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(nil); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

// stalledResult never hears back from the broker.
type stalledResult struct{}

func (stalledResult) Get(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeLock struct {
	grant      bool
	released   int
	onAcquire  func()
	releaseErr error
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	if l.onAcquire != nil {
		l.onAcquire()
	}
	return l.grant, nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released++
	l.releaseErr = ctx.Err()
	return l.releaseErr
}
