package trades

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/internal/items"
	"github.com/angelmondragon/barter-backend/internal/ledger"
	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/db/dbtest"
	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/outbox"
)

type fixture struct {
	client *db.Client
	conn   *gorm.DB
	svc    Service
	deps   Deps
	events *outbox.Repository
}

// newFixture seeds users 1..3 and the scenario items: user 1 owns item 10,
// user 2 owns item 20 and user 3 owns item 30.
func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()

	for i := 1; i <= 3; i++ {
		require.NoError(t, conn.Create(&models.User{Email: fmt.Sprintf("user%d@barter.io", i), Password: "hash"}).Error)
	}
	seedItem(t, conn, 10, "Bike", 50, 1)
	seedItem(t, conn, 20, "Guitar", 60, 2)
	seedItem(t, conn, 30, "Camera", 80, 3)

	outboxRepo := outbox.NewRepository(conn)
	publisher := outbox.NewService(outboxRepo, nil)
	itemsSvc, err := items.NewService(client, items.NewRepository(conn), publisher, nil, nil)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)

	deps := Deps{
		Tx:     client,
		Repo:   NewRepository(conn),
		Ledger: ledgerSvc,
		Owners: itemsSvc,
		Outbox: publisher,
		Events: outboxRepo,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	svc, err := NewService(deps)
	require.NoError(t, err)

	return &fixture{client: client, conn: conn, svc: svc, deps: deps, events: outboxRepo}
}

func seedItem(t *testing.T, conn *gorm.DB, id uint64, name string, value int64, owner uint64) {
	t.Helper()
	require.NoError(t, conn.Create(&models.Item{
		ID:           id,
		Name:         name,
		Value:        decimal.NewFromInt(value),
		TransferCost: decimal.NewFromInt(5),
	}).Error)
	require.NoError(t, conn.Create(&models.Owns{UserID: owner, ItemID: id}).Error)
}

func scenarioProposal() ProposeTradeInput {
	return ProposeTradeInput{
		InitiatorID:      1,
		RequestingItemID: 20,
		RequestingAmount: 1,
		OfferingItemID:   10,
		OfferingAmount:   1,
		IsNegotiable:     true,
		HashCode:         "abcdef1234",
	}
}

// snapshot counts every table the coordinator writes to.
func (f *fixture) snapshot(t *testing.T) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	for name, model := range map[string]any{
		"item":          &models.Item{},
		"owns":          &models.Owns{},
		"partnership":   &models.Partnership{},
		"post":          &models.Post{},
		"transaction":   &models.TradeTransaction{},
		"outbox_events": &models.OutboxEvent{},
	} {
		var n int64
		require.NoError(t, f.conn.Model(model).Count(&n).Error)
		out[name] = n
	}
	return out
}

// memLockStore is an in-memory LockStore for exercising the Redis item locker.
type memLockStore struct {
	keys     map[string]string
	acquired []string
}

func newMemLockStore() *memLockStore {
	return &memLockStore{keys: map[string]string{}}
}

func (m *memLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = fmt.Sprint(value)
	m.acquired = append(m.acquired, key)
	return true, nil
}

func (m *memLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if m.keys[key] != owner {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func (m *memLockStore) LockKey(scope, id string) string {
	return strings.Join([]string{"bx", "lock", scope, id}, ":")
}
