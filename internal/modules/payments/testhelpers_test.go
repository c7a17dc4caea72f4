package payments

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xerc/ai-payments/internal/modules/basket"
	"github.com/xerc/ai-payments/internal/modules/checkout"
	"github.com/xerc/ai-payments/internal/modules/orders"
)

type fixture struct {
	repo      *orders.Repo
	sessions  *checkout.Store
	journal   *Journal
	customers *Customers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "payments.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orders.Order{}, &orders.OrderAttribute{},
		&checkout.Session{}, &Customer{}, &ProviderEvent{},
	))
	return &fixture{
		repo:      orders.NewRepo(db),
		sessions:  checkout.NewStore(db, 0),
		journal:   NewJournal(db),
		customers: NewCustomers(db),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway scripts the next response and records every request sent.
type fakeGateway struct {
	resp GatewayResponse
	err  error
	reqs []GatewayRequest
}

func (f *fakeGateway) Send(_ context.Context, req GatewayRequest) (GatewayResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func (f *fakeGateway) last(t *testing.T) GatewayRequest {
	t.Helper()
	require.NotEmpty(t, f.reqs)
	return f.reqs[len(f.reqs)-1]
}

func testBasket() basket.Basket {
	return basket.Basket{
		Currency: "EUR",
		Items: []basket.Item{
			{ProductCode: "SKU-1", Name: "Widget", Quantity: 2, Price: "24.50", TaxRate: "19"},
		},
		Delivery: &basket.Delivery{ID: "SHIP-1", Name: "Standard", Cost: "4.90", TaxRate: "19"},
	}
}

func testSnapshot(t *testing.T) basket.Snapshot {
	t.Helper()
	snap, err := basket.Build(testBasket())
	require.NoError(t, err)
	return snap
}

func ensureOrder(t *testing.T, f *fixture, orderID string, userID *string) orders.Order {
	t.Helper()
	o, err := f.repo.Ensure(context.Background(), orderID, userID, "EUR", "53.90")
	require.NoError(t, err)
	return o
}
