package services

import (
	"context"
	"testing"
	"time"

	"github.com/papertrade-project/backend/internal/db"
	"github.com/papertrade-project/backend/internal/marketdata"
	"github.com/papertrade-project/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// TestDB wraps a disposable Postgres container with a migrated gorm handle
type TestDB struct {
	*gorm.DB
	container testcontainers.Container
}

// SetupTestDB starts a PostgreSQL container, migrates the schema and returns
// a connected handle
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	gdb, err := gorm.Open(postgres.Open(connStr), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	return &TestDB{DB: gdb, container: pgContainer}
}

// Cleanup closes the connection and terminates the container
func (tdb *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	if sqlDB, err := tdb.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if tdb.container != nil {
		if err := tdb.container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}
}

// TruncateAll truncates all tables for test isolation
func (tdb *TestDB) TruncateAll(t *testing.T) {
	t.Helper()

	tables := []string{
		"portfolio_snapshots",
		"transactions",
		"holdings",
		"accounts",
		"users",
		"stocks",
	}
	for _, table := range tables {
		if err := tdb.Exec("TRUNCATE TABLE " + table + " CASCADE").Error; err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}

// fakePriceSource is a deterministic in-memory PriceSource
type fakePriceSource struct {
	current    map[string]decimal.Decimal
	closes     map[string]marketdata.History
	currentErr error
	bulkErr    error
}

func (f *fakePriceSource) GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if f.currentErr != nil {
		return decimal.Zero, f.currentErr
	}
	price, ok := f.current[ticker]
	if !ok {
		return decimal.Zero, marketdata.ErrUnavailable
	}
	return price, nil
}

func (f *fakePriceSource) GetClosingPrice(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error) {
	history, ok := f.closes[ticker]
	if !ok {
		return decimal.Zero, marketdata.ErrUnavailable
	}
	price, ok := history.On(models.DateOnly(date))
	if !ok {
		return decimal.Zero, marketdata.ErrUnavailable
	}
	return price, nil
}

func (f *fakePriceSource) GetClosingPrices(ctx context.Context, tickers []string, from, to time.Time) (map[string]marketdata.History, error) {
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	results := make(map[string]marketdata.History, len(tickers))
	for _, ticker := range tickers {
		if history, ok := f.closes[ticker]; ok {
			results[ticker] = history
		}
	}
	return results, nil
}

func createTestAccount(t *testing.T, tdb *TestDB, username string) *models.Account {
	t.Helper()

	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	if err := tdb.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	account := models.Account{UserID: user.ID}
	if err := tdb.Create(&account).Error; err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return &account
}

func createTestStock(t *testing.T, tdb *TestDB, ticker, name string) *models.Stock {
	t.Helper()

	stock := models.Stock{Ticker: ticker, CompanyName: name}
	if err := tdb.Create(&stock).Error; err != nil {
		t.Fatalf("failed to create stock %s: %v", ticker, err)
	}
	return &stock
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", value, err)
	}
	return d
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad date literal %q: %v", value, err)
	}
	return d
}
