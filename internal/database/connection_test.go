package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Initialize(config.DatabaseConfig{
		Driver:       "sqlite",
		SQLitePath:   filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))
	t.Cleanup(func() { Close(db) })
	return db
}

func newTicket(buyer, channel string, status models.TicketStatus) *models.Ticket {
	return &models.Ticket{
		ChannelID:      channel,
		BuyerID:        buyer,
		SellerID:       "seller",
		ProductID:      uuid.New(),
		ProductName:    "Widget",
		Price:          decimal.RequireFromString("9.99"),
		Status:         status,
		LastActivityAt: time.Now(),
	}
}

func TestActiveBuyerIndex(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(newTicket("buyer", "c1", models.TicketStatusOpen)).Error)

	err := db.Create(newTicket("buyer", "c2", models.TicketStatusOpen)).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// Terminal tickets do not count towards the constraint.
	require.NoError(t, db.Create(newTicket("other", "c3", models.TicketStatusClosed)).Error)
	require.NoError(t, db.Create(newTicket("other", "c4", models.TicketStatusForceClosed)).Error)
	require.NoError(t, db.Create(newTicket("other", "c5", models.TicketStatusDelivered)).Error)
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, RunMigrations(db))
}
