// Package testutil builds throwaway databases and redis servers for package tests
package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"instaflow/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated sqlite database that lives for the duration of the test
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// NewMockDB returns a postgres-dialect gorm handle backed by sqlmock
func NewMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

// NewRedis starts a miniredis server and returns a client connected to it
func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

var seq atomic.Int64

// SeedAccount creates an owner with one active Instagram account.
// Empty igsid or pageID leaves that routing id unset.
func SeedAccount(t *testing.T, db *gorm.DB, tier models.PlanTier, igsid, pageID string) (*models.User, *models.InstagramAccount) {
	t.Helper()
	n := seq.Add(1)

	user := &models.User{Email: fmt.Sprintf("owner%d@shop.io", n), PasswordHash: "x", PlanTier: tier, IsActive: true}
	require.NoError(t, db.Create(user).Error)

	account := &models.InstagramAccount{UserID: user.ID, Username: fmt.Sprintf("shop_%d", n), IsActive: true}
	if igsid != "" {
		account.IGSID = &igsid
	}
	if pageID != "" {
		account.PageID = &pageID
	}
	require.NoError(t, db.Create(account).Error)
	return user, account
}
