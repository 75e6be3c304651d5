// Package sqlitetest opens throwaway in-memory databases with the full schema for unit tests
package sqlitetest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
)

// New returns a migrated database private to t. One connection only, so concurrent callers queue on
// the pool instead of tripping over sqlite's table locks
func New(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:%s_%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"),
		uuid.NewString(),
	)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to open sqlite")

	raw, err := db.DB()
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...), "failed to migrate sqlite")
	return db
}

// Seed creates an owner with its profile and one machine
func Seed(t *testing.T, db *gorm.DB, username string) (models.Owner, models.Machine) {
	t.Helper()

	owner := models.Owner{Username: username}
	require.NoError(t, db.Create(&owner).Error)

	profile := models.Profile{
		OwnerID:             owner.ID,
		AlertMessage:        models.DefaultAlertMessage,
		RegistrationKeyHash: uuid.NewString(),
	}
	require.NoError(t, db.Create(&profile).Error)

	machine := models.Machine{OwnerID: owner.ID, FuzzerName: username + "-fuzzer", Token: "unused"}
	require.NoError(t, db.Create(&machine).Error)

	return owner, machine
}
