package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestUpDown(t *testing.T) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16.4-alpine",
		postgres.WithDatabase("triageapi"),
		postgres.WithUsername("triageapi"),
		postgres.WithPassword("triageapi"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	defer func() {
		err = testcontainers.TerminateContainer(postgresContainer)
		assert.NoError(t, err, "failed to terminate container")
	}()
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get connection string to container")

	db, err := gorm.Open(gormpostgres.Open(dsn))
	require.NoError(t, err, "failed to connect to the database")

	require.NoError(t, Up(ctx, db), "failed to migrate up")
	for _, table := range tables {
		assert.Truef(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
	assert.True(t, db.Migrator().HasIndex("crash", "idx_crash_owner_hash"))

	require.NoError(t, Down(ctx, db), "failed to migrate down")
	for _, table := range tables {
		assert.Falsef(t, db.Migrator().HasTable(table), "table %s survived down", table)
	}

	require.NoError(t, Up(ctx, db), "failed to migrate up a second time")
}

func TestReverse(t *testing.T) {
	in := []string{"a", "b", "c"}
	assert.Equal(t, []string{"c", "b", "a"}, reverse(in))
	assert.Equal(t, []string{"a", "b", "c"}, in)
}
