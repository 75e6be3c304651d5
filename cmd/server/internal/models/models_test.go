package models

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/migrations"
)

func startPostgres(t *testing.T) *gorm.DB {
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
	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(postgresContainer)
		assert.NoError(t, err, "failed to terminate container")
	})
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get connection string to container")

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "failed to connect to the database")

	require.NoError(t, migrations.Up(ctx, db), "failed to migrate db")
	return db
}

func TestUtilities(t *testing.T) {
	db := startPostgres(t)

	auth := &Auth{
		Token:       "foobar",
		Note:        "foobar",
		Active:      NewNullFromData(true),
		Permissions: Permissions{AccountManagement: true},
	}
	result := db.Create(auth)
	require.NoError(t, result.Error, "failed to write element to db")

	t.Run("ExistsByID", func(t *testing.T) {
		exists, err := Exists[Auth](context.Background(), db, "id = ?", auth.ID)
		require.NoError(t, err, "failed to check db for existence")

		assert.True(t, exists, "did not find the object")
	})

	t.Run("ExistsByNote", func(t *testing.T) {
		exists, err := Exists[Auth](context.Background(), db, "note = ?", auth.Note)
		require.NoError(t, err, "failed to check db for existence")

		assert.True(t, exists, "did not find the object")
	})

	t.Run("DoesNotExistByID", func(t *testing.T) {
		exists, err := Exists[Auth](context.Background(), db, "id = ?", uuid.New())
		require.NoError(t, err, "failed to check db for existence")

		assert.False(t, exists, "should not find object")
	})

	t.Run("CrashFingerprintUniquePerOwner", func(t *testing.T) {
		ownerA := Owner{Username: "a"}
		ownerB := Owner{Username: "b"}
		require.NoError(t, db.Create(&ownerA).Error)
		require.NoError(t, db.Create(&ownerB).Error)

		now := time.Now()
		crash := Crash{OwnerID: ownerA.ID, CrashHash: "abc", RegDate: now, LatestDate: now}
		require.NoError(t, db.Create(&crash).Error)

		again := Crash{OwnerID: ownerA.ID, CrashHash: "abc", RegDate: now, LatestDate: now}
		err := db.Create(&again).Error
		require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

		other := Crash{OwnerID: ownerB.ID, CrashHash: "abc", RegDate: now, LatestDate: now}
		require.NoError(t, db.Create(&other).Error, "another owner may hold the same fingerprint")
	})

	t.Run("UpdatedAtTrigger", func(t *testing.T) {
		owner := Owner{Username: "trigger"}
		require.NoError(t, db.Create(&owner).Error)

		machine := Machine{OwnerID: owner.ID, FuzzerName: "afl", RegDate: time.Now(), Ping: time.Now()}
		require.NoError(t, db.Create(&machine).Error)
		before := machine.UpdatedAt

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, db.Exec("UPDATE machine SET crash_count = 5 WHERE id = ?", machine.ID).Error)

		m, err := ByID[Machine](context.Background(), db, machine.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 5, m.CrashCount)
		assert.True(t, m.UpdatedAt.After(before), "updated_at was not touched")
	})
}

func TestBeforeCreateAssignsID(t *testing.T) {
	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())),
		&gorm.Config{TranslateError: true},
	)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(All()...))

	first := Owner{Username: "first"}
	second := Owner{Username: "second"}
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)

	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, uuid.Version(7), first.ID.Version())
	assert.NotEqual(t, first.ID, second.ID)

	fixed := uuid.New()
	third := Owner{Username: "third", Model: Model{ID: fixed}}
	require.NoError(t, db.Create(&third).Error)
	assert.Equal(t, fixed, third.ID, "explicit ids are kept")

	got, err := ByID[Owner](context.Background(), db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Username)
}

func TestNullHelpers(t *testing.T) {
	s := "x"
	assert.Equal(t, &s, PtrFromNull(NewNull(&s)))
	assert.Nil(t, PtrFromNull(NewNull[string](nil)))
	assert.True(t, NewNullFromData(3).Valid)
}
