package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/dedup"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/models/sqlitetest"
	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/hash"
	"github.com/sweetmon/triage-api/internal/normalize"
	"github.com/sweetmon/triage-api/internal/types"
	"github.com/sweetmon/triage-api/internal/upload"
	mockuploader "github.com/sweetmon/triage-api/internal/upload/mock"
)

type recordingPublisher struct {
	events []types.NotificationEvent
	mu     sync.Mutex
}

func (r *recordingPublisher) Publish(_ context.Context, event types.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) Events() []types.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.NotificationEvent(nil), r.events...)
}

func memStore(t *testing.T) (*artifact.Store, afero.Fs) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	roots := map[artifact.Root]upload.Uploader{}
	for _, root := range artifact.Roots {
		u, err := upload.NewFSUploader(fsys, "/data/"+string(root))
		require.NoError(t, err)
		roots[root] = u
	}

	store, err := artifact.NewStore(roots)
	require.NoError(t, err)
	return store, fsys
}

func mockStore(t *testing.T, u upload.Uploader) *artifact.Store {
	t.Helper()

	roots := map[artifact.Root]upload.Uploader{}
	for _, root := range artifact.Roots {
		roots[root] = u
	}

	store, err := artifact.NewStore(roots)
	require.NoError(t, err)
	return store
}

func newPipeline(
	t *testing.T,
	db *gorm.DB,
	store *artifact.Store,
	index Index,
) (*Pipeline, *recordingPublisher) {
	t.Helper()

	publisher := &recordingPublisher{}
	p, err := New(db, store, index, normalize.Stack{}, publisher)
	require.NoError(t, err)
	return p, publisher
}

func count[T any](t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(new(T)).Where(query, args...).Count(&n).Error)
	return n
}

func TestSubmitScenario(t *testing.T) {
	db := sqlitetest.New(t)
	owner, machine := sqlitetest.Seed(t, db, "alice")
	store, fsys := memStore(t)
	p, publisher := newPipeline(t, db, store, dedup.NewIndex(0))

	sub := Submission{
		OwnerID:   owner.ID,
		MachineID: &machine.ID,
		Title:     "SEGV in foo",
		CrashLog:  "SEGV at 0x1234 in foo()",
		Artifact:  []byte("crashing input"),
		Filename:  "crash-1",
	}

	first, err := p.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, first.IsNew)
	assert.Equal(t, first.RecordID, first.CanonicalID)
	assert.Equal(t, hash.Fingerprint(normalize.Stack{}.Normalize([]byte(sub.CrashLog))), first.Fingerprint)

	second, err := p.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.CanonicalID, second.CanonicalID)
	assert.NotEqual(t, first.RecordID, second.RecordID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	crash, err := models.ByID[models.Crash](context.Background(), db, first.CanonicalID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, crash.DupCrash)
	assert.Equal(t, "SEGV in foo", crash.Title)
	assert.Equal(t, first.Artifact.String(), crash.CrashFile)

	dup, err := models.ByID[models.DupCrash](context.Background(), db, second.RecordID)
	require.NoError(t, err)
	assert.Equal(t, crash.ID, dup.OriginalCrashID)

	m, err := models.ByID[models.Machine](context.Background(), db, machine.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.CrashCount)

	for _, res := range []*Result{first, second} {
		data, err := afero.ReadFile(fsys, "/data/crash/"+res.RecordID.String()+"/crash-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("crashing input"), data)
	}

	events := publisher.Events()
	require.Len(t, events, 2)
	assert.True(t, events[0].IsNew)
	assert.False(t, events[1].IsNew)
	assert.Equal(t, owner.ID.String(), events[0].OwnerID)
	assert.Equal(t, "SEGV at 0x1234 in foo()", events[0].Excerpt)
}

func TestSubmitNormalizedLogsShareFingerprint(t *testing.T) {
	db := sqlitetest.New(t)
	owner, _ := sqlitetest.Seed(t, db, "alice")
	store, _ := memStore(t)
	p, _ := newPipeline(t, db, store, dedup.NewIndex(0))

	a, err := p.Submit(context.Background(), Submission{
		OwnerID:  owner.ID,
		Title:    "a",
		CrashLog: "==123==ERROR: AddressSanitizer: heap-use-after-free on address 0x602000000010\r\n",
		Artifact: []byte("a"),
		Filename: "a",
	})
	require.NoError(t, err)

	b, err := p.Submit(context.Background(), Submission{
		OwnerID:  owner.ID,
		Title:    "b",
		CrashLog: "==9876==ERROR: AddressSanitizer: heap-use-after-free on address 0x7f0000001234\n",
		Artifact: []byte("b"),
		Filename: "b",
	})
	require.NoError(t, err)

	assert.True(t, a.IsNew)
	assert.False(t, b.IsNew)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestSubmitOwnerIsolation(t *testing.T) {
	db := sqlitetest.New(t)
	alice, _ := sqlitetest.Seed(t, db, "alice")
	bob, _ := sqlitetest.Seed(t, db, "bob")
	store, _ := memStore(t)
	p, _ := newPipeline(t, db, store, dedup.NewIndex(0))

	for _, owner := range []models.Owner{alice, bob} {
		res, err := p.Submit(context.Background(), Submission{
			OwnerID:  owner.ID,
			Title:    "same",
			CrashLog: "identical log",
			Artifact: []byte("x"),
			Filename: "x",
		})
		require.NoError(t, err)
		assert.Truef(t, res.IsNew, "first submission for %s must be canonical", owner.Username)
	}

	assert.EqualValues(t, 2, count[models.Crash](t, db, "crash_hash = ?", hash.Fingerprint([]byte("identical log"))))
	assert.EqualValues(t, 0, count[models.DupCrash](t, db, "1 = 1"))
}

func TestSubmitConcurrent(t *testing.T) {
	const n = 12

	db := sqlitetest.New(t)
	owner, machine := sqlitetest.Seed(t, db, "alice")
	store, _ := memStore(t)
	p, publisher := newPipeline(t, db, store, dedup.NewIndex(0))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*Result
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Submit(context.Background(), Submission{
				OwnerID:   owner.ID,
				MachineID: &machine.ID,
				Title:     "race",
				CrashLog:  "racy crash",
				Artifact:  []byte{byte(i)},
				Filename:  fmt.Sprintf("input-%d", i),
			})
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, results, n)
	newCount := 0
	for _, res := range results {
		if res.IsNew {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount, "exactly one submission creates the canonical crash")

	fingerprint := hash.Fingerprint([]byte("racy crash"))
	assert.EqualValues(t, 1, count[models.Crash](t, db, "owner_id = ? AND crash_hash = ?", owner.ID, fingerprint))
	assert.EqualValues(t, n-1, count[models.DupCrash](t, db, "owner_id = ?", owner.ID))

	var crash models.Crash
	require.NoError(t, db.Where("owner_id = ?", owner.ID).Take(&crash).Error)
	assert.EqualValues(t, n-1, crash.DupCrash)

	m, err := models.ByID[models.Machine](context.Background(), db, machine.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, m.CrashCount)
	assert.Len(t, publisher.Events(), n)
}

// hides the canonical crash from the first lookup, like a second process that inserted concurrently
type staleIndex struct {
	*dedup.Index
	once sync.Once
}

func (s *staleIndex) Lookup(
	ctx context.Context,
	tx *gorm.DB,
	ownerID uuid.UUID,
	fingerprint string,
) (*models.Crash, error) {
	stale := false
	s.once.Do(func() { stale = true })
	if stale {
		return nil, nil
	}
	return s.Index.Lookup(ctx, tx, ownerID, fingerprint)
}

func TestSubmitLostInsertRaceBecomesDuplicate(t *testing.T) {
	db := sqlitetest.New(t)
	owner, _ := sqlitetest.Seed(t, db, "alice")
	store, _ := memStore(t)

	fingerprint := hash.Fingerprint(normalize.Stack{}.Normalize([]byte("contended")))
	now := time.Now().UTC()
	existing := models.Crash{OwnerID: owner.ID, CrashHash: fingerprint, RegDate: now, LatestDate: now}
	require.NoError(t, db.Create(&existing).Error)

	p, _ := newPipeline(t, db, store, &staleIndex{Index: dedup.NewIndex(0)})
	res, err := p.Submit(context.Background(), Submission{
		OwnerID:  owner.ID,
		Title:    "t",
		CrashLog: "contended",
		Artifact: []byte("x"),
		Filename: "x",
	})
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.Equal(t, existing.ID, res.CanonicalID)

	crash, err := models.ByID[models.Crash](context.Background(), db, existing.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, crash.DupCrash)
}

func TestSubmitUnauthorized(t *testing.T) {
	db := sqlitetest.New(t)
	alice, _ := sqlitetest.Seed(t, db, "alice")
	_, bobMachine := sqlitetest.Seed(t, db, "bob")

	ctrl := gomock.NewController(t)
	uploader := mockuploader.NewMockUploader(ctrl)
	p, publisher := newPipeline(t, db, mockStore(t, uploader), dedup.NewIndex(0))

	t.Run("UnknownOwner", func(t *testing.T) {
		_, err := p.Submit(context.Background(), Submission{
			OwnerID:  uuid.New(),
			CrashLog: "x",
			Artifact: []byte("x"),
		})
		var authErr AuthError
		require.ErrorAs(t, err, &authErr)
	})

	t.Run("ForeignMachine", func(t *testing.T) {
		_, err := p.Submit(context.Background(), Submission{
			OwnerID:   alice.ID,
			MachineID: &bobMachine.ID,
			CrashLog:  "x",
			Artifact:  []byte("x"),
		})
		var authErr AuthError
		require.ErrorAs(t, err, &authErr)
	})

	assert.EqualValues(t, 0, count[models.Crash](t, db, "1 = 1"))
	assert.Empty(t, publisher.Events())
}

func TestSubmitStorageFailureLeavesNoRecord(t *testing.T) {
	db := sqlitetest.New(t)
	owner, machine := sqlitetest.Seed(t, db, "alice")

	ctrl := gomock.NewController(t)
	uploader := mockuploader.NewMockUploader(ctrl)
	p, publisher := newPipeline(t, db, mockStore(t, uploader), dedup.NewIndex(0))

	sub := Submission{
		OwnerID:   owner.ID,
		MachineID: &machine.ID,
		Title:     "t",
		CrashLog:  "storage",
		Artifact:  []byte("x"),
		Filename:  "x",
	}

	t.Run("Canonical", func(t *testing.T) {
		uploader.EXPECT().
			Upload(gomock.Any(), gomock.Any(), int64(1), gomock.Any()).
			Return(errors.New("disk full"))

		_, err := p.Submit(context.Background(), sub)
		var storageErr StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.EqualError(t, errors.Unwrap(storageErr), "disk full")

		assert.EqualValues(t, 0, count[models.Crash](t, db, "owner_id = ?", owner.ID))
	})

	t.Run("Duplicate", func(t *testing.T) {
		uploader.EXPECT().
			Upload(gomock.Any(), gomock.Any(), int64(1), gomock.Any()).
			Return(nil)
		first, err := p.Submit(context.Background(), sub)
		require.NoError(t, err)

		uploader.EXPECT().
			Upload(gomock.Any(), gomock.Any(), int64(1), gomock.Any()).
			Return(errors.New("disk full"))
		_, err = p.Submit(context.Background(), sub)
		var storageErr StorageError
		require.ErrorAs(t, err, &storageErr)

		crash, err := models.ByID[models.Crash](context.Background(), db, first.CanonicalID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, crash.DupCrash, "counter must not move")
		assert.EqualValues(t, 0, count[models.DupCrash](t, db, "owner_id = ?", owner.ID))

		m, err := models.ByID[models.Machine](context.Background(), db, machine.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, m.CrashCount)
	})

	assert.Len(t, publisher.Events(), 1)
}

func TestSubmitCommitFailureRemovesArtifact(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	uploader := mockuploader.NewMockUploader(ctrl)
	p, publisher := newPipeline(t, db, mockStore(t, uploader), dedup.NewIndex(0))

	ownerID := uuid.New()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "owner"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "crash" WHERE owner_id = \$1 AND crash_hash = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO "crash"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	var key string
	uploader.EXPECT().
		Upload(gomock.Any(), gomock.Any(), int64(1), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ io.ReadSeeker, _ int64, url string) error {
			key = url
			return nil
		})
	uploader.EXPECT().
		Delete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, url string) error {
			assert.Equal(t, key, url, "must delete the artifact it wrote")
			return nil
		})

	_, err = p.Submit(context.Background(), Submission{
		OwnerID:  ownerID,
		Title:    "t",
		CrashLog: "commit",
		Artifact: []byte("x"),
		Filename: "x",
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, publisher.Events())
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "abc", excerpt("abc", 5))
	assert.Equal(t, "ab", excerpt("abc", 2))
	assert.Equal(t, "한글", excerpt("한글로그", 2))
}

func TestSubmitReceivedAt(t *testing.T) {
	db := sqlitetest.New(t)
	owner, machine := sqlitetest.Seed(t, db, "alice")
	store, _ := memStore(t)
	p, _ := newPipeline(t, db, store, dedup.NewIndex(0))

	received := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	later := received.Add(time.Hour)

	sub := Submission{
		OwnerID:    owner.ID,
		MachineID:  &machine.ID,
		Title:      "SEGV in foo",
		CrashLog:   "SEGV at 0x1234 in foo()",
		Artifact:   []byte("input"),
		Filename:   "crash",
		ReceivedAt: received,
	}

	first, err := p.Submit(context.Background(), sub)
	require.NoError(t, err)

	sub.ReceivedAt = later
	_, err = p.Submit(context.Background(), sub)
	require.NoError(t, err)

	crash, err := models.ByID[models.Crash](context.Background(), db, first.CanonicalID)
	require.NoError(t, err)
	assert.True(t, crash.RegDate.Equal(received), "reg date %s", crash.RegDate)
	assert.True(t, crash.LatestDate.Equal(later), "latest date %s", crash.LatestDate)
}
