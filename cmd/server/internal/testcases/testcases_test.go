package testcases_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sweetmon/triage-api/cmd/server/internal/ingest"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/models/sqlitetest"
	"github.com/sweetmon/triage-api/cmd/server/internal/testcases"
	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/upload"
	mockuploader "github.com/sweetmon/triage-api/internal/upload/mock"
)

func stores(t *testing.T, override map[artifact.Root]upload.Uploader) (*artifact.Store, afero.Fs) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	roots := map[artifact.Root]upload.Uploader{}
	for _, root := range artifact.Roots {
		if u, ok := override[root]; ok {
			roots[root] = u
			continue
		}
		u, err := upload.NewFSUploader(fsys, "/data/"+string(root))
		require.NoError(t, err)
		roots[root] = u
	}

	store, err := artifact.NewStore(roots)
	require.NoError(t, err)
	return store, fsys
}

func countFiles(t *testing.T, fsys afero.Fs) int {
	t.Helper()

	n := 0
	err := afero.Walk(fsys, "/", func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func submission(ownerID, machineID uuid.UUID) testcases.Submission {
	return testcases.Submission{
		OwnerID:     ownerID,
		MachineID:   machineID,
		Title:       "png chunk overflow",
		FuzzerName:  "afl-1",
		Target:      "libpng",
		Description: "minimized",
		TestcaseURL: "https://example.com/tc",
		Testcase:    []byte("testcase bytes"),
		Fuzzer:      []byte("fuzzer bytes"),
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.New(t)
	owner, machine := sqlitetest.Seed(t, db, "alice")
	store, fsys := stores(t, nil)
	svc := testcases.NewService(db, store)

	id, err := svc.Submit(ctx, submission(owner.ID, machine.ID))
	require.NoError(t, err)

	row, err := models.ByID[models.Testcase](ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, row.OwnerID)
	assert.Equal(t, "https://example.com/tc", row.TestcaseURL)

	testcaseFile := models.PtrFromNull(row.TestcaseFile)
	require.NotNil(t, testcaseFile)
	ref, err := artifact.ParseRef(*testcaseFile)
	require.NoError(t, err)
	assert.Equal(t, artifact.RootTestcase, ref.Root)
	assert.NotContains(t, ref.Key, "png", "stored names are random")

	data, err := store.Retrieve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("testcase bytes"), data)

	fuzzerFile := models.PtrFromNull(row.FuzzerFile)
	require.NotNil(t, fuzzerFile)
	fuzzerRef, err := artifact.ParseRef(*fuzzerFile)
	require.NoError(t, err)
	assert.Equal(t, artifact.RootFuzzer, fuzzerRef.Root)

	assert.Equal(t, 2, countFiles(t, fsys))

	stored, err := models.ByID[models.Machine](ctx, db, machine.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TestcaseCount)
}

func TestSubmitWithoutBlobs(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.New(t)
	owner, machine := sqlitetest.Seed(t, db, "alice")
	store, fsys := stores(t, nil)
	svc := testcases.NewService(db, store)

	sub := submission(owner.ID, machine.ID)
	sub.Testcase = nil
	sub.Fuzzer = nil

	id, err := svc.Submit(ctx, sub)
	require.NoError(t, err)

	row, err := models.ByID[models.Testcase](ctx, db, id)
	require.NoError(t, err)
	assert.Nil(t, models.PtrFromNull(row.TestcaseFile))
	assert.Nil(t, models.PtrFromNull(row.FuzzerFile))
	assert.Equal(t, 0, countFiles(t, fsys))
}

func TestSubmitForeignMachine(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.New(t)
	alice, _ := sqlitetest.Seed(t, db, "alice")
	_, bobMachine := sqlitetest.Seed(t, db, "bob")
	store, fsys := stores(t, nil)
	svc := testcases.NewService(db, store)

	_, err := svc.Submit(ctx, submission(alice.ID, bobMachine.ID))

	var authErr ingest.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 0, countFiles(t, fsys), "written blobs are removed")

	var rows int64
	require.NoError(t, db.Model(&models.Testcase{}).Count(&rows).Error)
	assert.Equal(t, int64(0), rows)
}

func TestSubmitStorageFailure(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.New(t)
	owner, machine := sqlitetest.Seed(t, db, "alice")

	ctrl := gomock.NewController(t)
	failing := mockuploader.NewMockUploader(ctrl)
	failing.EXPECT().
		Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("disk full"))

	store, fsys := stores(t, map[artifact.Root]upload.Uploader{artifact.RootTestcase: failing})
	svc := testcases.NewService(db, store)

	_, err := svc.Submit(ctx, submission(owner.ID, machine.ID))

	var storageErr ingest.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, 0, countFiles(t, fsys))

	var rows int64
	require.NoError(t, db.Model(&models.Testcase{}).Count(&rows).Error)
	assert.Equal(t, int64(0), rows)

	stored, err := models.ByID[models.Machine](ctx, db, machine.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.TestcaseCount)
}
