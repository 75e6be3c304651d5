package upload_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetmon/triage-api/internal/upload"
)

func TestFSUploader(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	uploader, err := upload.NewFSUploader(fsys, "/srv/crash")
	require.NoError(t, err, "failed to construct uploader")

	t.Run("UploadAndRead", func(t *testing.T) {
		require.NoError(t, upload.Bytes(ctx, uploader, "ab/cd/crash.bin", []byte("abc")))

		exists, err := uploader.Exists(ctx, "ab/cd/crash.bin")
		require.NoError(t, err)
		assert.True(t, exists)

		data, err := upload.ReadAll(ctx, uploader, "ab/cd/crash.bin")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(data))

		onDisk, err := afero.ReadFile(fsys, filepath.Join("/srv/crash", "ab", "cd", "crash.bin"))
		require.NoError(t, err)
		assert.Equal(t, "abc", string(onDisk))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, upload.Bytes(ctx, uploader, "same", []byte("first")))
		require.NoError(t, upload.Bytes(ctx, uploader, "same", []byte("second")))

		data, err := upload.ReadAll(ctx, uploader, "same")
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))
	})

	t.Run("StaysUnderBase", func(t *testing.T) {
		require.NoError(t, upload.Bytes(ctx, uploader, "../../etc/escape", []byte("x")))

		escaped, err := afero.Exists(fsys, "/etc/escape")
		require.NoError(t, err)
		assert.False(t, escaped)

		contained, err := afero.Exists(fsys, "/srv/crash/etc/escape")
		require.NoError(t, err)
		assert.True(t, contained)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := uploader.Download(ctx, "nope")
		require.ErrorIs(t, err, upload.ErrNotFound)

		exists, err := uploader.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, upload.Bytes(ctx, uploader, "gone", []byte("x")))
		require.NoError(t, uploader.Delete(ctx, "gone"))
		require.NoError(t, uploader.Delete(ctx, "gone"), "deleting twice should not fail")

		_, err := uploader.Download(ctx, "gone")
		require.ErrorIs(t, err, upload.ErrNotFound)
	})

	t.Run("Presign", func(t *testing.T) {
		_, err := uploader.PresignedReadURL(ctx, "gone", time.Minute)
		require.ErrorIs(t, err, upload.ErrPresignUnsupported)
	})

	t.Run("DownloadBodyCloses", func(t *testing.T) {
		require.NoError(t, upload.Bytes(ctx, uploader, "body", []byte("x")))

		body, err := uploader.Download(ctx, "body")
		require.NoError(t, err)
		_, err = io.ReadAll(body)
		require.NoError(t, err)
		require.NoError(t, body.Close())
	})
}
