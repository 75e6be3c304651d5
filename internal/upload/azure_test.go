package upload_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/azure/azurite"

	"github.com/sweetmon/triage-api/internal/upload"
)

const crashContainer = "crash"

// azurite with one container, returns a raw client for checking what the uploader did
func startAzurite(t *testing.T) (*azblob.Client, string) {
	t.Helper()
	ctx := context.Background()

	azuriteContainer, err := azurite.Run(
		ctx,
		"mcr.microsoft.com/azure-storage/azurite:latest",
		azurite.WithInMemoryPersistence(256),
	)
	require.NoError(t, err, "failed to make azurite container")
	t.Cleanup(func() {
		assert.NoError(t, testcontainers.TerminateContainer(azuriteContainer))
	})

	cred, err := azblob.NewSharedKeyCredential(azurite.AccountName, azurite.AccountKey)
	require.NoError(t, err, "failed to get creds")

	serviceURL, err := azuriteContainer.BlobServiceURL(ctx)
	require.NoError(t, err, "failed to get serviceURL")
	serviceURL = fmt.Sprintf("%s/%s", serviceURL, azurite.AccountName)

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	require.NoError(t, err, "failed to make azure blob client")

	_, err = client.CreateContainer(ctx, crashContainer, nil)
	require.NoError(t, err, "failed to make container")

	return client, serviceURL
}

func TestAzure(t *testing.T) {
	ctx := context.Background()
	client, serviceURL := startAzurite(t)

	uploader, err := upload.NewAzureUploader(
		azurite.AccountName,
		azurite.AccountKey,
		serviceURL,
		crashContainer,
	)
	require.NoError(t, err, "failed to construct uploader")

	t.Run("StoreIdentifier", func(t *testing.T) {
		id, err := uploader.StoreIdentifier(ctx)
		require.NoError(t, err)
		assert.Equal(t, crashContainer, id)
	})

	t.Run("Exists", func(t *testing.T) {
		key := "abc/" + uuid.NewString()

		exists, err := uploader.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, "nothing stored yet")

		_, err = client.UploadBuffer(ctx, crashContainer, key, []byte("AAAA"), nil)
		require.NoError(t, err, "failed to seed blob")

		exists, err = uploader.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Upload", func(t *testing.T) {
		key := uuid.NewString() + "/crash-input"
		content := "\x00\x01heap overflow input"

		require.NoError(t, uploader.Upload(ctx, strings.NewReader(content), int64(len(content)), key))

		buffer := make([]byte, len(content))
		_, err := client.DownloadBuffer(ctx, crashContainer, key, buffer, nil)
		require.NoError(t, err, "failed to download blob")
		assert.Equal(t, content, string(buffer))
	})

	t.Run("DownloadAndDelete", func(t *testing.T) {
		key := uuid.NewString()
		require.NoError(t, upload.Bytes(ctx, uploader, key, []byte("crash bytes")))

		data, err := upload.ReadAll(ctx, uploader, key)
		require.NoError(t, err)
		assert.Equal(t, "crash bytes", string(data))

		require.NoError(t, uploader.Delete(ctx, key))
		require.NoError(t, uploader.Delete(ctx, key), "deleting twice should not fail")

		_, err = uploader.Download(ctx, key)
		require.ErrorIs(t, err, upload.ErrNotFound)
	})

	t.Run("PresignedReadURL", func(t *testing.T) {
		key := uuid.NewString()
		require.NoError(t, upload.Bytes(ctx, uploader, key, []byte("shared crash")))

		presigned, err := uploader.PresignedReadURL(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Contains(t, presigned, "sig=")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, presigned, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "shared crash", string(body))
	})
}
