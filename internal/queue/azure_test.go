package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/azure/azurite"
	"go.uber.org/mock/gomock"

	"github.com/sweetmon/triage-api/internal/queue"
	mockqueue "github.com/sweetmon/triage-api/internal/queue/mock"
	"github.com/sweetmon/triage-api/internal/types"
)

const notificationQueue = "notifications"

func startQueue(t *testing.T) (*azqueue.QueueClient, string) {
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

	cred, err := azqueue.NewSharedKeyCredential(azurite.AccountName, azurite.AccountKey)
	require.NoError(t, err, "failed to get creds")

	serviceURL, err := azuriteContainer.QueueServiceURL(ctx)
	require.NoError(t, err, "failed to get serviceURL")
	serviceURL = fmt.Sprintf("%s/%s", serviceURL, azurite.AccountName)

	service, err := azqueue.NewServiceClientWithSharedKeyCredential(serviceURL, cred, nil)
	require.NoError(t, err, "failed to make azure queue client")

	client := service.NewQueueClient(notificationQueue)
	_, err = client.Create(ctx, nil)
	require.NoError(t, err, "failed to make queue")

	return client, serviceURL
}

// nothing should arrive before the deadline
func expectEmpty(t *testing.T, q queue.Queuer) {
	t.Helper()

	ctrl := gomock.NewController(t)
	handler := mockqueue.NewMockMessageHandler(ctrl)
	handler.EXPECT().Handle(gomock.Any(), gomock.Any()).Times(0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, q.Dequeue(ctx, time.Minute, handler))
}

func TestAzure(t *testing.T) {
	ctx := t.Context()
	client, serviceURL := startQueue(t)

	queuer, err := queue.NewAzureQueuer(
		azurite.AccountName,
		azurite.AccountKey,
		serviceURL,
		notificationQueue,
	)
	require.NoError(t, err, "failed to construct queuer")

	t.Run("Enqueue", func(t *testing.T) {
		event := types.NotificationEvent{
			OwnerID:     "0190f5c4-8d1c-7cc1-a5a6-3f1f2d4b7e10",
			Title:       "heap-buffer-overflow in parse",
			Fingerprint: "4f2a",
			IsNew:       true,
		}
		require.NoError(t, queuer.Enqueue(ctx, event))

		dequeued, err := client.DequeueMessage(ctx, nil)
		require.NoError(t, err)
		require.Len(t, dequeued.Messages, 1)

		var got types.NotificationEvent
		require.NoError(t, json.Unmarshal([]byte(*dequeued.Messages[0].MessageText), &got))
		assert.Equal(t, event, got)

		_, err = client.DeleteMessage(ctx, *dequeued.Messages[0].MessageID, *dequeued.Messages[0].PopReceipt, nil)
		require.NoError(t, err)
	})

	t.Run("Empty", func(t *testing.T) {
		expectEmpty(t, queuer)
	})

	t.Run("Handled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		handler := mockqueue.NewMockMessageHandler(ctrl)

		_, err := client.EnqueueMessage(ctx, `{"title":"handled"}`, nil)
		require.NoError(t, err)

		handler.EXPECT().Handle(gomock.Any(), gomock.Eq([]byte(`{"title":"handled"}`))).Return(nil)
		require.NoError(t, queuer.Dequeue(ctx, time.Minute, handler))

		expectEmpty(t, queuer)
	})

	t.Run("FailedHandlerReleasesMessage", func(t *testing.T) {
		retrying := queue.NewAzureQueuerFromClient(
			client,
			queue.WithRetryDelay(0),
			queue.WithPollInterval(100*time.Millisecond),
		)

		ctrl := gomock.NewController(t)
		handler := mockqueue.NewMockMessageHandler(ctrl)

		_, err := client.EnqueueMessage(ctx, "retry-me", nil)
		require.NoError(t, err)

		gomock.InOrder(
			handler.EXPECT().Handle(gomock.Any(), gomock.Eq([]byte("retry-me"))).Return(errors.New("smtp down")),
			handler.EXPECT().Handle(gomock.Any(), gomock.Eq([]byte("retry-me"))).Return(nil),
		)

		require.NoError(t, retrying.Dequeue(ctx, time.Minute, handler))
		require.NoError(t, retrying.Dequeue(ctx, time.Minute, handler))
	})

	t.Run("PoisonIsDropped", func(t *testing.T) {
		retrying := queue.NewAzureQueuerFromClient(
			client,
			queue.WithRetryDelay(0),
			queue.WithPollInterval(100*time.Millisecond),
		)

		ctrl := gomock.NewController(t)
		handler := mockqueue.NewMockMessageHandler(ctrl)

		_, err := client.EnqueueMessage(ctx, "{", nil)
		require.NoError(t, err)

		handler.EXPECT().
			Handle(gomock.Any(), gomock.Eq([]byte("{"))).
			Return(queue.WrapPoisonError(errors.New("bad json")))
		require.NoError(t, retrying.Dequeue(ctx, time.Minute, handler))

		expectEmpty(t, retrying)
	})
}
