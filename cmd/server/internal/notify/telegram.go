package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var _ ChatSender = (*TelegramClient)(nil)

// Bot API sendMessage client. One attempt per message, throttled process wide
type TelegramClient struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	apiURL  string
}

func NewTelegramClient(apiURL string, messagesPerSec float64, timeout time.Duration) *TelegramClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.HTTPClient.Timeout = timeout
	// the default logger prints request urls, which carry the bot token
	client.Logger = nil

	limit := rate.Inf
	if messagesPerSec > 0 {
		limit = rate.Limit(messagesPerSec)
	}

	return &TelegramClient{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		apiURL:  strings.TrimSuffix(apiURL, "/"),
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	Description string `json:"description"`
	OK          bool   `json:"ok"`
}

func (c *TelegramClient) SendChatMessage(
	ctx context.Context,
	botToken string,
	chatID string,
	body string,
) error {
	ctx, span := tracer.Start(ctx, "TelegramClient.SendChatMessage", trace.WithAttributes(
		attribute.String("telegram.chat_id", chatID),
	))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "throttled")
		return fmt.Errorf("throttled: %w", err)
	}

	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: body})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, botToken),
		bytes.NewReader(payload),
	)
	if err != nil {
		err = redact(err, botToken)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build request")
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		err = redact(err, botToken)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach telegram")
		return fmt.Errorf("failed to reach telegram: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var decoded sendMessageResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil {
		err = json.Unmarshal(raw, &decoded)
	}
	if err != nil || resp.StatusCode != http.StatusOK || !decoded.OK {
		err = fmt.Errorf("telegram rejected message: status %d: %s", resp.StatusCode, decoded.Description)
		span.RecordError(err)
		span.SetStatus(codes.Error, "telegram rejected message")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "sent chat message")
	return nil
}

// the bot token is part of the request path and ends up in url errors
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
