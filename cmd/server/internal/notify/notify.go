// Package notify fans crash events out to an owner's email and Telegram channels.
//
// Delivery is best effort: one attempt per channel per event, channels fail independently and a
// failure is logged and reported but never handed back to the crash submitter.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/audit"
	"github.com/sweetmon/triage-api/internal/logger"
	triageotel "github.com/sweetmon/triage-api/internal/otel"
	"github.com/sweetmon/triage-api/internal/queue"
	"github.com/sweetmon/triage-api/internal/secret"
	"github.com/sweetmon/triage-api/internal/types"
)

const name = "github.com/sweetmon/triage-api/cmd/server/internal/notify"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
)

const DefaultProfileCacheTTL = time.Minute

// Transport failure of a single channel
type ChannelError struct {
	Err     error
	Channel string
}

func (e ChannelError) Error() string {
	return fmt.Sprintf("%s channel: %v", e.Channel, e.Err)
}

func (e ChannelError) Unwrap() error {
	return e.Err
}

type EmailChannel struct {
	SMTP SMTPConfig
}

type TelegramChannel struct {
	BotToken  string
	Activated bool
}

// Everything needed to deliver to one owner, with channel secrets already opened
type Recipient struct {
	Email            string
	AlertMessage     string
	TelegramChatID   string
	EmailBot         *EmailChannel
	TelegramBot      *TelegramChannel
	OwnerID          uuid.UUID
	UseEmailAlert    bool
	UseTelegramAlert bool
}

type Report struct {
	Failed map[string]error
	Sent   []string
}

var _ queue.MessageHandler = (*Dispatcher)(nil)

type Dispatcher struct {
	db         *gorm.DB
	box        *secret.Box
	email      EmailSender
	chat       ChatSender
	recipients *gocache.Cache
	sent       metric.Int64Counter
}

func NewDispatcher(
	db *gorm.DB,
	box *secret.Box,
	email EmailSender,
	chat ChatSender,
	cacheTTL time.Duration,
) (*Dispatcher, error) {
	sent, err := meter.Int64Counter(
		"triage.notifications.sent",
		metric.WithDescription("notification attempts per channel"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	if cacheTTL <= 0 {
		cacheTTL = DefaultProfileCacheTTL
	}

	return &Dispatcher{
		db:         db,
		box:        box,
		email:      email,
		chat:       chat,
		recipients: gocache.New(cacheTTL, 2*cacheTTL),
		sent:       sent,
	}, nil
}

// Invalidate drops the cached recipient so preference and credential changes apply to the next event
func (d *Dispatcher) Invalidate(ownerID uuid.UUID) {
	d.recipients.Delete(ownerID.String())
}

// Handle decodes a queued event and delivers it. Only undecodable events and unknown owners are
// poison; delivery failures are swallowed so a redelivered message never double sends
func (d *Dispatcher) Handle(ctx context.Context, message []byte) error {
	var event types.NotificationEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return queue.WrapPoisonError(fmt.Errorf("failed to decode notification: %w", err))
	}

	ctx = triageotel.Extract(ctx, event.Trace)
	ctx, span := tracer.Start(ctx, "Dispatcher.Handle", trace.WithAttributes(
		attribute.String("owner.id", event.OwnerID),
		attribute.String("crash.id", event.RecordID),
	))
	defer span.End()

	ownerID, err := uuid.Parse(event.OwnerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid owner id")
		return queue.WrapPoisonError(fmt.Errorf("invalid owner id: %w", err))
	}

	recipient, err := d.Recipient(ctx, ownerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "owner has no profile")
		return queue.WrapPoisonError(err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load recipient")
		return err
	}

	report := d.Notify(ctx, recipient, event)
	span.SetAttributes(
		attribute.StringSlice("sent", report.Sent),
		attribute.Int("failed", len(report.Failed)),
	)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "handled notification")
	return nil
}

// Notify renders the owner's alert and sends it on every enabled channel in parallel
func (d *Dispatcher) Notify(ctx context.Context, recipient *Recipient, event types.NotificationEvent) Report {
	ctx, span := tracer.Start(ctx, "Dispatcher.Notify", trace.WithAttributes(
		attribute.String("owner.id", recipient.OwnerID.String()),
	))
	defer span.End()

	body := Render(recipient.AlertMessage, event.Title, event.Excerpt)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report = Report{Failed: map[string]error{}}
	)
	send := func(channel string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := fn(ctx)
			d.sent.Add(ctx, 1, metric.WithAttributes(
				attribute.String("channel", channel),
				attribute.Bool("ok", err == nil),
			))
			audit.LogNotificationSent(
				audit.Context{OwnerID: &event.OwnerID},
				event.RecordID,
				channel,
				err,
			)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				err = ChannelError{Channel: channel, Err: err}
				logger.Logger.WarnContext(
					ctx,
					"notification channel failed",
					"channel", channel,
					"owner", recipient.OwnerID,
					"crash", event.RecordID,
					"error", err,
				)
				report.Failed[channel] = err
				return
			}
			report.Sent = append(report.Sent, channel)
		}()
	}

	if recipient.UseEmailAlert && recipient.EmailBot != nil && recipient.Email != "" {
		send(models.ChannelEmail, func(ctx context.Context) error {
			return d.email.SendEmail(
				ctx,
				recipient.EmailBot.SMTP,
				recipient.Email,
				subject(event.Title, event.IsNew),
				body,
			)
		})
	}

	if recipient.UseTelegramAlert &&
		recipient.TelegramBot != nil &&
		recipient.TelegramBot.Activated &&
		recipient.TelegramChatID != "" {
		send(models.ChannelTelegram, func(ctx context.Context) error {
			return d.chat.SendChatMessage(
				ctx,
				recipient.TelegramBot.BotToken,
				recipient.TelegramChatID,
				body,
			)
		})
	}

	wg.Wait()

	if len(report.Failed) > 0 {
		span.SetStatus(codes.Error, "some channels failed")
	} else {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "notified")
	}
	return report
}

// Recipient loads and caches the owner's delivery settings, opening channel secrets. A channel whose
// secret cannot be opened is left disabled
func (d *Dispatcher) Recipient(ctx context.Context, ownerID uuid.UUID) (*Recipient, error) {
	if cached, ok := d.recipients.Get(ownerID.String()); ok {
		return cached.(*Recipient), nil
	}

	ctx, span := tracer.Start(ctx, "Dispatcher.Recipient", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
	))
	defer span.End()

	db := d.db.WithContext(ctx)

	var profile models.Profile
	if err := db.Where("owner_id = ?", ownerID).Take(&profile).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load profile")
		return nil, err
	}

	recipient := &Recipient{
		OwnerID:          ownerID,
		Email:            profile.Email,
		AlertMessage:     profile.AlertMessage,
		TelegramChatID:   profile.TelegramChatID,
		UseEmailAlert:    profile.UseEmailAlert,
		UseTelegramAlert: profile.UseTelegramAlert,
	}

	if profile.EmailBotID != nil {
		bot, err := models.ByID[models.EmailBot](ctx, db, *profile.EmailBotID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load email bot")
			return nil, err
		}

		password, err := d.open(ctx, bot.OwnerID, bot.EmailPwEnc)
		if err != nil {
			logger.Logger.WarnContext(ctx, "email bot secret unreadable", "bot", bot.ID, "error", err)
		} else {
			recipient.EmailBot = &EmailChannel{SMTP: SMTPConfig{
				Host:     bot.SMTPServer,
				Port:     bot.SMTPPort,
				Username: bot.EmailID,
				Password: password,
			}}
		}
	}

	if profile.TelegramBotID != nil {
		bot, err := models.ByID[models.TelegramBot](ctx, db, *profile.TelegramBotID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load telegram bot")
			return nil, err
		}

		token, err := d.open(ctx, bot.OwnerID, bot.KeyEnc)
		if err != nil {
			logger.Logger.WarnContext(ctx, "telegram bot secret unreadable", "bot", bot.ID, "error", err)
		} else {
			recipient.TelegramBot = &TelegramChannel{BotToken: token, Activated: bot.IsActivated}
		}
	}

	d.recipients.SetDefault(ownerID.String(), recipient)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "loaded recipient")
	return recipient, nil
}

// secrets are sealed under the key of the bot's owner, which differs from the recipient for shared bots
func (d *Dispatcher) open(ctx context.Context, botOwnerID uuid.UUID, sealed string) (string, error) {
	owner, err := models.ByID[models.Owner](ctx, d.db, botOwnerID)
	if err != nil {
		return "", err
	}
	return d.box.Open(owner.Username, sealed)
}
