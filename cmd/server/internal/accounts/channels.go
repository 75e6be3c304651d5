package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/audit"
	"github.com/sweetmon/triage-api/internal/types"
)

// OnEmailBotUpdated seals the SMTP password and stores the bot, reusing the owner's linked bot
// if it owns one. The profile is linked to the result
func (s *Service) OnEmailBotUpdated(
	ctx context.Context,
	ownerID uuid.UUID,
	cfg types.EmailBotConfig,
) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "Service.OnEmailBotUpdated", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
	))
	defer span.End()

	var botID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, profile, err := ownerAndProfile(tx, ownerID)
		if err != nil {
			return err
		}

		sealed, err := s.box.Seal(owner.Username, cfg.Password)
		if err != nil {
			return fmt.Errorf("failed to seal password: %w", err)
		}

		bot := models.EmailBot{}
		if profile.EmailBotID != nil {
			err := tx.Where("id = ? AND owner_id = ?", *profile.EmailBotID, ownerID).Take(&bot).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		bot.OwnerID = ownerID
		bot.EmailID = cfg.EmailID
		bot.EmailPwEnc = sealed
		bot.SMTPServer = cfg.SMTPServer
		bot.SMTPPort = cfg.SMTPPort
		bot.IsPublic = cfg.IsPublic
		if err := tx.Save(&bot).Error; err != nil {
			return fmt.Errorf("failed to save email bot: %w", err)
		}

		botID = bot.ID
		return tx.Model(profile).Update("email_bot_id", bot.ID).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update email bot")
		return uuid.Nil, err
	}

	s.invalidator.Invalidate(ownerID)
	audit.LogChannelUpdated(ownerContext(ownerID), models.ChannelEmail, botID.String(), cfg.IsPublic)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated email bot")
	return botID, nil
}

// OnTelegramBotUpdated is the Telegram counterpart of OnEmailBotUpdated
func (s *Service) OnTelegramBotUpdated(
	ctx context.Context,
	ownerID uuid.UUID,
	cfg types.TelegramBotConfig,
) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "Service.OnTelegramBotUpdated", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
	))
	defer span.End()

	var botID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, profile, err := ownerAndProfile(tx, ownerID)
		if err != nil {
			return err
		}

		sealed, err := s.box.Seal(owner.Username, cfg.Key)
		if err != nil {
			return fmt.Errorf("failed to seal bot key: %w", err)
		}

		bot := models.TelegramBot{}
		if profile.TelegramBotID != nil {
			err := tx.Where("id = ? AND owner_id = ?", *profile.TelegramBotID, ownerID).Take(&bot).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		bot.OwnerID = ownerID
		bot.Name = cfg.Name
		bot.KeyEnc = sealed
		bot.IsActivated = cfg.IsActivated
		bot.IsPublic = cfg.IsPublic
		if err := tx.Save(&bot).Error; err != nil {
			return fmt.Errorf("failed to save telegram bot: %w", err)
		}

		botID = bot.ID
		return tx.Model(profile).Update("telegram_bot_id", bot.ID).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update telegram bot")
		return uuid.Nil, err
	}

	s.invalidator.Invalidate(ownerID)
	audit.LogChannelUpdated(ownerContext(ownerID), models.ChannelTelegram, botID.String(), cfg.IsPublic)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated telegram bot")
	return botID, nil
}

// UseSharedChannel links the owner's profile to a bot, which must be the owner's own or public
func (s *Service) UseSharedChannel(
	ctx context.Context,
	ownerID uuid.UUID,
	channel string,
	botID uuid.UUID,
) error {
	ctx, span := tracer.Start(ctx, "Service.UseSharedChannel", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
		attribute.String("channel", channel),
		attribute.String("bot.id", botID.String()),
	))
	defer span.End()

	var (
		allowed bool
		err     error
		column  string
	)
	query := "id = ? AND (owner_id = ? OR is_public = ?)"
	switch channel {
	case models.ChannelEmail:
		column = "email_bot_id"
		allowed, err = models.Exists[models.EmailBot](ctx, s.db, query, botID, ownerID, true)
	case models.ChannelTelegram:
		column = "telegram_bot_id"
		allowed, err = models.Exists[models.TelegramBot](ctx, s.db, query, botID, ownerID, true)
	default:
		err = fmt.Errorf("unknown channel %q", channel)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check bot")
		return err
	}
	if !allowed {
		span.SetStatus(codes.Error, "bot is neither owned nor public")
		return ErrForbidden
	}

	result := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("owner_id = ?", ownerID).
		Update(column, botID)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to link bot")
		return fmt.Errorf("failed to link bot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "unknown owner")
		return ErrNotFound
	}

	s.invalidator.Invalidate(ownerID)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "linked bot")
	return nil
}

func ownerAndProfile(tx *gorm.DB, ownerID uuid.UUID) (*models.Owner, *models.Profile, error) {
	var owner models.Owner
	if err := tx.Where("id = ?", ownerID).Take(&owner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	var profile models.Profile
	if err := tx.Where("owner_id = ?", ownerID).Take(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	return &owner, &profile, nil
}
