// Package accounts holds the operations the account layer drives: owner lifecycle, notification
// preferences, channel credentials, machine registration and artifact access.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/audit"
	"github.com/sweetmon/triage-api/internal/hash"
	"github.com/sweetmon/triage-api/internal/secret"
	"github.com/sweetmon/triage-api/internal/types"
)

const name = "github.com/sweetmon/triage-api/cmd/server/internal/accounts"

var tracer = otel.Tracer(name)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("already exists")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidRegistrationKey = errors.New("invalid registration key")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrTokenInvalid           = errors.New("download token is invalid or expired")
)

const DefaultDownloadTokenTTL = 10 * time.Minute

// Drops cached per-owner notification settings
type Invalidator interface {
	Invalidate(ownerID uuid.UUID)
}

type Service struct {
	db          *gorm.DB
	box         *secret.Box
	store       *artifact.Store
	invalidator Invalidator
	now         func() time.Time
	tokenTTL    time.Duration
}

type Option func(*Service)

func WithDownloadTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	db *gorm.DB,
	box *secret.Box,
	store *artifact.Store,
	invalidator Invalidator,
	opts ...Option,
) *Service {
	s := &Service{
		db:          db,
		box:         box,
		store:       store,
		invalidator: invalidator,
		now:         func() time.Time { return time.Now().UTC() },
		tokenTTL:    DefaultDownloadTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// registration keys and download tokens are random and looked up by value, so a plain sha256 it is
func digest(token string) string {
	return hash.Fingerprint([]byte(token))
}

func ownerContext(ownerID uuid.UUID) audit.Context {
	id := ownerID.String()
	return audit.Context{OwnerID: &id}
}

// OnOwnerCreated provisions the profile of a new owner and hands back its registration key. The key
// is only ever returned here and from RotateRegistrationKey
func (s *Service) OnOwnerCreated(
	ctx context.Context,
	req types.OwnerCreate,
) (*models.Owner, string, error) {
	ctx, span := tracer.Start(ctx, "Service.OnOwnerCreated", trace.WithAttributes(
		attribute.String("username", req.Username),
	))
	defer span.End()

	key, err := hash.PathToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate registration key")
		return nil, "", err
	}

	owner := models.Owner{Username: req.Username}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&owner).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return fmt.Errorf("failed to create owner: %w", err)
		}

		profile := models.Profile{
			OwnerID:             owner.ID,
			FirstName:           req.FirstName,
			LastName:            req.LastName,
			Email:               req.Email,
			AlertMessage:        models.DefaultAlertMessage,
			RegistrationKeyHash: digest(key),
		}
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create owner")
		return nil, "", err
	}

	audit.LogOwnerCreated(ownerContext(owner.ID), owner.Username)

	span.SetAttributes(attribute.String("owner.id", owner.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created owner")
	return &owner, key, nil
}

// RotateRegistrationKey replaces the owner's key. Machines already registered keep working
func (s *Service) RotateRegistrationKey(ctx context.Context, ownerID uuid.UUID) (string, error) {
	ctx, span := tracer.Start(ctx, "Service.RotateRegistrationKey", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
	))
	defer span.End()

	key, err := hash.PathToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate registration key")
		return "", err
	}

	result := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("owner_id = ?", ownerID).
		Update("registration_key_hash", digest(key))
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to store registration key")
		return "", fmt.Errorf("failed to store registration key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "unknown owner")
		return "", ErrNotFound
	}

	audit.LogRegistrationKeyRotated(ownerContext(ownerID))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "rotated registration key")
	return key, nil
}

// UpdateNotificationPreferences applies the fields present in prefs and leaves the rest alone
func (s *Service) UpdateNotificationPreferences(
	ctx context.Context,
	ownerID uuid.UUID,
	prefs types.NotificationPreferences,
) error {
	ctx, span := tracer.Start(ctx, "Service.UpdateNotificationPreferences", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
	))
	defer span.End()

	updates := map[string]any{}
	setString := func(column string, o types.Optional[string]) {
		if value, ok := o.Get(); ok {
			updates[column] = value
		}
	}
	setBool := func(column string, o types.Optional[bool]) {
		if value, ok := o.Get(); ok {
			updates[column] = value
		}
	}

	setString("alert_message", prefs.AlertMessage)
	setString("email", prefs.Email)
	setString("telegram_chat_id", prefs.TelegramChatID)
	setBool("use_email_alert", prefs.UseEmailAlert)
	setBool("use_telegram_alert", prefs.UseTelegramAlert)

	exists, err := models.Exists[models.Profile](ctx, s.db, "owner_id = ?", ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find profile")
		return err
	}
	if !exists {
		span.SetStatus(codes.Error, "unknown owner")
		return ErrNotFound
	}

	if len(updates) == 0 {
		span.AddEvent("nothing_to_update")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "no preference changes")
		return nil
	}

	err = s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("owner_id = ?", ownerID).
		Updates(updates).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update preferences")
		return fmt.Errorf("failed to update preferences: %w", err)
	}

	s.invalidator.Invalidate(ownerID)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated preferences")
	return nil
}

// SetProfileImage stores a new image under a random name and drops the previous one
func (s *Service) SetProfileImage(ctx context.Context, ownerID uuid.UUID, image []byte) (artifact.Ref, error) {
	ctx, span := tracer.Start(ctx, "Service.SetProfileImage", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
		attribute.Int("length", len(image)),
	))
	defer span.End()

	var profile models.Profile
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, "unknown owner")
		return artifact.Ref{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load profile")
		return artifact.Ref{}, err
	}

	ref, err := s.store.PersistRandom(ctx, artifact.RootImage, image, ".jpg")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store image")
		return artifact.Ref{}, fmt.Errorf("failed to store image: %w", err)
	}

	err = s.db.WithContext(ctx).
		Model(&profile).
		Update("profile_image", models.NewNullFromData(ref.String())).Error
	if err != nil {
		_ = s.store.Delete(context.WithoutCancel(ctx), ref)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update profile")
		return artifact.Ref{}, fmt.Errorf("failed to update profile: %w", err)
	}

	if old := models.PtrFromNull(profile.ProfileImage); old != nil {
		if oldRef, err := artifact.ParseRef(*old); err == nil {
			_ = s.store.Delete(ctx, oldRef)
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "stored image")
	return ref, nil
}
