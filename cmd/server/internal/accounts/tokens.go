package accounts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/audit"
	"github.com/sweetmon/triage-api/internal/hash"
	"github.com/sweetmon/triage-api/internal/upload"
)

// Download is either a presigned URL or the artifact bytes, depending on the backend
type Download struct {
	URL      string
	Data     []byte
	Filename string
}

// IssueDownloadToken hands out a single use token for the crash artifact
func (s *Service) IssueDownloadToken(
	ctx context.Context,
	ownerID uuid.UUID,
	crashID uuid.UUID,
) (string, time.Time, error) {
	ctx, span := tracer.Start(ctx, "Service.IssueDownloadToken", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
		attribute.String("crash.id", crashID.String()),
	))
	defer span.End()

	crash, err := ownedCrash(ctx, s.db, ownerID, crashID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load crash")
		return "", time.Time{}, err
	}

	token, err := hash.PathToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate token")
		return "", time.Time{}, err
	}

	expiresAt := s.now().Add(s.tokenTTL)
	row := models.DownloadToken{
		OwnerID:   ownerID,
		TokenHash: digest(token),
		RealPath:  crash.CrashFile,
		ExpiresAt: expiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store token")
		return "", time.Time{}, fmt.Errorf("failed to store token: %w", err)
	}

	audit.LogDownloadTokenIssued(ownerContext(ownerID), row.ID.String(), row.RealPath)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "issued download token")
	return token, expiresAt, nil
}

// RedeemDownloadToken spends the token. Of concurrent redemptions exactly one wins; the rest, as
// well as unknown and expired tokens, get ErrTokenInvalid
func (s *Service) RedeemDownloadToken(ctx context.Context, token string) (*Download, error) {
	ctx, span := tracer.Start(ctx, "Service.RedeemDownloadToken")
	defer span.End()

	db := s.db.WithContext(ctx)
	tokenHash := digest(token)

	result := db.Model(&models.DownloadToken{}).
		Where("token_hash = ? AND is_expired = ? AND expires_at > ?", tokenHash, false, s.now()).
		Update("is_expired", true)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to spend token")
		return nil, fmt.Errorf("failed to spend token: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		span.SetStatus(codes.Error, "token invalid")
		return nil, ErrTokenInvalid
	}

	var row models.DownloadToken
	if err := db.Where("token_hash = ?", tokenHash).Take(&row).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load token")
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	ref, err := artifact.ParseRef(row.RealPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token points at a malformed ref")
		return nil, err
	}

	span.SetAttributes(attribute.String("artifact", row.RealPath))
	download := &Download{Filename: path.Base(ref.Key)}

	url, err := s.store.PresignedURL(ctx, ref, row.ExpiresAt.Sub(s.now()))
	switch {
	case err == nil:
		download.URL = url
	case errors.Is(err, upload.ErrPresignUnsupported):
		span.AddEvent("backend_cannot_presign")
		download.Data, err = s.store.Retrieve(ctx, ref)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read artifact")
			return nil, fmt.Errorf("failed to read artifact: %w", err)
		}
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to presign artifact")
		return nil, fmt.Errorf("failed to presign artifact: %w", err)
	}

	audit.LogDownloadTokenRedeemed(ownerContext(row.OwnerID), row.ID.String(), row.RealPath)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "redeemed download token")
	return download, nil
}

// ExpireDownloadTokens marks lapsed tokens spent so they stop showing as live
func (s *Service) ExpireDownloadTokens(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "Service.ExpireDownloadTokens")
	defer span.End()

	result := s.db.WithContext(ctx).
		Model(&models.DownloadToken{}).
		Where("is_expired = ? AND expires_at <= ?", false, s.now()).
		Update("is_expired", true)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to expire tokens")
		return 0, fmt.Errorf("failed to expire tokens: %w", result.Error)
	}

	span.SetAttributes(attribute.Int64("expired", result.RowsAffected))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "expired tokens")
	return result.RowsAffected, nil
}
