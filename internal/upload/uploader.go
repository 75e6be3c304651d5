package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/sweetmon/triage-api/internal/upload")

var (
	ErrNotFound           = errors.New("blob not found")
	ErrPresignUnsupported = errors.New("backend cannot presign urls")
)

//go:generate mockgen -destination ./mock/mock.go -package mock . Uploader

// Generic file persistence interface
type Uploader interface {
	// Create / Overwrite file contents by `url` (blobName)
	Upload(ctx context.Context, reader io.ReadSeeker, length int64, url string) error
	// Stream file contents. Returns ErrNotFound when nothing is stored at `url`
	Download(ctx context.Context, url string) (io.ReadCloser, error)
	// Remove a file. Removing a missing file is not an error
	Delete(ctx context.Context, url string) error
	// Check if a file exists
	Exists(ctx context.Context, url string) (bool, error)
	// Provide an identifier for where files are being uploaded to. Useful for logging and auditing purposes.
	StoreIdentifier(ctx context.Context) (string, error)
	// Anonymous, readonly, internet accessible URL for downloading the file
	//
	// Returns ErrPresignUnsupported when the backend has no such notion
	PresignedReadURL(ctx context.Context, url string, duration time.Duration) (string, error)
}

// Uploads an in memory buffer to `url`
func Bytes(ctx context.Context, u Uploader, url string, data []byte) error {
	ctx, span := tracer.Start(ctx, "UploadBytes", trace.WithAttributes(
		attribute.String("url", url),
		attribute.Int("length", len(data)),
	))
	defer span.End()

	err := u.Upload(ctx, bytes.NewReader(data), int64(len(data)), url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload buffer")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded buffer")
	return nil
}

// Reads a whole file into memory
func ReadAll(ctx context.Context, u Uploader, url string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "ReadAll", trace.WithAttributes(
		attribute.String("url", url),
	))
	defer span.End()

	body, err := u.Download(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download")
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read body")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "read file")
	return data, nil
}
