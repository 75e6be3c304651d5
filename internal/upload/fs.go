package upload

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensure FSUploader implements Uploader interface.
var _ Uploader = (*FSUploader)(nil)

// Directory backed uploader. Writes go to a temp file that is renamed into place so readers never
// observe a partial file.
type FSUploader struct {
	fs   afero.Fs
	base string
}

func NewFSUploader(fsys afero.Fs, base string) (*FSUploader, error) {
	if base == "" {
		return nil, errors.New("base directory is required")
	}

	if err := fsys.MkdirAll(base, 0o750); err != nil {
		return nil, err
	}

	return &FSUploader{fs: fsys, base: base}, nil
}

// Local disk uploader rooted at `base`
func NewOSUploader(base string) (*FSUploader, error) {
	return NewFSUploader(afero.NewOsFs(), base)
}

func (u *FSUploader) resolve(url string) (string, error) {
	// rooting the path before cleaning keeps ".." from escaping base
	clean := path.Clean("/" + url)
	if clean == "/" {
		return "", fs.ErrInvalid
	}
	return filepath.Join(u.base, filepath.FromSlash(clean)), nil
}

func (u *FSUploader) Upload(
	ctx context.Context,
	reader io.ReadSeeker,
	length int64,
	url string,
) error {
	_, span := tracer.Start(ctx, "FSUploader.Upload", trace.WithAttributes(
		attribute.String("url", url),
		attribute.Int64("length", length),
	))
	defer span.End()

	dest, err := u.resolve(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid path")
		return err
	}

	if err := u.fs.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create directory")
		return err
	}

	tmp, err := afero.TempFile(u.fs, filepath.Dir(dest), ".upload-*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create temp file")
		return err
	}

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		_ = u.fs.Remove(tmp.Name())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write temp file")
		return err
	}

	if err := tmp.Close(); err != nil {
		_ = u.fs.Remove(tmp.Name())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to close temp file")
		return err
	}

	if err := u.fs.Rename(tmp.Name(), dest); err != nil {
		_ = u.fs.Remove(tmp.Name())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to move file into place")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "wrote file")
	return nil
}

func (u *FSUploader) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "FSUploader.Download", trace.WithAttributes(
		attribute.String("url", url),
	))
	defer span.End()

	src, err := u.resolve(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid path")
		return nil, err
	}

	f, err := u.fs.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "did not find file")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open file")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "opened file")
	return f, nil
}

func (u *FSUploader) Delete(ctx context.Context, url string) error {
	_, span := tracer.Start(ctx, "FSUploader.Delete", trace.WithAttributes(
		attribute.String("url", url),
	))
	defer span.End()

	target, err := u.resolve(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid path")
		return err
	}

	err = u.fs.Remove(target)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to remove file")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "removed file")
	return nil
}

func (u *FSUploader) Exists(ctx context.Context, url string) (bool, error) {
	_, span := tracer.Start(ctx, "FSUploader.Exists", trace.WithAttributes(
		attribute.String("url", url),
	))
	defer span.End()

	target, err := u.resolve(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid path")
		return false, err
	}

	exists, err := afero.Exists(u.fs, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat file")
		return false, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "statted file")
	return exists, nil
}

func (u *FSUploader) StoreIdentifier(_ context.Context) (string, error) {
	return u.base, nil
}

func (u *FSUploader) PresignedReadURL(
	_ context.Context,
	_ string,
	_ time.Duration,
) (string, error) {
	return "", ErrPresignUnsupported
}
