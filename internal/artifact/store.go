// Package artifact stores crash, fuzzer, testcase and profile image blobs under independent roots.
//
// Crash files live at a deterministic key built from the owning record id and the uploaded
// filename, so uploading the same name to the same record overwrites. Every other root is keyed by
// a random two level path token so original filenames never reach storage.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetmon/triage-api/internal/hash"
	"github.com/sweetmon/triage-api/internal/upload"
)

var tracer = otel.Tracer("github.com/sweetmon/triage-api/internal/artifact")

type Root string

const (
	RootCrash    Root = "crash"
	RootFuzzer   Root = "fuzzer"
	RootTestcase Root = "testcase"
	RootImage    Root = "image"
)

var Roots = []Root{RootCrash, RootFuzzer, RootTestcase, RootImage}

const fallbackName = "artifact"

var ErrUnknownRoot = errors.New("unknown artifact root")

// Ref is what gets stored in metadata rows, serialized as "root:key"
type Ref struct {
	Root Root
	Key  string
}

func (r Ref) String() string {
	return string(r.Root) + ":" + r.Key
}

func ParseRef(s string) (Ref, error) {
	root, key, ok := strings.Cut(s, ":")
	if !ok || key == "" {
		return Ref{}, fmt.Errorf("malformed artifact ref %q", s)
	}
	return Ref{Root: Root(root), Key: key}, nil
}

type Store struct {
	roots map[Root]upload.Uploader
}

// Every root must be backed
func NewStore(roots map[Root]upload.Uploader) (*Store, error) {
	for _, r := range Roots {
		if roots[r] == nil {
			return nil, fmt.Errorf("%w: %s has no backend", ErrUnknownRoot, r)
		}
	}
	return &Store{roots: roots}, nil
}

func (s *Store) backend(root Root) (upload.Uploader, error) {
	u, ok := s.roots[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}
	return u, nil
}

// CrashKey is "<recordID>/<base name of filename>"
func CrashKey(recordID uuid.UUID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	switch name {
	case ".", "..", "/", "":
		name = fallbackName
	}
	return recordID.String() + "/" + name
}

// RandomKey is a fresh path token split into "ab.../cd..." with an optional extension
func RandomKey(ext string) (string, error) {
	token, err := hash.PathToken()
	if err != nil {
		return "", err
	}

	dir, file := hash.SplitToken(token)
	return dir + "/" + file + ext, nil
}

func (s *Store) Persist(ctx context.Context, root Root, key string, data []byte) (Ref, error) {
	ctx, span := tracer.Start(ctx, "Store.Persist", trace.WithAttributes(
		attribute.String("root", string(root)),
		attribute.String("key", key),
		attribute.Int("length", len(data)),
	))
	defer span.End()

	u, err := s.backend(root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown root")
		return Ref{}, err
	}

	if err := upload.Bytes(ctx, u, key, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write artifact")
		return Ref{}, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "persisted artifact")
	return Ref{Root: root, Key: key}, nil
}

// PersistRandom writes under a fresh RandomKey
func (s *Store) PersistRandom(ctx context.Context, root Root, data []byte, ext string) (Ref, error) {
	key, err := RandomKey(ext)
	if err != nil {
		return Ref{}, err
	}
	return s.Persist(ctx, root, key, data)
}

func (s *Store) Retrieve(ctx context.Context, ref Ref) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Store.Retrieve", trace.WithAttributes(
		attribute.String("ref", ref.String()),
	))
	defer span.End()

	u, err := s.backend(ref.Root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown root")
		return nil, err
	}

	data, err := upload.ReadAll(ctx, u, ref.Key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read artifact")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "retrieved artifact")
	return data, nil
}

func (s *Store) Delete(ctx context.Context, ref Ref) error {
	ctx, span := tracer.Start(ctx, "Store.Delete", trace.WithAttributes(
		attribute.String("ref", ref.String()),
	))
	defer span.End()

	u, err := s.backend(ref.Root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown root")
		return err
	}

	if err := u.Delete(ctx, ref.Key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete artifact")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "deleted artifact")
	return nil
}

// PresignedURL returns upload.ErrPresignUnsupported for backends without public urls
func (s *Store) PresignedURL(ctx context.Context, ref Ref, ttl time.Duration) (string, error) {
	u, err := s.backend(ref.Root)
	if err != nil {
		return "", err
	}
	return u.PresignedReadURL(ctx, ref.Key, ttl)
}
