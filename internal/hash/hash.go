package hash

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/sweetmon/triage-api/internal/hash")

// Bytes of entropy behind a PathToken
const tokenEntropy = 32

// Fingerprint is the identity of a crash log. Two logs share a fingerprint iff their bytes are equal.
//
// Callers normalize the log before hashing; this function never does.
func Fingerprint(b []byte) string {
	return Buffer(b)
}

// Will consume reader to the end
func Reader(ctx context.Context, f io.Reader) (string, error) {
	_, span := tracer.Start(ctx, "Reader")
	defer span.End()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to copy file into hasher")
		return "", err
	}

	sum := hex.EncodeToString(h.Sum(nil))

	span.AddEvent("digested", trace.WithAttributes(attribute.String("sum", sum)))

	return sum, nil
}

func Buffer(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// PathToken returns a 64 character hex string derived from fresh randomness. It is used to name
// stored files so the original filename never leaks into storage.
func PathToken() (string, error) {
	seed := make([]byte, tokenEntropy)
	if _, err := rand.Read(seed); err != nil {
		return "", err
	}

	return Buffer(seed), nil
}

// SplitToken cuts a token into two equal halves, used as a two level directory layout.
func SplitToken(token string) (string, string) {
	half := len(token) / 2
	return token[:half], token[half:]
}
