// Package normalize turns a raw crash log into the signature that gets fingerprinted.
//
// Every Normalizer must be deterministic and must not look at who submitted the log.
package normalize

import (
	"bytes"
	"fmt"
	"regexp"
)

type Normalizer interface {
	Normalize(log []byte) []byte
	Name() string
}

const (
	PolicyRaw   = "raw"
	PolicyStack = "stack"
)

func New(policy string) (Normalizer, error) {
	switch policy {
	case PolicyRaw:
		return Raw{}, nil
	case PolicyStack, "":
		return Stack{}, nil
	default:
		return nil, fmt.Errorf("unknown normalization policy %q", policy)
	}
}

// Raw hashes the log exactly as submitted
type Raw struct{}

func (Raw) Normalize(log []byte) []byte { return log }
func (Raw) Name() string                { return PolicyRaw }

var (
	// sanitizer banners carry the pid: ==12345==ERROR: AddressSanitizer
	pidBanner = regexp.MustCompile(`==\d+==`)
	hexAddr   = regexp.MustCompile(`0[xX][0-9a-fA-F]+`)
	timestamp = regexp.MustCompile(
		`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`,
	)
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
)

// Stack strips the parts of a sanitizer report that vary between runs of the same bug:
// addresses (ASLR), process ids, wall clock timestamps and line ending / trailing whitespace noise.
type Stack struct{}

func (Stack) Name() string { return PolicyStack }

func (Stack) Normalize(log []byte) []byte {
	out := bytes.ReplaceAll(log, []byte("\r\n"), []byte("\n"))
	out = pidBanner.ReplaceAll(out, []byte("==PID=="))
	out = timestamp.ReplaceAll(out, []byte("<TIME>"))
	out = hexAddr.ReplaceAll(out, []byte("0xADDR"))
	out = trailingSpace.ReplaceAll(out, nil)
	return bytes.TrimRight(out, "\n")
}
