package hash

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	log := []byte("SEGV at 0x1234 in foo()")

	a := Fingerprint(log)
	b := Fingerprint(bytes.Clone(log))

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Fingerprint([]byte("SEGV at 0x1234 in bar()")))
}

func TestReaderMatchesBuffer(t *testing.T) {
	data := []byte("heap-buffer-overflow")

	sum, err := Reader(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, Buffer(data), sum)
}

func TestPathToken(t *testing.T) {
	a, err := PathToken()
	require.NoError(t, err)
	b, err := PathToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)

	first, second := SplitToken(a)
	assert.Len(t, first, 32)
	assert.Len(t, second, 32)
	assert.Equal(t, a, first+second)
}
