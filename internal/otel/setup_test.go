package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupWithWriter(t *testing.T) {
	var out bytes.Buffer

	shutdown, err := SetupOTelSDK(context.Background(), "triage-test", false, WithWriter(&out))
	require.NoError(t, err)

	_, span := otel.Tracer("setup-test").Start(context.Background(), "exported-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "exported-span")
	assert.Contains(t, out.String(), "triage-test")

	// a second shutdown has nothing left to do
	assert.NoError(t, shutdown(context.Background()))
}
