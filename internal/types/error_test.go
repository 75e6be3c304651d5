package types

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	v := validator.New()

	type payload struct {
		Title   string `validate:"required"`
		Channel string `validate:"oneof=email telegram"`
		Log     string `validate:"max=4"`
	}

	err := v.Struct(payload{Channel: "pager", Log: "too long"})
	require.Error(t, err)

	out := ValidationError(err)
	assert.Equal(t, "validation error", out.Message)
	require.NotNil(t, out.Fields)
	assert.Equal(t, map[string]string{
		"Title":   "is required",
		"Channel": "must be one of: email telegram",
		"Log":     "must be at most 4 long",
	}, *out.Fields)

	plain := ValidationError(errors.New("not a validation failure"))
	assert.Equal(t, "validation error", plain.Message)
	assert.Nil(t, plain.Fields)
}
