package validator

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func base64String(length int) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", length)))
}

func TestArtifactSize(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.True(t, ValidateArtifactSize(len(base64String(1<<10)), 1<<10), "max size should work")
	})

	t.Run("ValidSmall", func(t *testing.T) {
		assert.True(t, ValidateArtifactSize(len(base64String(10)), 1<<10), "small size should work")
	})

	t.Run("Invalid", func(t *testing.T) {
		assert.False(t, ValidateArtifactSize(len(base64String((1<<10)+3)), 1<<10), "too big")
	})
}

func TestImageSize(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.True(t, ValidateImageSize(len(base64String(MaxImageBytes))), "max size should work")
	})

	t.Run("Invalid", func(t *testing.T) {
		assert.False(t, ValidateImageSize(len(base64String(MaxImageBytes+100))), "too big")
	})
}

func TestTestcaseSize(t *testing.T) {
	assert.True(t, ValidateTestcaseSize(len(base64String(10))), "small size should work")
	assert.False(t, ValidateTestcaseSize(len(base64String(MaxTestcaseBytes+100))), "too big")
}
