package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptional(t *testing.T) {
	decode := func(t *testing.T, body string) NotificationPreferences {
		t.Helper()
		var prefs NotificationPreferences
		require.NoError(t, json.Unmarshal([]byte(body), &prefs))
		return prefs
	}

	t.Run("Absent", func(t *testing.T) {
		prefs := decode(t, `{}`)
		_, ok := prefs.AlertMessage.Get()
		assert.False(t, ok)
	})

	t.Run("Null", func(t *testing.T) {
		prefs := decode(t, `{"alert_message":null,"use_email_alert":null}`)
		msg, ok := prefs.AlertMessage.Get()
		assert.True(t, ok)
		assert.Empty(t, msg)

		use, ok := prefs.UseEmailAlert.Get()
		assert.True(t, ok)
		assert.False(t, use)
	})

	t.Run("Set", func(t *testing.T) {
		prefs := decode(t, `{"alert_message":"[__title__]","use_telegram_alert":true}`)
		msg, ok := prefs.AlertMessage.Get()
		assert.True(t, ok)
		assert.Equal(t, "[__title__]", msg)

		use, ok := prefs.UseTelegramAlert.Get()
		assert.True(t, ok)
		assert.True(t, use)
	})
}

func TestUnixMilli(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, int(250*time.Millisecond), time.FixedZone("x", 3600))
	ms := NewUnixMilli(at)

	assert.Equal(t, at.UnixMilli(), int64(ms))
	assert.True(t, ms.Time().Equal(at))
	assert.Equal(t, time.UTC, ms.Time().Location())
}
