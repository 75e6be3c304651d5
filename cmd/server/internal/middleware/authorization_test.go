package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
)

func TestHasPermissions(t *testing.T) {
	run := func(needed models.Permissions, auth any) error {
		handler := HasPermissions(needed)(func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := echo.New().NewContext(req, httptest.NewRecorder())
		if auth != nil {
			c.Set("auth", auth)
		}
		return handler(c)
	}

	tt := []struct {
		name    string
		needed  models.Permissions
		has     models.Permissions
		granted bool
	}{
		{
			name:    "NeedsOneHasNone",
			needed:  models.Permissions{AccountManagement: true},
			granted: false,
		},
		{
			name:    "NeedsOneHasExtra",
			needed:  models.Permissions{CrashAccess: true},
			has:     models.Permissions{CrashAccess: true, AccountManagement: true},
			granted: true,
		},
		{
			name:    "NeedsBothHasBoth",
			needed:  models.Permissions{CrashAccess: true, AccountManagement: true},
			has:     models.Permissions{CrashAccess: true, AccountManagement: true},
			granted: true,
		},
		{
			name:    "NeedsOneHasOther",
			needed:  models.Permissions{CrashAccess: true},
			has:     models.Permissions{AccountManagement: true},
			granted: false,
		},
		{
			name:    "NeedsNone",
			granted: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := run(tc.needed, &models.Auth{Permissions: tc.has})
			if tc.granted {
				require.NoError(t, err)
				return
			}

			var httpErr *echo.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
		})
	}

	t.Run("NoAuth", func(t *testing.T) {
		err := run(models.Permissions{}, nil)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
}
