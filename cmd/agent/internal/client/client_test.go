package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetmon/triage-api/cmd/agent/internal/client"
	"github.com/sweetmon/triage-api/internal/types"
)

const (
	machineID = "0190f5c4-8d1c-7cc1-a5a6-3f1f2d4b7e10"
	token     = "machine token"
)

func newClient(t *testing.T, e *echo.Echo, opts ...client.Option) *client.Client {
	t.Helper()

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	opts = append([]client.Option{client.WithWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := client.New(server.URL, time.Second, opts...)
	require.NoError(t, err)
	return c
}

func machineAuth() echo.MiddlewareFunc {
	return middleware.BasicAuth(func(user, password string, _ echo.Context) (bool, error) {
		return user == machineID && password == token, nil
	})
}

func TestRegister(t *testing.T) {
	e := echo.New()
	e.POST("/machine/register/", func(c echo.Context) error {
		var rdata types.MachineRegistration
		require.NoError(t, c.Bind(&rdata))
		assert.Equal(t, "afl-1", rdata.FuzzerName)

		_, _, hasAuth := c.Request().BasicAuth()
		assert.False(t, hasAuth, "registration is anonymous")

		return c.JSON(http.StatusOK, types.MachineRegistrationResponse{MachineID: machineID, Token: token})
	})

	c := newClient(t, e)
	resp, err := c.Register(context.Background(), types.MachineRegistration{FuzzerName: "afl-1"})
	require.NoError(t, err)
	assert.Equal(t, machineID, resp.MachineID)
	assert.Equal(t, token, resp.Token)
}

func TestPing(t *testing.T) {
	e := echo.New()
	e.GET("/v1/ping/", func(c echo.Context) error {
		assert.Equal(t, "203.0.113.7", c.QueryParam("pub_ip"))
		assert.Empty(t, c.QueryParam("pri_ip"))
		return c.JSON(http.StatusOK, types.PingResponse{Status: "ready", MachineID: machineID})
	}, machineAuth())

	c := newClient(t, e, client.WithCredentials(client.Credentials{MachineID: machineID, Token: token}))
	resp, err := c.Ping(context.Background(), types.Heartbeat{PubIP: "203.0.113.7"})
	require.NoError(t, err)
	assert.Equal(t, "ready", resp.Status)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	e := echo.New()
	e.POST("/v1/crash/", func(c echo.Context) error {
		if calls.Add(1) < 3 {
			return c.JSON(http.StatusServiceUnavailable, types.Error{Message: "busy"})
		}
		return c.JSON(http.StatusOK, types.CrashSubmissionResponse{CrashID: "a", CanonicalID: "a", IsNew: true})
	}, machineAuth())

	c := newClient(t, e, client.WithCredentials(client.Credentials{MachineID: machineID, Token: token}))
	resp, err := c.SubmitCrash(context.Background(), types.CrashSubmission{Title: "t"})
	require.NoError(t, err)
	assert.True(t, resp.IsNew)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGivesUp(t *testing.T) {
	var calls atomic.Int32

	e := echo.New()
	e.POST("/v1/testcase/", func(c echo.Context) error {
		calls.Add(1)
		return c.JSON(http.StatusInternalServerError, types.Error{Message: "something went wrong"})
	}, machineAuth())

	c := newClient(
		t,
		e,
		client.WithRetries(2),
		client.WithCredentials(client.Credentials{MachineID: machineID, Token: token}),
	)
	_, err := c.SubmitTestcase(context.Background(), types.TestcaseSubmission{Title: "t"})

	var statusErr client.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, "something went wrong", statusErr.Message)
	assert.EqualValues(t, 3, calls.Load(), "first attempt plus two retries")
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32

	e := echo.New()
	e.GET("/v1/ping/", func(c echo.Context) error {
		calls.Add(1)
		return c.NoContent(http.StatusOK)
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			calls.Add(1)
			return machineAuth()(next)(c)
		}
	})

	c := newClient(t, e, client.WithCredentials(client.Credentials{MachineID: machineID, Token: "wrong"}))
	_, err := c.Ping(context.Background(), types.Heartbeat{})

	var statusErr client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.EqualValues(t, 1, calls.Load())
}
