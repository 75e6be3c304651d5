package admin_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/accounts"
	"github.com/sweetmon/triage-api/cmd/server/internal/middleware"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/models/sqlitetest"
	"github.com/sweetmon/triage-api/cmd/server/internal/routes"
	"github.com/sweetmon/triage-api/cmd/server/internal/routes/admin"
	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/hash"
	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/secret"
	"github.com/sweetmon/triage-api/internal/types"
	"github.com/sweetmon/triage-api/internal/upload"
)

const operatorKey = "i am a very secure password"

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(uuid.UUID) {}

type clientAuth struct {
	id    string
	token string
}

type env struct {
	db       *gorm.DB
	store    *artifact.Store
	server   *httptest.Server
	operator clientAuth
	manager  clientAuth
	reader   clientAuth
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := sqlitetest.New(t)

	fsys := afero.NewMemMapFs()
	roots := map[artifact.Root]upload.Uploader{}
	for _, root := range artifact.Roots {
		u, err := upload.NewFSUploader(fsys, "/"+string(root))
		require.NoError(t, err)
		roots[root] = u
	}
	store, err := artifact.NewStore(roots)
	require.NoError(t, err)

	accountService := accounts.NewService(db, secret.NewBox("server-secret", false), store, nopInvalidator{})

	hashed, err := argon2id.CreateHash(operatorKey, argon2id.DefaultParams)
	require.NoError(t, err)

	auth := func(note string, permissions models.Permissions) clientAuth {
		row := models.Auth{
			Token:       hashed,
			Note:        note,
			Active:      models.NewNullFromData(true),
			Permissions: permissions,
		}
		require.NoError(t, db.Create(&row).Error)
		return clientAuth{id: row.ID.String(), token: operatorKey}
	}

	e, err := routes.BuildEcho(logger.Logger, nil)
	require.NoError(t, err)

	admin.Create(accountService).AddRoutes(e, &middleware.Handler{DB: db, Accounts: accountService})

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return &env{
		db:       db,
		store:    store,
		server:   server,
		operator: auth("operator", models.Permissions{AccountManagement: true, CrashAccess: true}),
		manager:  auth("manager", models.Permissions{AccountManagement: true}),
		reader:   auth("reader", models.Permissions{CrashAccess: true}),
	}
}

func (e *env) do(t *testing.T, method, path string, auth *clientAuth, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != nil {
		req.SetBasicAuth(auth.id, auth.token)
	}

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, data
}

func (e *env) createOwner(t *testing.T, username string) types.OwnerCreateResponse {
	t.Helper()

	code, body := e.do(t, http.MethodPost, "/admin/owner/", &e.operator, types.OwnerCreate{Username: username})
	require.Equal(t, http.StatusOK, code, string(body))

	var created types.OwnerCreateResponse
	require.NoError(t, json.Unmarshal(body, &created))
	return created
}

func (e *env) crash(t *testing.T, ownerID string, data []byte) models.Crash {
	t.Helper()

	id := uuid.New()
	ref, err := e.store.Persist(context.Background(), artifact.RootCrash, artifact.CrashKey(id, "poc.bin"), data)
	require.NoError(t, err)

	now := time.Now().UTC()
	crash := models.Crash{
		Title:      "heap-buffer-overflow",
		CrashHash:  hash.Fingerprint([]byte(id.String())),
		CrashLog:   "ERROR: AddressSanitizer",
		CrashFile:  ref.String(),
		RegDate:    now,
		LatestDate: now,
		OwnerID:    uuid.MustParse(ownerID),
	}
	crash.ID = id
	require.NoError(t, e.db.Create(&crash).Error)
	return crash
}

func TestCreateOwner(t *testing.T) {
	e := newEnv(t)

	created := e.createOwner(t, "alice")
	assert.NotEmpty(t, created.RegistrationKey)
	_, err := uuid.Parse(created.OwnerID)
	require.NoError(t, err)

	tt := []struct {
		name string
		auth *clientAuth
		body any
		code int
	}{
		{name: "Duplicate", auth: &e.operator, body: types.OwnerCreate{Username: "alice"}, code: http.StatusConflict},
		{name: "MissingUsername", auth: &e.operator, body: types.OwnerCreate{}, code: http.StatusBadRequest},
		{
			name: "BadEmail",
			auth: &e.operator,
			body: types.OwnerCreate{Username: "bob", Email: "nope"},
			code: http.StatusBadRequest,
		},
		{name: "NoAuth", body: types.OwnerCreate{Username: "bob"}, code: http.StatusUnauthorized},
		{name: "MissingPermission", auth: &e.reader, body: types.OwnerCreate{Username: "bob"}, code: http.StatusUnauthorized},
		{
			name: "WrongKey",
			auth: &clientAuth{id: e.operator.id, token: "guess"},
			body: types.OwnerCreate{Username: "bob"},
			code: http.StatusUnauthorized,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			code, body := e.do(t, http.MethodPost, "/admin/owner/", tc.auth, tc.body)
			assert.Equal(t, tc.code, code, string(body))
		})
	}
}

func TestRotateRegistrationKey(t *testing.T) {
	e := newEnv(t)
	created := e.createOwner(t, "alice")

	code, body := e.do(t, http.MethodPost, "/admin/owner/"+created.OwnerID+"/registration-key/", &e.manager, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	var rotated types.RegistrationKeyResponse
	require.NoError(t, json.Unmarshal(body, &rotated))
	assert.NotEqual(t, created.RegistrationKey, rotated.RegistrationKey)

	code, _ = e.do(t, http.MethodPost, "/admin/owner/"+uuid.NewString()+"/registration-key/", &e.manager, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpdatePreferences(t *testing.T) {
	e := newEnv(t)
	created := e.createOwner(t, "alice")
	path := "/admin/owner/" + created.OwnerID + "/preferences/"

	code, body := e.do(t, http.MethodPut, path, &e.manager, map[string]any{
		"use_email_alert": true,
		"email":           "alice@example.com",
	})
	require.Equal(t, http.StatusNoContent, code, string(body))

	var profile models.Profile
	require.NoError(t, e.db.Where("owner_id = ?", created.OwnerID).Take(&profile).Error)
	assert.True(t, profile.UseEmailAlert)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, models.DefaultAlertMessage, profile.AlertMessage, "absent fields are untouched")

	code, _ = e.do(t, http.MethodPut, path, &e.manager, map[string]any{"email": "not an email"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPut, path, &e.reader, map[string]any{"use_email_alert": false})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSetProfileImage(t *testing.T) {
	e := newEnv(t)
	created := e.createOwner(t, "alice")
	path := "/admin/owner/" + created.OwnerID + "/image/"

	image := base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff\xe0 jpeg"))
	code, body := e.do(t, http.MethodPut, path, &e.manager, types.ProfileImage{Image: image})
	require.Equal(t, http.StatusNoContent, code, string(body))

	var profile models.Profile
	require.NoError(t, e.db.Where("owner_id = ?", created.OwnerID).Take(&profile).Error)
	stored := models.PtrFromNull(profile.ProfileImage)
	require.NotNil(t, stored)

	ref, err := artifact.ParseRef(*stored)
	require.NoError(t, err)
	data, err := e.store.Retrieve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("\xff\xd8\xff\xe0 jpeg"), data)

	code, _ = e.do(t, http.MethodPut, path, &e.manager, types.ProfileImage{Image: "%%%"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestChannels(t *testing.T) {
	e := newEnv(t)
	alice := e.createOwner(t, "alice")
	bob := e.createOwner(t, "bob")

	code, body := e.do(t, http.MethodPut, "/admin/owner/"+alice.OwnerID+"/telegram-bot/", &e.manager,
		types.TelegramBotConfig{Name: "alerts", Key: "123:abc", IsActivated: true, IsPublic: true})
	require.Equal(t, http.StatusOK, code, string(body))

	var bot types.ChannelResponse
	require.NoError(t, json.Unmarshal(body, &bot))

	code, body = e.do(t, http.MethodPut, "/admin/owner/"+alice.OwnerID+"/email-bot/", &e.manager,
		types.EmailBotConfig{
			EmailID:    "bot@example.com",
			Password:   "hunter2",
			SMTPServer: "smtp.example.com",
			SMTPPort:   587,
		})
	require.Equal(t, http.StatusOK, code, string(body))

	var mailer types.ChannelResponse
	require.NoError(t, json.Unmarshal(body, &mailer))

	code, _ = e.do(t, http.MethodPut, "/admin/owner/"+alice.OwnerID+"/email-bot/", &e.manager,
		types.EmailBotConfig{EmailID: "bot@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)

	shared := "/admin/owner/" + bob.OwnerID + "/shared-channel/"

	code, body = e.do(t, http.MethodPut, shared, &e.manager, types.SharedChannel{Channel: "telegram", BotID: bot.ID})
	require.Equal(t, http.StatusNoContent, code, string(body))

	var profile models.Profile
	require.NoError(t, e.db.Where("owner_id = ?", bob.OwnerID).Take(&profile).Error)
	require.NotNil(t, profile.TelegramBotID)
	assert.Equal(t, bot.ID, profile.TelegramBotID.String())

	code, _ = e.do(t, http.MethodPut, shared, &e.manager, types.SharedChannel{Channel: "email", BotID: mailer.ID})
	assert.Equal(t, http.StatusForbidden, code, "private bots are not shared")

	code, _ = e.do(t, http.MethodPut, shared, &e.manager, types.SharedChannel{Channel: "pager", BotID: bot.ID})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCrashRoutes(t *testing.T) {
	e := newEnv(t)
	alice := e.createOwner(t, "alice")
	bob := e.createOwner(t, "bob")
	crash := e.crash(t, alice.OwnerID, []byte("crashing input"))

	crashPath := fmt.Sprintf("/admin/owner/%s/crash/%s/", alice.OwnerID, crash.ID)

	t.Run("Get", func(t *testing.T) {
		code, body := e.do(t, http.MethodGet, crashPath, &e.reader, nil)
		require.Equal(t, http.StatusOK, code, string(body))

		var got types.Crash
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, crash.ID.String(), got.ID)
		assert.Nil(t, got.Comment)
	})

	t.Run("GetNeedsCrashAccess", func(t *testing.T) {
		code, _ := e.do(t, http.MethodGet, crashPath, &e.manager, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("OtherOwner", func(t *testing.T) {
		code, _ := e.do(t, http.MethodGet, fmt.Sprintf("/admin/owner/%s/crash/%s/", bob.OwnerID, crash.ID), &e.reader, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("MalformedID", func(t *testing.T) {
		code, _ := e.do(t, http.MethodGet, "/admin/owner/"+alice.OwnerID+"/crash/nope/", &e.reader, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("Comment", func(t *testing.T) {
		code, body := e.do(t, http.MethodPut, crashPath+"comment/", &e.reader, types.CrashComment{Comment: "known bug"})
		require.Equal(t, http.StatusOK, code, string(body))

		var got types.Crash
		require.NoError(t, json.Unmarshal(body, &got))
		require.NotNil(t, got.Comment)
		assert.Equal(t, "known bug", *got.Comment)

		code, body = e.do(t, http.MethodPut, crashPath+"comment/", &e.reader, types.CrashComment{})
		require.Equal(t, http.StatusOK, code, string(body))
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Nil(t, got.Comment)
	})
}

func TestDownload(t *testing.T) {
	e := newEnv(t)
	alice := e.createOwner(t, "alice")
	bob := e.createOwner(t, "bob")
	crash := e.crash(t, alice.OwnerID, []byte("crashing input"))

	issue := func(t *testing.T, ownerID string) (int, types.DownloadTokenResponse) {
		code, body := e.do(
			t,
			http.MethodPost,
			"/admin/owner/"+ownerID+"/download-token/",
			&e.reader,
			types.DownloadTokenRequest{CrashID: crash.ID.String()},
		)
		var token types.DownloadTokenResponse
		if code == http.StatusOK {
			require.NoError(t, json.Unmarshal(body, &token))
		}
		return code, token
	}

	code, token := issue(t, alice.OwnerID)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, token.ExpiresAt.Time().After(time.Now()))

	code, body := e.do(t, http.MethodGet, "/download/"+token.Token+"/", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []byte("crashing input"), body)

	code, _ = e.do(t, http.MethodGet, "/download/"+token.Token+"/", nil, nil)
	assert.Equal(t, http.StatusNotFound, code, "tokens are single use")

	code, _ = e.do(t, http.MethodGet, "/download/not-a-token/", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = issue(t, bob.OwnerID)
	assert.Equal(t, http.StatusNotFound, code, "crash belongs to another owner")
}
