package admind_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kufat/inspircd/irc/admind"
	"github.com/Kufat/inspircd/irc/ircdtest"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/modules/account"
	"github.com/Kufat/inspircd/modules/restrictmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "s3cret-token"

type fixture struct {
	srv   *server.Server
	api   *admind.Server
	alice *ircdtest.Client
	id    string
}

func setup(t *testing.T) *fixture {
	srv := ircdtest.Start(t, ircdtest.Config())
	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.LoadModule(account.New()))
		require.NoError(t, srv.LoadModule(restrictmsg.New()))
	})
	f := &fixture{
		srv:   srv,
		api:   admind.New(srv, token),
		alice: ircdtest.Connect(t, srv, "alice"),
	}
	ircdtest.Do(t, srv, func() {
		f.id = srv.UserByNick("alice").UUID()
	})
	return f
}

func (f *fixture) request(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+token)
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.api.ServeHTTP(rec, req)
	return rec
}

func TestHealthNeedsNoToken(t *testing.T) {
	f := setup(t)
	rec := httptest.NewRecorder()
	f.api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test.irc.local", body["server"])
	assert.EqualValues(t, 1, body["users"])
}

func TestUnauthorized(t *testing.T) {
	f := setup(t)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + token},
		{"wrong token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			f.api.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	locked := admind.New(f.srv, "")
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	locked.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListUsers(t *testing.T) {
	f := setup(t)
	ircdtest.Connect(t, f.srv, "bob")

	rec := f.request(http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var users []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0]["nick"])
	assert.Equal(t, f.id, users[0]["uuid"])
	assert.Equal(t, true, users[0]["local"])
	assert.Equal(t, "test.irc.local", users[0]["server"])
	assert.Equal(t, "bob", users[1]["nick"])
}

func TestPutAndDeleteExtension(t *testing.T) {
	f := setup(t)

	rec := f.request(http.MethodPut, "/users/"+f.id+"/extensions/accountname", "alice_acct\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"accountname":"alice_acct"}`, rec.Body.String())
	f.alice.Expect(" 900 alice ")

	rec = f.request(http.MethodGet, "/users/"+f.id+"/extensions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accountname":"alice_acct"}`, rec.Body.String())

	rec = f.request(http.MethodDelete, "/users/"+f.id+"/extensions/accountname", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.alice.Expect(" 901 alice ")

	rec = f.request(http.MethodGet, "/users/"+f.id+"/extensions", "")
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestPutAllowList(t *testing.T) {
	f := setup(t)

	rec := f.request(http.MethodPut, "/users/"+f.id+"/extensions/msgallow", "001AAAAAA 001BBBBBB 001AAAAAA")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"msgallow":"001AAAAAA 001BBBBBB"}`, rec.Body.String())

	rec = f.request(http.MethodPut, "/users/"+f.id+"/extensions/msgallow", ":bad token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(http.MethodGet, "/users/"+f.id+"/extensions", "")
	assert.JSONEq(t, `{}`, rec.Body.String(), "a malformed value leaves the item unset")
}

func TestExtensionErrors(t *testing.T) {
	f := setup(t)

	rec := f.request(http.MethodPut, "/users/nobody/extensions/accountname", "x")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(http.MethodPut, "/users/"+f.id+"/extensions/nosuchitem", "x")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(http.MethodPut, "/users/"+f.id+"/extensions/accountname", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(http.MethodGet, "/users/nobody/extensions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModules(t *testing.T) {
	f := setup(t)

	rec := f.request(http.MethodGet, "/modules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var modules []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &modules))
	require.Len(t, modules, 2)
	assert.Equal(t, account.Name, modules[0]["name"])
	assert.Equal(t, restrictmsg.Name, modules[1]["name"])

	rec = f.request(http.MethodPost, "/modules/"+restrictmsg.Name+"/reload", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(http.MethodPost, "/modules/nosuchmodule/reload", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestZLines(t *testing.T) {
	f := setup(t)

	rec := f.request(http.MethodPost, "/zlines", `{"mask":"10.1.2.*","duration":"1d","reason":"testing bans"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.request(http.MethodPost, "/zlines", `{"mask":"10.1.2.*","reason":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.request(http.MethodPost, "/zlines", `{"mask":"10.9.9.9"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is required")

	rec = f.request(http.MethodPost, "/zlines", `{"mask":"10.9.9.9","duration":"soon","reason":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(http.MethodGet, "/zlines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var zlines []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zlines))
	require.Len(t, zlines, 1)
	assert.Equal(t, "10.1.2.*", zlines[0]["mask"])
	assert.Equal(t, "admin", zlines[0]["source"])
	expires := int64(zlines[0]["expires"].(float64))
	assert.InDelta(t, time.Now().Add(24*time.Hour).Unix(), expires, 5)

	rec = f.request(http.MethodDelete, "/zlines/10.1.2.*", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.request(http.MethodDelete, "/zlines/10.1.2.*", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestZLineDisconnectsMatchingUsers(t *testing.T) {
	f := setup(t)

	rec := f.request(http.MethodPost, "/zlines", `{"mask":"127.0.0.1","reason":"local test ban"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	f.alice.Expect("ERROR :Closing link")
}
