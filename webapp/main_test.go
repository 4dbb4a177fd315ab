package main

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	*httptest.Server
	app *app
	db  *sqlx.DB
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := defaultConfig()
	cfg.DB.Driver = driverSQLite
	cfg.DB.Path = filepath.Join(dir, "portfolio.db")
	cfg.Session.Backend = sessionBackendFilesystem
	cfg.Session.Dir = dir
	cfg.Session.Secret = "test-secret"
	cfg.Auth.BcryptCost = bcrypt.MinCost
	require.NoError(t, cfg.validate())
	return cfg
}

func newTestApp(t *testing.T) (*app, *Config) {
	t.Helper()
	cfg := testConfig(t)
	db, err := connectDB(cfg.DB)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, initSchema(context.Background(), db, cfg.DB.Driver))

	store, err := newSessionStore(cfg.Session, db)
	require.NoError(t, err)
	a, err := newApp(db, store, cfg)
	require.NoError(t, err)
	return a, cfg
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	a, cfg := newTestApp(t)
	e := echo.New()
	e.Logger.SetLevel(log.OFF)
	require.NoError(t, a.setup(e, cfg))
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, app: a, db: a.db}
}

// newClient returns a browser-like client that keeps cookies and does not follow redirects.
func (ts *testServer) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type response struct {
	Status   int
	Location string
	Body     string
}

func (ts *testServer) get(t *testing.T, client *http.Client, path string) response {
	t.Helper()
	res, err := client.Get(ts.URL + path)
	require.NoError(t, err)
	return readResponse(t, res)
}

func (ts *testServer) post(t *testing.T, client *http.Client, path string, form url.Values) response {
	t.Helper()
	res, err := client.Post(ts.URL+path, echo.MIMEApplicationForm, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	return readResponse(t, res)
}

func readResponse(t *testing.T, res *http.Response) response {
	t.Helper()
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return response{
		Status:   res.StatusCode,
		Location: res.Header.Get("Location"),
		Body:     string(b),
	}
}

func (ts *testServer) register(t *testing.T, client *http.Client, username, password string) response {
	t.Helper()
	return ts.post(t, client, "/register", url.Values{
		"username":     {username},
		"name":         {strings.ToUpper(username[:1]) + username[1:]},
		"instrument":   {"Piano"},
		"bio":          {"hello"},
		"password":     {password},
		"confirmation": {password},
	})
}

func (ts *testServer) login(t *testing.T, client *http.Client, username, password string) response {
	t.Helper()
	return ts.post(t, client, "/login", url.Values{
		"username": {username},
		"password": {password},
	})
}

func (ts *testServer) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, ts.db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}
