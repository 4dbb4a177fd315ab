package main

import (
	"encoding/gob"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/srinathgs/mysqlstore"
)

const (
	sessionCookieName = "portfolio_session"

	sessionBackendMySQL      = "mysql"
	sessionBackendFilesystem = "filesystem"

	sessionKeyMusicianID = "musician_id"
	sessionKeyUsername   = "username"

	contextKeySession  = "session"
	contextKeyIdentity = "identity"
)

// Identity is the musician resolved from the session cookie for the current request.
type Identity struct {
	MusicianID int64
	Username   string
}

type Flash struct {
	Category string
	Message  string
}

func init() {
	gob.Register(Flash{})
}

func newSessionStore(cfg SessionConfig, db *sqlx.DB) (sessions.Store, error) {
	options := &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	switch cfg.Backend {
	case sessionBackendMySQL:
		store, err := mysqlstore.NewMySQLStoreFromConnection(db.DB, cfg.Table, "/", cfg.MaxAge, []byte(cfg.Secret))
		if err != nil {
			return nil, fmt.Errorf("error mysqlstore.NewMySQLStoreFromConnection: %w", err)
		}
		store.Options = options
		return store, nil
	case sessionBackendFilesystem:
		store := sessions.NewFilesystemStore(cfg.Dir, []byte(cfg.Secret))
		store.Options = options
		return store, nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
}

// loadSession reads the session once per request and resolves the identity into the echo context.
func (a *app) loadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := a.sessionStore.Get(c.Request(), sessionCookieName)
		if err != nil {
			// expired or tampered cookie: continue anonymous with a fresh session
			c.Logger().Debugf("error getSession: %s", err)
		}
		if sess == nil {
			sess = sessions.NewSession(a.sessionStore, sessionCookieName)
			sess.Options = a.sessionOptions()
			sess.IsNew = true
		}
		c.Set(contextKeySession, sess)
		if identity := identityFromSession(sess); identity != nil {
			c.Set(contextKeyIdentity, identity)
		}
		return next(c)
	}
}

func (a *app) sessionOptions() *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   a.sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func identityFromSession(sess *sessions.Session) *Identity {
	id, ok := sess.Values[sessionKeyMusicianID].(int64)
	if !ok {
		return nil
	}
	username, ok := sess.Values[sessionKeyUsername].(string)
	if !ok {
		return nil
	}
	return &Identity{MusicianID: id, Username: username}
}

func sessionFrom(c echo.Context) *sessions.Session {
	sess, _ := c.Get(contextKeySession).(*sessions.Session)
	return sess
}

// identityFrom returns nil for anonymous requests.
func identityFrom(c echo.Context) *Identity {
	identity, _ := c.Get(contextKeyIdentity).(*Identity)
	return identity
}

func saveSession(c echo.Context, sess *sessions.Session) error {
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return fmt.Errorf("error Save to session: %w", err)
	}
	return nil
}

// login stores the musician in a session with a new id.
func login(c echo.Context, musician *MusicianRow) error {
	sess := sessionFrom(c)
	sess.ID = ""
	for k := range sess.Values {
		if k != "_flash" {
			delete(sess.Values, k)
		}
	}
	sess.Values[sessionKeyMusicianID] = musician.ID
	sess.Values[sessionKeyUsername] = musician.Username
	identity := &Identity{MusicianID: musician.ID, Username: musician.Username}
	c.Set(contextKeyIdentity, identity)
	return saveSession(c, sess)
}

// logout drops every value of the session. Calling it on an anonymous session is a no-op.
func logout(c echo.Context) {
	sess := sessionFrom(c)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	c.Set(contextKeyIdentity, (*Identity)(nil))
}

func addFlash(c echo.Context, category, message string) {
	sessionFrom(c).AddFlash(Flash{Category: category, Message: message})
}

func popFlashes(sess *sessions.Session) []Flash {
	var flashes []Flash
	for _, f := range sess.Flashes() {
		if flash, ok := f.(Flash); ok {
			flashes = append(flashes, flash)
		}
	}
	return flashes
}

// redirectWithFlash persists the notice for the next rendered page.
func redirectWithFlash(c echo.Context, category, message, location string) error {
	addFlash(c, category, message)
	if err := saveSession(c, sessionFrom(c)); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, location)
}
