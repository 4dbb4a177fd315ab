package main

import (
	"context"
	"crypto/rand"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/fujiwara/ridge"
	"github.com/gorilla/sessions"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/natureglobal/realip"
	"github.com/oklog/ulid/v2"
)

//go:embed views/*.html
var viewsFS embed.FS

var tr = &renderer{templates: template.Must(template.ParseFS(viewsFS, "views/*.html"))}

type renderer struct {
	templates *template.Template
}

func (t *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

type app struct {
	db           *sqlx.DB
	sessionStore sessions.Store

	sessionMaxAge     int
	bcryptCost        int
	dummyPasswordHash string
}

func newApp(db *sqlx.DB, store sessions.Store, cfg *Config) (*app, error) {
	// compared against when the username is unknown
	dummy, err := generatePasswordHash(ulid.MustNew(ulid.Now(), rand.Reader).String(), cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &app{
		db:                db,
		sessionStore:      store,
		sessionMaxAge:     cfg.Session.MaxAge,
		bcryptCost:        cfg.Auth.BcryptCost,
		dummyPasswordHash: dummy,
	}, nil
}

func cacheControllPrivate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "private")
		return next(c)
	}
}

func newRequestID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func realIPExtractor(r *http.Request) string {
	if ip := r.Header.Get(realip.HeaderXRealIP); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func realIPMiddleware(trusted []string) (echo.MiddlewareFunc, error) {
	var ipnets []*net.IPNet
	for _, n := range trusted {
		_, ipnet, err := net.ParseCIDR(n)
		if err != nil {
			return nil, fmt.Errorf("error parse trusted proxy %q: %w", n, err)
		}
		ipnets = append(ipnets, ipnet)
	}
	mw, err := realip.Middleware(&realip.Config{
		RealIPFrom:      ipnets,
		RealIPHeader:    realip.HeaderXForwardedFor,
		RealIPRecursive: true,
	})
	if err != nil {
		return nil, err
	}
	return echo.WrapMiddleware(mw), nil
}

// httpErrorHandler hides internal errors from the client and logs them with the request id.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}
	if code >= http.StatusInternalServerError {
		c.Logger().Errorf("request_id=%s %s %s: %s",
			c.Response().Header().Get(echo.HeaderXRequestID), c.Request().Method, c.Request().URL.Path, err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.Render(code, "error.html", &TemplateParams{Status: code, Message: http.StatusText(code)})
	}
	if err != nil {
		c.Logger().Errorf("error render error page: %s", err)
	}
}

// setup assembles middleware and the route table on e.
func (a *app) setup(e *echo.Echo, cfg *Config) error {
	e.Renderer = tr
	e.HTTPErrorHandler = httpErrorHandler
	e.IPExtractor = realIPExtractor

	realIP, err := realIPMiddleware(cfg.App.TrustedProxies)
	if err != nil {
		return err
	}
	e.Pre(realIP)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: newRequestID}))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(cacheControllPrivate)
	e.Use(a.loadSession)

	e.Static("/assets", cfg.App.PublicPath+"/assets")

	e.GET("/", a.indexHandler)
	e.GET("/profile/:musician_id", a.profileHandler)
	e.GET("/register", a.registerPageHandler)
	e.POST("/register", a.registerHandler)
	e.GET("/login", a.loginPageHandler)
	e.POST("/login", a.loginHandler)
	e.GET("/logout", a.logoutHandler)

	// 認証必須ページ
	e.GET("/own_profile", a.ownProfileHandler, authRequired("You need to log in to view your profile."))
	e.GET("/add_piece", a.addPiecePageHandler, authRequired("You need to log in to add a piece."))
	e.POST("/add_piece", a.addPieceHandler, authRequired("You need to log in to add a piece."))
	e.POST("/delete_piece/:piece_id", a.deletePieceHandler, authRequired("You need to log in to delete a piece."))
	e.GET("/edit_profile", a.editProfilePageHandler, authRequired("You need to log in to edit your profile."))
	e.POST("/edit_profile", a.editProfileHandler, authRequired("You need to log in to edit your profile."))
	return nil
}

func main() {
	e := echo.New()

	cfg, err := loadConfig()
	if err != nil {
		e.Logger.Fatalf("failed to load config: %v", err)
		return
	}
	e.Debug = cfg.App.Debug
	level, _ := parseLogLevel(cfg.App.LogLevel)
	e.Logger.SetLevel(level)
	if cfg.Session.Secret == defaultSessionSecret {
		e.Logger.Warn("session secret is the built-in default; set PORTFOLIO_SESSION_SECRET")
	}

	db, err := connectDB(cfg.DB)
	if err != nil {
		e.Logger.Fatalf("failed to connect db: %v", err)
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := initSchema(ctx, db, cfg.DB.Driver); err != nil {
		e.Logger.Fatalf("failed to initialize schema: %v", err)
		return
	}

	sessionStore, err := newSessionStore(cfg.Session, db)
	if err != nil {
		e.Logger.Fatalf("failed to initialize session store: %v", err)
		return
	}

	a, err := newApp(db, sessionStore, cfg)
	if err != nil {
		e.Logger.Fatalf("failed to initialize app: %v", err)
		return
	}
	if err := a.setup(e, cfg); err != nil {
		e.Logger.Fatalf("failed to set up routes: %v", err)
		return
	}

	port := cfg.App.Port
	e.Logger.Infof("starting musician portfolio server on : %s ...", port)
	// ridge serves plain HTTP locally and switches to the Lambda runtime when deployed there
	ridge.Run(fmt.Sprintf(":%s", port), "/", e)
}
