package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	flashSuccess = "success"
	flashDanger  = "danger"
	flashInfo    = "info"
)

type TemplateParams struct {
	LoggedIn   bool
	MusicianID int64
	Username   string
	Flashes    []Flash

	SearchQuery string
	Searched    bool
	Musicians   []Musician

	Musician *Musician
	Pieces   []PieceRow
	Form     map[string]string

	Status  int
	Message string
}

// render pops the pending flashes of the session, then adds the page's own notices after them.
func (a *app) render(c echo.Context, code int, page string, params *TemplateParams) error {
	if identity := identityFrom(c); identity != nil {
		params.LoggedIn = true
		params.MusicianID = identity.MusicianID
		params.Username = identity.Username
	}
	if sess := sessionFrom(c); sess != nil {
		if flashes := popFlashes(sess); len(flashes) > 0 {
			params.Flashes = append(flashes, params.Flashes...)
			if err := saveSession(c, sess); err != nil {
				return err
			}
		}
	}
	return c.Render(code, page, params)
}

func (a *app) renderFormError(c echo.Context, code int, page string, message string, params *TemplateParams) error {
	params.Flashes = append(params.Flashes, Flash{Category: flashDanger, Message: message})
	return a.render(c, code, page, params)
}

// GET /

func (a *app) indexHandler(c echo.Context) error {
	query := strings.ToLower(strings.TrimSpace(c.QueryParam("search")))
	params := &TemplateParams{SearchQuery: query}
	if query != "" {
		musicians, err := searchMusicians(c.Request().Context(), a.db, query, searchLimit)
		if err != nil {
			return err
		}
		params.Musicians = musicians
		params.Searched = true
	}
	return a.render(c, http.StatusOK, "index.html", params)
}

// GET /own_profile

func (a *app) ownProfileHandler(c echo.Context) error {
	ctx := c.Request().Context()
	identity := identityFrom(c)
	musician, err := getMusicianByID(ctx, a.db, identity.MusicianID)
	if err != nil {
		return err
	}
	if musician == nil {
		return redirectWithFlash(c, flashDanger, "User not found.", "/")
	}
	pieces, err := getPiecesByMusicianID(ctx, a.db, musician.ID)
	if err != nil {
		return err
	}
	return a.render(c, http.StatusOK, "own_profile.html", &TemplateParams{
		Musician: musician.Public(),
		Pieces:   pieces,
	})
}

// GET /profile/:musician_id

func (a *app) profileHandler(c echo.Context) error {
	musicianID, err := strconv.ParseInt(c.Param("musician_id"), 10, 64)
	if err != nil {
		return c.String(http.StatusNotFound, "Musician not found")
	}
	ctx := c.Request().Context()
	musician, err := getMusicianByID(ctx, a.db, musicianID)
	if err != nil {
		return err
	}
	if musician == nil {
		return c.String(http.StatusNotFound, "Musician not found")
	}
	pieces, err := getPiecesByMusicianID(ctx, a.db, musicianID)
	if err != nil {
		return err
	}
	return a.render(c, http.StatusOK, "profile.html", &TemplateParams{
		Musician: musician.Public(),
		Pieces:   pieces,
	})
}

// 認証ページ

func (a *app) registerPageHandler(c echo.Context) error {
	return a.render(c, http.StatusOK, "register.html", &TemplateParams{Form: map[string]string{}})
}

// POST /register

func (a *app) registerHandler(c echo.Context) error {
	form := RegisterForm{
		Username:     c.FormValue("username"),
		Name:         c.FormValue("name"),
		Instrument:   c.FormValue("instrument"),
		Bio:          c.FormValue("bio"),
		Password:     c.FormValue("password"),
		Confirmation: c.FormValue("confirmation"),
	}
	// passwords are never echoed back into the form
	params := &TemplateParams{Form: map[string]string{
		"username":   form.Username,
		"name":       form.Name,
		"instrument": form.Instrument,
		"bio":        form.Bio,
	}}

	_, err := a.registerMusician(c.Request().Context(), &form)
	if err != nil {
		if verr, ok := isValidationError(err); ok {
			return a.renderFormError(c, http.StatusBadRequest, "register.html", verr.Message, params)
		}
		if errors.Is(err, ErrDuplicateUsername) {
			return a.renderFormError(c, http.StatusConflict, "register.html",
				"Username already exists. Please choose another.", params)
		}
		return err
	}
	return redirectWithFlash(c, flashSuccess, "Registration successful! You can now log in.", "/login")
}

func (a *app) loginPageHandler(c echo.Context) error {
	return a.render(c, http.StatusOK, "login.html", &TemplateParams{Form: map[string]string{}})
}

// POST /login

func (a *app) loginHandler(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")

	musician, err := a.authenticate(c.Request().Context(), username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return a.renderFormError(c, http.StatusUnauthorized, "login.html",
				"Invalid username or password.", &TemplateParams{Form: map[string]string{"username": username}})
		}
		return err
	}
	if err := login(c, musician); err != nil {
		return err
	}
	return redirectWithFlash(c, flashSuccess, "Logged in successfully.", "/")
}

// GET /logout

func (a *app) logoutHandler(c echo.Context) error {
	logout(c)
	return redirectWithFlash(c, flashInfo, "You have been logged out.", "/")
}

// GET /add_piece

func (a *app) addPiecePageHandler(c echo.Context) error {
	return a.render(c, http.StatusOK, "add_piece.html", &TemplateParams{Form: map[string]string{}})
}

// POST /add_piece

func (a *app) addPieceHandler(c echo.Context) error {
	identity := identityFrom(c)
	form := PieceForm{
		Title:    c.FormValue("title"),
		Composer: c.FormValue("composer"),
		Year:     c.FormValue("year"),
	}
	if _, err := a.addPiece(c.Request().Context(), identity.MusicianID, &form); err != nil {
		if verr, ok := isValidationError(err); ok {
			return a.renderFormError(c, http.StatusBadRequest, "add_piece.html", verr.Message, &TemplateParams{
				Form: map[string]string{"title": form.Title, "composer": form.Composer, "year": form.Year},
			})
		}
		if errors.Is(err, ErrNotFound) {
			return redirectWithFlash(c, flashDanger, "User not found.", "/")
		}
		return err
	}
	return redirectWithFlash(c, flashSuccess, "Piece added successfully!",
		"/profile/"+strconv.FormatInt(identity.MusicianID, 10))
}

// POST /delete_piece/:piece_id

func (a *app) deletePieceHandler(c echo.Context) error {
	pieceID, err := strconv.ParseInt(c.Param("piece_id"), 10, 64)
	if err != nil {
		return redirectWithFlash(c, flashDanger, "Piece not found.", "/")
	}
	if err := a.removePiece(c.Request().Context(), identityFrom(c), pieceID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return redirectWithFlash(c, flashDanger, "Piece not found.", "/")
		case errors.Is(err, ErrNotOwner):
			c.Logger().Warnf("denied delete_piece: %s", err)
			return redirectWithFlash(c, flashDanger, "You do not have permission to delete this piece.", "/")
		}
		return err
	}
	return redirectWithFlash(c, flashSuccess, "Piece deleted successfully.", "/own_profile")
}

// GET /edit_profile

func (a *app) editProfilePageHandler(c echo.Context) error {
	musician, err := getMusicianByID(c.Request().Context(), a.db, identityFrom(c).MusicianID)
	if err != nil {
		return err
	}
	if musician == nil {
		return redirectWithFlash(c, flashDanger, "User not found.", "/")
	}
	return a.render(c, http.StatusOK, "edit_profile.html", &TemplateParams{Musician: musician.Public()})
}

// POST /edit_profile

func (a *app) editProfileHandler(c echo.Context) error {
	ctx := c.Request().Context()
	musician, err := getMusicianByID(ctx, a.db, identityFrom(c).MusicianID)
	if err != nil {
		return err
	}
	if musician == nil {
		return redirectWithFlash(c, flashDanger, "User not found.", "/")
	}

	form := ProfileForm{
		Name:         c.FormValue("name"),
		Instrument:   c.FormValue("instrument"),
		Bio:          c.FormValue("bio"),
		Password:     c.FormValue("password"),
		NewPassword:  c.FormValue("new_password"),
		Confirmation: c.FormValue("confirmation"),
	}
	if err := a.updateProfile(ctx, musician, &form); err != nil {
		if verr, ok := isValidationError(err); ok {
			// the stored profile, not the rejected input
			return a.renderFormError(c, http.StatusBadRequest, "edit_profile.html", verr.Message,
				&TemplateParams{Musician: musician.Public()})
		}
		return err
	}
	return redirectWithFlash(c, flashSuccess, "Profile updated successfully.",
		"/profile/"+strconv.FormatInt(musician.ID, 10))
}
