package main

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// authRequired sends anonymous requests to the login page with the given notice.
func authRequired(notice string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if identityFrom(c) == nil {
				c.Logger().Debugf("%s %s: %s", c.Request().Method, c.Path(), ErrLoginRequired)
				return redirectWithFlash(c, flashDanger, notice, "/login")
			}
			return next(c)
		}
	}
}

// authorizePieceOwner permits the request only when the identity owns the piece.
func authorizePieceOwner(identity *Identity, piece *PieceRow) error {
	if identity == nil {
		return ErrLoginRequired
	}
	if piece.MusicianID != identity.MusicianID {
		return fmt.Errorf("musician_id=%d on piece id=%d owned by %d: %w",
			identity.MusicianID, piece.ID, piece.MusicianID, ErrNotOwner)
	}
	return nil
}
