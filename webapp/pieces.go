package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type PieceForm struct {
	Title    string `form:"title"`
	Composer string `form:"composer"`
	Year     string `form:"year"`
}

func (f *PieceForm) parse() (title, composer string, year int, err error) {
	title = strings.TrimSpace(f.Title)
	composer = strings.TrimSpace(f.Composer)
	if title == "" || 191 < utf8.RuneCountInString(title) {
		return "", "", 0, newValidationError("Title is required (at most 191 characters).")
	}
	if composer == "" || 191 < utf8.RuneCountInString(composer) {
		return "", "", 0, newValidationError("Composer is required (at most 191 characters).")
	}
	year, err = strconv.Atoi(strings.TrimSpace(f.Year))
	if err != nil || year < 0 || 9999 < year {
		return "", "", 0, newValidationError("Year must be a number between 0 and 9999.")
	}
	return title, composer, year, nil
}

// addPiece always records the piece for the given musician; the form cannot name an owner.
func (a *app) addPiece(ctx context.Context, musicianID int64, f *PieceForm) (int64, error) {
	title, composer, year, err := f.parse()
	if err != nil {
		return 0, err
	}
	musician, err := getMusicianByID(ctx, a.db, musicianID)
	if err != nil {
		return 0, err
	}
	if musician == nil {
		return 0, fmt.Errorf("musician id=%d: %w", musicianID, ErrNotFound)
	}
	return insertPiece(ctx, a.db, title, composer, year, musicianID)
}

func (a *app) removePiece(ctx context.Context, identity *Identity, pieceID int64) error {
	piece, err := getPieceByID(ctx, a.db, pieceID)
	if err != nil {
		return err
	}
	if piece == nil {
		return fmt.Errorf("piece id=%d: %w", pieceID, ErrNotFound)
	}
	if err := authorizePieceOwner(identity, piece); err != nil {
		return err
	}
	deleted, err := deletePiece(ctx, a.db, piece.ID, identity.MusicianID)
	if err != nil {
		return err
	}
	if !deleted {
		// removed concurrently between the lookup and the delete
		return fmt.Errorf("piece id=%d: %w", pieceID, ErrNotFound)
	}
	return nil
}
