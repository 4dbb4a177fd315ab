package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var usernameRegexp = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)

type RegisterForm struct {
	Username     string `form:"username"`
	Name         string `form:"name"`
	Instrument   string `form:"instrument"`
	Bio          string `form:"bio"`
	Password     string `form:"password"`
	Confirmation string `form:"confirmation"`
}

type ProfileForm struct {
	Name         string `form:"name"`
	Instrument   string `form:"instrument"`
	Bio          string `form:"bio"`
	Password     string `form:"password"`
	NewPassword  string `form:"new_password"`
	Confirmation string `form:"confirmation"`
}

func (f *RegisterForm) validate() error {
	if f.Password != f.Confirmation {
		return newValidationError("Passwords do not match. Please try again.")
	}
	if n := utf8.RuneCountInString(f.Username); n < 3 || 191 < n {
		return newValidationError("Username must be between 3 and 191 characters.")
	}
	if !usernameRegexp.MatchString(f.Username) {
		return newValidationError("Username may contain only letters, digits, hyphens and underscores.")
	}
	if err := validatePassword(f.Password); err != nil {
		return err
	}
	return validateProfileFields(f.Name, f.Instrument, f.Bio)
}

// maxBioBytes is the capacity of a MySQL TEXT column.
const maxBioBytes = 65535

func validateProfileFields(name, instrument, bio string) error {
	if 191 < utf8.RuneCountInString(name) {
		return newValidationError("Name must be at most 191 characters.")
	}
	if 191 < utf8.RuneCountInString(instrument) {
		return newValidationError("Instrument must be at most 191 characters.")
	}
	if maxBioBytes < len(bio) {
		return newValidationError("Bio is too long.")
	}
	return nil
}

// registerMusician validates the form before hashing, then inserts the musician.
func (a *app) registerMusician(ctx context.Context, f *RegisterForm) (int64, error) {
	f.Username = strings.TrimSpace(f.Username)
	if err := f.validate(); err != nil {
		return 0, err
	}

	// password hashを作る
	passwordHash, err := generatePasswordHash(f.Password, a.bcryptCost)
	if err != nil {
		return 0, err
	}
	return insertMusician(ctx, a.db, f.Username, f.Name, f.Instrument, f.Bio, passwordHash)
}

// authenticate returns ErrInvalidCredentials for both an unknown username and a wrong password.
func (a *app) authenticate(ctx context.Context, username, password string) (*MusicianRow, error) {
	if username == "" || password == "" || len(password) > maxPasswordBytes {
		return nil, ErrInvalidCredentials
	}
	musician, err := getMusicianByUsername(ctx, a.db, username)
	if err != nil {
		return nil, err
	}
	passwordHash := a.dummyPasswordHash
	if musician != nil {
		passwordHash = musician.PasswordHash
	}
	// compare even for unknown users so both failures cost the same
	matched, err := comparePasswordHash(password, passwordHash)
	if err != nil {
		return nil, err
	}
	if musician == nil || !matched {
		return nil, ErrInvalidCredentials
	}
	return musician, nil
}

// updateProfile always writes name, instrument and bio. The password changes only when
// NewPassword is set, matches Confirmation, and Password verifies. Both writes share a transaction.
func (a *app) updateProfile(ctx context.Context, musician *MusicianRow, f *ProfileForm) error {
	if err := validateProfileFields(f.Name, f.Instrument, f.Bio); err != nil {
		return err
	}

	var newPasswordHash string
	if f.NewPassword != "" {
		if f.NewPassword != f.Confirmation {
			return newValidationError("New password and confirmation do not match.")
		}
		matched, err := comparePasswordHash(f.Password, musician.PasswordHash)
		if err != nil {
			return err
		}
		if !matched {
			return newValidationError("Current password is incorrect.")
		}
		if err := validatePassword(f.NewPassword); err != nil {
			return err
		}
		newPasswordHash, err = generatePasswordHash(f.NewPassword, a.bcryptCost)
		if err != nil {
			return err
		}
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error db.BeginTxx: %w", err)
	}
	defer tx.Rollback()

	if err := updateMusicianProfile(ctx, tx, musician.ID, f.Name, f.Instrument, f.Bio); err != nil {
		return err
	}
	if newPasswordHash != "" {
		if err := updateMusicianPasswordHash(ctx, tx, musician.ID, newPasswordHash); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error tx.Commit: %w", err)
	}
	return nil
}
