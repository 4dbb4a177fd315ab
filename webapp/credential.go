package main

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultBcryptCost = 11
	// bcrypt ignores everything after 72 bytes
	maxPasswordBytes = 72
)

func generatePasswordHash(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("error bcrypt.GenerateFromPassword: %w", err)
	}
	return string(hashed), nil
}

func comparePasswordHash(password, passwordHash string) (bool, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("error bcrypt.CompareHashAndPassword: %w", err)
	}
	return true, nil
}

func validatePassword(password string) error {
	if password == "" {
		return newValidationError("Password is required.")
	}
	if len(password) > maxPasswordBytes {
		return newValidationError("Password must be at most %d bytes.", maxPasswordBytes)
	}
	return nil
}
