package service

import "errors"

var (
	// ErrRecordNotFound is returned when a referenced expense or settlement
	// record does not exist. Nothing is written.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidSettlement is returned for bad settlement parameters:
	// non-positive amount, identical endpoints, or unknown members.
	ErrInvalidSettlement = errors.New("invalid settlement")

	// ErrEmailExists is returned when registering an already-taken email.
	ErrEmailExists = errors.New("email already registered")

	// ErrInvalidCredentials is returned on failed login. Deliberately does
	// not distinguish unknown email from wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)
