package domain

import "errors"

var (
	ErrInvalidRegion       = errors.New("invalid region")
	ErrInvalidPolicy       = errors.New("invalid grid policy")
	ErrNoResults           = errors.New("no places found in area")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrSearchNameTaken     = errors.New("search name already used")
	ErrAreaTooLarge        = errors.New("area too large")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrGridTooLarge        = errors.New("analysis grid too large")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrForbidden           = errors.New("forbidden")
)
