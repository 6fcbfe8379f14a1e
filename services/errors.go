package services

import "errors"

// auth
var (
	ErrWeakSecret       = errors.New("password is too short")
	ErrSecretTooLong    = errors.New("password must be at most 72 bytes")
	ErrInvalidName      = errors.New("username must be 3-24 characters and contain letters or digits")
	ErrNameTaken        = errors.New("username already taken")
	ErrWrongCredentials = errors.New("wrong username or password")
	ErrRateLimited      = errors.New("too many failed attempts, try again later")
	ErrUnauthenticated  = errors.New("not logged in")
	ErrUserNotFound     = errors.New("user not found")
)

// matchmaking and matches
var (
	ErrInvalidFleet    = errors.New("invalid fleet")
	ErrFleetRequired   = errors.New("no fleet placed")
	ErrNoActiveMatch   = errors.New("no active match")
	ErrMatchNotFound   = errors.New("match not found")
	ErrMatchInProgress = errors.New("match is still in progress")
)

// skins
var (
	ErrInvalidSkin     = errors.New("invalid skin")
	ErrUploadsDisabled = errors.New("skin uploads are not configured")
)
