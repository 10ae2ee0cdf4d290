package common

import "errors"

var (
	// session errors
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrEmptyCredential = errors.New("email and password are required")
)
