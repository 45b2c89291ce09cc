package token

import "errors"

var (
	// ErrTokenGeneration indicates token generation failed
	ErrTokenGeneration = errors.New("failed to generate token")

	// ErrInvalidToken indicates the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("token expired")

	// ErrNotAccessToken indicates a verified JWT that is not an access token
	// (for example an ID token presented as a bearer credential)
	ErrNotAccessToken = errors.New("token is not an access token")
)
