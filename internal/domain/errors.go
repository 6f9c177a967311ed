package domain

import "errors"

// Domain errors
var (
	ErrMissingToken       = errors.New("session token is required")
	ErrInvalidGuess       = errors.New("guess text is required")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrGameNotActive      = errors.New("game is already complete")
	ErrGameNotFound       = errors.New("no game found for date")
	ErrSessionNotFound    = errors.New("game session not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrMovieNotFound      = errors.New("movie not found")
	ErrCatalogUnavailable = errors.New("movie catalog unavailable")
	ErrEmptyCatalog       = errors.New("no movies available for selection")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrMovieNotFound)
}

// IsValidationError checks if an error is the caller's fault and should not
// be retried.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrInvalidGuess) ||
		errors.Is(err, ErrInvalidRequest)
}
