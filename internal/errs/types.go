package errs

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitExceededError carries the quota numbers the UI shows when a call is denied.
type RateLimitExceededError struct {
	Remaining int
	Limit     int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d of %d points remaining this week", e.Remaining, e.Limit)
}

// Is makes errors.Is(err, ErrRateLimitExceeded) hold.
func (e *RateLimitExceededError) Is(target error) bool { return target == ErrRateLimitExceeded }

// RetryAfterError is returned when the chat endpoint answers 429.
type RetryAfterError struct {
	Wait time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limit exceeded: retry after %s", e.Wait)
}

// Is makes errors.Is(err, ErrRateLimitExceeded) hold.
func (e *RetryAfterError) Is(target error) bool { return target == ErrRateLimitExceeded }

// ServerError wraps the {error: string} payload returned by the backend.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// Unwrap exposes ErrServer for errors.Is.
func (e *ServerError) Unwrap() error { return ErrServer }

// UserMessage maps any error to a human-readable message safe to show in the UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var rl *RateLimitExceededError
	if errors.As(err, &rl) {
		return fmt.Sprintf("Weekly limit reached. %d of %d searches remaining; the limit resets on Monday.", rl.Remaining, rl.Limit)
	}
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return fmt.Sprintf("Too many questions. Please wait %d seconds and try again.", int(ra.Wait.Round(time.Second).Seconds()))
	}
	var se *ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}

	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "Please log in to continue."
	case errors.Is(err, ErrValidation):
		return "The input could not be accepted. Please check it and try again."
	case errors.Is(err, ErrInsufficientBalance):
		return "You have no tokens left. Purchase a token pack to continue."
	case errors.Is(err, ErrAlreadyExists):
		return "This purchase has already been applied."
	case errors.Is(err, ErrConflict):
		return "Your balance changed on another device. Please refresh and try again."
	case errors.Is(err, ErrVerification):
		return "The purchase could not be verified."
	case errors.Is(err, ErrPurchaseCancelled):
		return "Purchase cancelled."
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrNetwork):
		return "Network error. Please check your connection and try again."
	case errors.Is(err, ErrServer):
		return "The server could not process the request. Please try again later."
	case errors.Is(err, ErrDatabase):
		return "Something went wrong saving your data. Please try again later."
	}
	return "An unexpected error occurred. Please try again later."
}
