package xoauth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrExchangeFailed matches every token endpoint failure.
	ErrExchangeFailed = errors.New("X token exchange failed")

	// ErrProfileLookupFailed matches every profile endpoint failure.
	ErrProfileLookupFailed = errors.New("failed to fetch X profile")
)

// ExchangeError describes a failed call to the token endpoint. StatusCode is
// 0 when no HTTP response was received.
type ExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", ErrExchangeFailed, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrExchangeFailed, e.Err)
	default:
		return ErrExchangeFailed.Error()
	}
}

func (e *ExchangeError) Is(target error) bool {
	return target == ErrExchangeFailed
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

func toExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		exErr := &ExchangeError{Body: string(retrieveErr.Body), Err: err}
		if retrieveErr.Response != nil {
			exErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return exErr
	}
	return &ExchangeError{Err: err}
}
