package identity

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

const maxErrorBody = 4 << 10

// StatusError is a non-2xx answer from the identity service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity: status %d", e.StatusCode)
	}
	return fmt.Sprintf("identity: status %d: %s", e.StatusCode, e.Message)
}

func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var decoded struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &decoded) == nil {
		switch {
		case decoded.Message != "":
			message = decoded.Message
		case decoded.Error != "":
			message = decoded.Error
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}

// statusMapper picks the taxonomy error for a rejected call, or nil when
// the status is not one the call knows how to classify.
type statusMapper func(status int) error

func loginStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrInvalidCredentials
	}
	return nil
}

func registerStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.ErrValidation
	case http.StatusConflict:
		return apperrors.ErrConflict
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrInvalidCredentials
	}
	return nil
}

func forgotStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.ErrValidation
	}
	return nil
}

// resetStatus treats an expired or unknown reset token like any other bad input.
func resetStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		return apperrors.ErrValidation
	}
	return nil
}

func refreshStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrRefreshInvalid
	}
	return nil
}

// classify joins err with the taxonomy sentinel so callers can errors.Is the
// category and errors.As the *StatusError.
func classify(err error, mapper statusMapper) error {
	var statusErr *StatusError
	if apperrors.As(err, &statusErr) && mapper != nil {
		if sentinel := mapper(statusErr.StatusCode); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}
	return fmt.Errorf("%w: %w", apperrors.ErrTransport, err)
}
