package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	FanoutErrorInvalidNotification = "FANOUT_INVALID_NOTIFICATION"
	FanoutErrorBadInput            = "FANOUT_BAD_INPUT"
	FanoutErrorNotFound            = "FANOUT_NOT_FOUND"
	FanoutErrorStoreFailure        = "FANOUT_STORE_FAILURE"
	FanoutErrorTransportFailure    = "FANOUT_TRANSPORT_FAILURE"
	FanoutErrorInternal            = "FANOUT_INTERNAL_ERROR"
)

var (
	ErrInvalidNotification  = errors.New("core: invalid notification")
	ErrSubscriptionNotFound = errors.New("core: subscription not found")
)

func invalidNotificationError(field string) error {
	return goerrors.NewValidation("core: invalid notification", goerrors.FieldError{
		Field:   field,
		Message: "missing " + field,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(FanoutErrorInvalidNotification).
		WithSeverity(goerrors.SeverityError)
}

func badInputError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(FanoutErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// NotFoundError reports a missing subscription with the fan-out envelope.
func NotFoundError(id string) error {
	return goerrors.Wrap(ErrSubscriptionNotFound, goerrors.CategoryNotFound, "core: subscription not found").
		WithCode(http.StatusNotFound).
		WithTextCode(FanoutErrorNotFound).
		WithMetadata(map[string]any{"subscription_id": strings.TrimSpace(id)})
}

// StoreError wraps a persistence failure.
func StoreError(source error, message string) error {
	if source == nil {
		return nil
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(FanoutErrorStoreFailure)
}

func IsInvalidNotification(err error) bool {
	return hasTextCode(err, FanoutErrorInvalidNotification) || errors.Is(err, ErrInvalidNotification)
}

func IsNotFound(err error) bool {
	if hasTextCode(err, FanoutErrorNotFound) || errors.Is(err, ErrSubscriptionNotFound) {
		return true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == goerrors.CategoryNotFound
	}
	return false
}

func IsBadInput(err error) bool {
	return hasTextCode(err, FanoutErrorBadInput)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// MapError converts arbitrary errors into the fan-out error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusFor(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return FanoutErrorBadInput
	case goerrors.CategoryNotFound:
		return FanoutErrorNotFound
	case goerrors.CategoryExternal:
		return FanoutErrorTransportFailure
	default:
		return FanoutErrorInternal
	}
}

func httpStatusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
