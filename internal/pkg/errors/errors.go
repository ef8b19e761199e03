package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalid = errors.New("invalid")
	ErrTooMany = errors.New("too many requests")

	ErrNoDocuments            = errors.New("no documents provided")
	ErrMissingAssistantConfig = errors.New("assistant id is not configured")
	ErrUnavailable            = errors.New("assistant backend not configured")

	ErrRunFailed           = errors.New("assistant run failed")
	ErrRunTimedOut         = errors.New("assistant run timed out")
	ErrNoAssistantResponse = errors.New("no response from assistant")
)

// RunFailedError is returned when a run reaches a terminal status other than
// completed. It matches ErrRunFailed under errors.Is.
type RunFailedError struct {
	Status  string
	Message string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("assistant run failed: %s", e.Message)
}

func (e *RunFailedError) Is(target error) bool {
	return target == ErrRunFailed
}

func IsBatchFatal(err error) bool {
	return errors.Is(err, ErrNoDocuments) || errors.Is(err, ErrMissingAssistantConfig)
}
