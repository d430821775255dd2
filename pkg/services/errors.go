package services

import (
	"errors"
	"net/http"
)

var (
	ErrDestinationNotFound = errors.New("destination not found")
	ErrActionNotFound      = errors.New("action not found")
	ErrEmptyBatch          = errors.New("batch must carry at least one event")
)

// NotFoundError names the destination or action a call referenced.
type NotFoundError struct {
	Kind string
	Slug string
	Err  error
}

func (e *NotFoundError) Error() string {
	return e.Kind + " " + e.Slug + " not found"
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func (e *NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// Code is the problem type the API reports, e.g. "destination_not_found".
func (e *NotFoundError) Code() string {
	return e.Kind + "_not_found"
}

// IsNotFound reports whether err names an unknown destination or action.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDestinationNotFound) || errors.Is(err, ErrActionNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyBatch)
}

func destinationNotFound(slug string) *NotFoundError {
	return &NotFoundError{Kind: "destination", Slug: slug, Err: ErrDestinationNotFound}
}

func actionNotFound(destination, action string) *NotFoundError {
	return &NotFoundError{Kind: "action", Slug: destination + "/" + action, Err: ErrActionNotFound}
}
