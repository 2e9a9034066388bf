package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrSameVersion       = errors.New("cannot compare a version with itself")
)
