package emotion

import "errors"

var (
	// ErrUnknownLabel is returned when a name is not part of the vocabulary.
	ErrUnknownLabel = errors.New("emotion: unknown label")

	// ErrInvalidPalette is returned when a palette file cannot be used.
	ErrInvalidPalette = errors.New("emotion: invalid palette")
)
