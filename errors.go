package mealprep

import "errors"

var (
	// ErrRetrieval marks a failure of the recipe retrieval layer. It is never retried here.
	ErrRetrieval = errors.New("recipe retrieval failed")

	// ErrSchemaValidation marks a completion whose text does not match the requested schema.
	ErrSchemaValidation = errors.New("completion failed schema validation")

	// ErrConfiguration marks missing credentials or settings. Fatal at startup.
	ErrConfiguration = errors.New("invalid configuration")

	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
)
