package exec

import "errors"

var (
	// ErrPathNotFound means no route joins source and target. Nothing changed.
	ErrPathNotFound = errors.New("no conversion path")
	// ErrInsufficientQuantity means the source cannot cover one trade unit.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	// ErrPartialExtraction means the backend could not give up every unit; any
	// units taken were put back.
	ErrPartialExtraction = errors.New("partial extraction")
	// ErrInvalidRequest covers malformed or stale requests.
	ErrInvalidRequest = errors.New("invalid request")
)
