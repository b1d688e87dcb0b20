package catalog

import "errors"

var (
	// ErrStatusNotOK is returned when the catalog answered with a status other than 200 OK.
	ErrStatusNotOK = errors.New("catalog response status is not 200 OK")
	// ErrItemNotFound is returned when the catalog has no page for the requested id.
	ErrItemNotFound = errors.New("catalog item not found")
)
