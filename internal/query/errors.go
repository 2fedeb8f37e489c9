package query

import "errors"

// ErrInvalidQuery is returned when query parameters are malformed.
var ErrInvalidQuery = errors.New("query: invalid request")
