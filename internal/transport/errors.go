package transport

import "errors"

// ErrInvalidCommand is returned when a command request is missing a
// required field.
var ErrInvalidCommand = errors.New("transport: invalid command")
