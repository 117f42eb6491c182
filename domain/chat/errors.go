package chat

import "errors"

// ErrNotFound is returned when a message does not exist.
var ErrNotFound = errors.New("message not found")
