package error

import "errors"

// ErrTypeAssertMismatch is returned when a value stored in the echo context
// does not have the type the handler expects.
var ErrTypeAssertMismatch = errors.New("failed to assert type of value")
