// Errors shared by the server's handlers and middleware
package error

import "errors"

// A context value set by middleware was missing or of the wrong type
var ErrTypeAssertMismatch = errors.New("type assertion did not match expected type")
