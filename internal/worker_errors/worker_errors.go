package workererrors

import (
	"fmt"
)

// Process exit codes of the command line tools
const (
	ExitNormal   int = 0
	ExitErrored  int = 1
	ExitRejected int = 2 // the server refused the request as sent
	ExitDenied   int = 3 // bad or missing credentials
)

// Carries an exit code along with an error so the app can exit correctly
type ExitError struct {
	Err  error
	Code int
}

func (e ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%d", e.Code)
	}

	return fmt.Sprintf("%d: %s", e.Code, e.Err.Error())
}

func (e ExitError) Unwrap() error {
	return e.Err
}

// Wrap an error with an exit code
func ExitErrorWrap(code int, err error) error {
	return ExitError{Code: code, Err: err}
}
