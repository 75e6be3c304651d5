package ingest

import "fmt"

// The owner or machine could not be resolved, or the machine belongs to someone else
type AuthError struct {
	Reason string
}

func (e AuthError) Error() string {
	return "unauthorized: " + e.Reason
}

// An artifact could not be written. Nothing was committed
type StorageError struct {
	Err error
}

func (e StorageError) Error() string {
	if e.Err == nil {
		return "storage failure"
	}

	return fmt.Sprintf("storage failure: %s", e.Err.Error())
}

func (e StorageError) Unwrap() error {
	return e.Err
}
