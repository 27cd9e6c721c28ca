package tagstore

import "fmt"

// StorageError reports a failure to write tags to the vector driver.
type StorageError struct {
	// Op is the store operation that failed ("add" or "flush").
	Op string

	// Tags is the number of tags the failed write carried.
	Tags int

	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("tagstore %s (%d tags): %v", e.Op, e.Tags, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RetrievalError reports a failed similarity search.
type RetrievalError struct {
	Scope string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("tagstore search in scope %q: %v", e.Scope, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
