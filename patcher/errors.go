package patcher

import "fmt"

// FormatError reports a template or font file the engine cannot work with.
// No output is produced when it is returned.
type FormatError struct {
	Op  string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed template: %s: %v", e.Op, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
