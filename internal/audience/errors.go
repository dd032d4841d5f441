package audience

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn is matched by every *MissingColumnError.
	ErrMissingColumn = errors.New("mapped column not found in input")
	// ErrEmptyResult means no records survived deduplication.
	ErrEmptyResult = errors.New("nothing to export")
)

// MissingColumnError names the role whose column is not in the input header.
type MissingColumnError struct {
	Role   Role
	Column string
}

func (e *MissingColumnError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("no column selected for %s", e.Role)
	}
	return fmt.Sprintf("column %q (%s) not found in input", e.Column, e.Role)
}

func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}
