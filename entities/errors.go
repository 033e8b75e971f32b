package entities

import (
	"fmt"
	"strings"
)

// ValidationError is returned for requests with missing or malformed fields. Nothing gets written.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: [%s]", e.Message, strings.Join(e.Fields, ", "))
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// DuplicateError is returned when the record already exists. The write is skipped.
type DuplicateError struct {
	Message string
}

func (e *DuplicateError) Error() string {
	return e.Message
}
