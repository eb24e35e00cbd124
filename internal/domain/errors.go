package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDataFormat is returned when the question catalog is malformed.
	ErrDataFormat = errors.New("malformed question catalog")
	// ErrAlreadyAnswered is returned when a participant answers the same question twice.
	ErrAlreadyAnswered = errors.New("already answered")
	// ErrSessionClosed is returned when an answer arrives for a question that is no longer open.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrInvalidOption indicates a submitted option index is out of range.
	ErrInvalidOption = errors.New("option not found")
	// ErrNoPrecedingQuestion is returned when no closed question is available for an explanation.
	ErrNoPrecedingQuestion = errors.New("no preceding question")
	// ErrTransport wraps failures reported by the chat transport.
	ErrTransport = errors.New("transport failure")
	// ErrPersistenceWrite wraps snapshot write failures.
	ErrPersistenceWrite = errors.New("snapshot write failed")
	// ErrSnapshotNotFound is returned by snapshot stores holding no snapshot yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrCorruptSnapshot is returned when a stored snapshot cannot be decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// DataFormatError describes the first catalog record that failed validation.
type DataFormatError struct {
	Index      int
	QuestionID int
	Reason     string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("question #%d (record %d): %s", e.QuestionID, e.Index, e.Reason)
}

func (e *DataFormatError) Unwrap() error { return ErrDataFormat }
