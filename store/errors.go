package store

import "errors"

var (
	// ErrDuplicateExecution means a non-cancelled execution already exists
	// for the (sequence, prospect) pair.
	ErrDuplicateExecution = errors.New("execution already exists for this sequence and prospect")

	// ErrVersionConflict means the record changed between read and write.
	// The caller re-reads and retries the attempt.
	ErrVersionConflict = errors.New("execution record was modified concurrently")

	// ErrSequenceInUse means the sequence's steps are referenced by live
	// executions and may not be restructured.
	ErrSequenceInUse = errors.New("sequence steps are frozen while executions reference them")

	// ErrInvalidTransition means the requested status change is not
	// allowed from the record's current status.
	ErrInvalidTransition = errors.New("invalid execution status transition")

	ErrNotFound = errors.New("record not found")
)
