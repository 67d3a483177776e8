package task

import "errors"

var (
	// ErrAlreadyHandled means the child already has a pending or approved
	// completion covering the current period.
	ErrAlreadyHandled = errors.New("task already completed for this period")
	// ErrTaskInactive means the task was deactivated.
	ErrTaskInactive = errors.New("task is no longer active")
	// ErrNotAssigned means the child is not one of the task's assignees.
	ErrNotAssigned = errors.New("task is not assigned to this child")
	// ErrProofRequired means the task needs a photo and none was given.
	ErrProofRequired = errors.New("task requires a photo")
)
