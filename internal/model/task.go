package model

import (
	"slices"
	"time"

	"github.com/dukerupert/starchart/internal/recurrence"
)

type ProofRequirement string

const (
	ProofNone  ProofRequirement = "none"
	ProofPhoto ProofRequirement = "photo"
)

type ApprovalMode string

const (
	ApprovalAuto   ApprovalMode = "auto"
	ApprovalParent ApprovalMode = "parent"
)

type Task struct {
	ID               int64            `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Category         string           `json:"category"`
	StarValue        int              `json:"star_value"`
	Recurrence       recurrence.Rule  `json:"recurrence_rule"`
	AssignedChildIDs []int64          `json:"assigned_child_ids"`
	ProofRequirement ProofRequirement `json:"proof_requirement"`
	ApprovalMode     ApprovalMode     `json:"approval_mode"`
	Active           bool             `json:"active"`
	CreatedBy        *int64           `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsAssignedTo reports whether childID may complete the task.
func (t Task) IsAssignedTo(childID int64) bool {
	return slices.Contains(t.AssignedChildIDs, childID)
}

// InitialStatus is the status a fresh completion of this task starts in.
func (t Task) InitialStatus() CompletionStatus {
	if t.ApprovalMode == ApprovalAuto {
		return CompletionApproved
	}
	return CompletionPending
}
