package model

import "time"

type CompletionStatus string

const (
	CompletionPending  CompletionStatus = "pending"
	CompletionApproved CompletionStatus = "approved"
	CompletionRejected CompletionStatus = "rejected"
)

func (s CompletionStatus) Valid() bool {
	switch s {
	case CompletionPending, CompletionApproved, CompletionRejected:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s CompletionStatus) Terminal() bool {
	return s == CompletionApproved || s == CompletionRejected
}

type TaskCompletion struct {
	ID           int64            `json:"id"`
	TaskID       int64            `json:"task_id"`
	ChildID      int64            `json:"child_id"`
	Status       CompletionStatus `json:"status"`
	PeriodKey    string           `json:"period_key"`
	StarsAwarded int              `json:"stars_awarded"`
	HasProof     bool             `json:"has_proof"`
	CompletedAt  time.Time        `json:"completed_at"`
	ReviewedAt   *time.Time       `json:"reviewed_at"`
	ReviewedBy   *int64           `json:"reviewed_by"`
}
