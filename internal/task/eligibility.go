// Package task decides which tasks a child can complete right now.
//
// Evaluate is the only place recurrence periods are compared. The child
// task list (Partition) and the completion guard in the store both call it,
// so what the list shows and what a submit accepts cannot drift apart.
package task

import (
	"time"

	"github.com/dukerupert/starchart/internal/model"
)

type Eligibility string

const (
	Available       Eligibility = "available"
	PendingApproval Eligibility = "pending_approval"
	Completed       Eligibility = "completed"
)

// Evaluate decides whether t may be completed at now, given the child's
// completions of t in any order.
//
// Any pending completion blocks a new attempt. Rejected completions are
// ignored. Otherwise the latest approved completion is compared against
// the period containing now: a one-time task is done forever, a recurring
// one re-arms at the next local midnight, Sunday or first of the month.
// ByDay and ByMonthDay are not consulted.
func Evaluate(t model.Task, completions []model.TaskCompletion, now time.Time) Eligibility {
	var last time.Time
	var haveApproved bool

	for _, c := range completions {
		switch c.Status {
		case model.CompletionPending:
			return PendingApproval
		case model.CompletionApproved:
			if !haveApproved || c.CompletedAt.After(last) {
				last = c.CompletedAt
			}
			haveApproved = true
		}
	}

	if !haveApproved {
		return Available
	}

	if !t.Recurrence.IsRecurring() {
		return Completed
	}

	if t.Recurrence.PeriodBefore(last, now) {
		return Available
	}
	return Completed
}
