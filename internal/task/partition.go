package task

import (
	"time"

	"github.com/dukerupert/starchart/internal/model"
)

// TaskWithEligibility is a task as one child sees it.
type TaskWithEligibility struct {
	model.Task
	Eligibility   Eligibility `json:"eligibility"`
	Schedule      string      `json:"schedule"`
	NextScheduled *time.Time  `json:"next_scheduled,omitempty"`
	LastCompleted *time.Time  `json:"last_completed,omitempty"`
}

// Partition is a child's task list split by eligibility.
type Partition struct {
	Available       []TaskWithEligibility `json:"available"`
	PendingApproval []TaskWithEligibility `json:"pending_approval"`
	Completed       []TaskWithEligibility `json:"completed"`
}

// Len returns the number of tasks across all buckets.
func (p Partition) Len() int {
	return len(p.Available) + len(p.PendingApproval) + len(p.Completed)
}

// PartitionTasks buckets the active tasks assigned to childID. completions
// maps task ID to that child's completions of the task. Input order of
// tasks is preserved within each bucket.
func PartitionTasks(tasks []model.Task, completions map[int64][]model.TaskCompletion, childID int64, now time.Time) Partition {
	p := Partition{
		Available:       []TaskWithEligibility{},
		PendingApproval: []TaskWithEligibility{},
		Completed:       []TaskWithEligibility{},
	}

	for _, t := range tasks {
		if !t.Active || !t.IsAssignedTo(childID) {
			continue
		}

		cs := completions[t.ID]
		tw := TaskWithEligibility{
			Task:          t,
			Eligibility:   Evaluate(t, cs, now),
			Schedule:      t.Recurrence.Describe(),
			LastCompleted: lastApproved(cs),
		}
		if next, ok := t.Recurrence.NextScheduled(now); ok {
			tw.NextScheduled = &next
		}

		switch tw.Eligibility {
		case Available:
			p.Available = append(p.Available, tw)
		case PendingApproval:
			p.PendingApproval = append(p.PendingApproval, tw)
		default:
			p.Completed = append(p.Completed, tw)
		}
	}
	return p
}

func lastApproved(cs []model.TaskCompletion) *time.Time {
	var last *time.Time
	for i := range cs {
		if cs[i].Status != model.CompletionApproved {
			continue
		}
		if last == nil || cs[i].CompletedAt.After(*last) {
			t := cs[i].CompletedAt
			last = &t
		}
	}
	return last
}
