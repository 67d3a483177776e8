package model

import "time"

type Reward struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StarCost    int       `json:"star_cost"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Redemptions move through the same pending/approved/rejected states as
// task completions; stars are debited on approval.
type RewardRedemption struct {
	ID          int64            `json:"id"`
	RewardID    int64            `json:"reward_id"`
	ChildID     int64            `json:"child_id"`
	Status      CompletionStatus `json:"status"`
	StarCost    int              `json:"star_cost"`
	RequestedAt time.Time        `json:"requested_at"`
	ReviewedAt  *time.Time       `json:"reviewed_at"`
	ReviewedBy  *int64           `json:"reviewed_by"`
}
