package model

import "time"

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

type Member struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	Color       string    `json:"color"`
	AvatarEmoji string    `json:"avatar_emoji"`
	HasPIN      bool      `json:"has_pin"`
	StarBalance int       `json:"star_balance"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (m Member) IsParent() bool { return m.Role == RoleParent }
func (m Member) IsChild() bool  { return m.Role == RoleChild }

// StarStanding is a leaderboard row.
type StarStanding struct {
	MemberID    int64  `json:"member_id"`
	MemberName  string `json:"member_name"`
	AvatarEmoji string `json:"avatar_emoji"`
	StarBalance int    `json:"star_balance"`
	TotalEarned int    `json:"total_earned"`
	TotalSpent  int    `json:"total_spent"`
}
