package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/task"
)

type RewardStore struct {
	db    *sql.DB
	clock task.Clock
}

func NewRewardStore(db *sql.DB, clock task.Clock) *RewardStore {
	return &RewardStore{db: db, clock: clock}
}

// --- Reward methods ---

func scanReward(s scanner) (*model.Reward, error) {
	var r model.Reward
	var active int

	err := s.Scan(&r.ID, &r.Title, &r.Description, &r.StarCost, &active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Active = active != 0
	return &r, nil
}

const rewardCols = `id, title, description, star_cost, active, created_at`

func (s *RewardStore) Create(title, description string, starCost int, active bool) (*model.Reward, error) {
	result, err := s.db.Exec(
		`INSERT INTO rewards (title, description, star_cost, active) VALUES (?, ?, ?, ?)`,
		title, description, starCost, boolToInt(active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	return getReward(s.db, id)
}

func getReward(q queryer, id int64) (*model.Reward, error) {
	r, err := scanReward(q.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// List returns all rewards, active first, then by title.
func (s *RewardStore) List() ([]model.Reward, error) {
	return s.list(`SELECT ` + rewardCols + ` FROM rewards ORDER BY active DESC, title ASC`)
}

// ListActive returns only active rewards, cheapest first.
func (s *RewardStore) ListActive() ([]model.Reward, error) {
	return s.list(`SELECT ` + rewardCols + ` FROM rewards WHERE active = 1 ORDER BY star_cost ASC, title ASC`)
}

func (s *RewardStore) list(query string) ([]model.Reward, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(id int64, title, description string, starCost int, active bool) (*model.Reward, error) {
	_, err := s.db.Exec(
		`UPDATE rewards SET title = ?, description = ?, star_cost = ?, active = ? WHERE id = ?`,
		title, description, starCost, boolToInt(active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes a reward that was never redeemed. Rewards with
// redemptions return ErrInUse and should be deactivated instead.
func (s *RewardStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if isConstraintErr(err) {
		return ErrInUse
	}
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// --- Redemption methods ---

func scanRedemption(s scanner) (*model.RewardRedemption, error) {
	var r model.RewardRedemption
	var reviewedAt sql.NullTime
	var reviewedBy sql.NullInt64

	err := s.Scan(&r.ID, &r.RewardID, &r.ChildID, &r.Status, &r.StarCost, &r.RequestedAt, &reviewedAt, &reviewedBy)
	if err != nil {
		return nil, err
	}

	r.ReviewedAt = timePtr(reviewedAt)
	r.ReviewedBy = int64Ptr(reviewedBy)
	return &r, nil
}

const redemptionCols = `id, reward_id, child_id, status, star_cost, requested_at, reviewed_at, reviewed_by`

// Redeem files a pending redemption request. The child's balance, less
// the cost of requests still awaiting review, must cover the reward.
func (s *RewardStore) Redeem(rewardID, childID int64) (*model.RewardRedemption, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	reward, err := getReward(tx, rewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, ErrNotFound
	}
	if !reward.Active {
		return nil, ErrRewardInactive
	}

	child, err := getMember(tx, childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrNotFound
	}

	var held int
	if err := tx.QueryRow(
		`SELECT COALESCE(SUM(star_cost), 0) FROM reward_redemptions WHERE child_id = ? AND status = 'pending'`,
		childID,
	).Scan(&held); err != nil {
		return nil, fmt.Errorf("sum pending redemptions: %w", err)
	}
	if child.StarBalance-held < reward.StarCost {
		return nil, ErrInsufficientStars
	}

	result, err := tx.Exec(
		`INSERT INTO reward_redemptions (reward_id, child_id, status, star_cost, requested_at) VALUES (?, ?, 'pending', ?, ?)`,
		rewardID, childID, reward.StarCost, s.clock.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetRedemption(id)
}

// ApproveRedemption debits the child's balance and marks the request
// approved. It fails with ErrInsufficientStars if the balance no longer
// covers the cost.
func (s *RewardStore) ApproveRedemption(id, reviewerID int64) (*model.RewardRedemption, error) {
	return s.reviewRedemption(id, reviewerID, model.CompletionApproved)
}

func (s *RewardStore) RejectRedemption(id, reviewerID int64) (*model.RewardRedemption, error) {
	return s.reviewRedemption(id, reviewerID, model.CompletionRejected)
}

func (s *RewardStore) reviewRedemption(id, reviewerID int64, to model.CompletionStatus) (*model.RewardRedemption, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	r, err := scanRedemption(tx.QueryRow(`SELECT `+redemptionCols+` FROM reward_redemptions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	if r.Status.Terminal() {
		return nil, ErrNotPending
	}

	if to == model.CompletionApproved {
		if err := adjustStars(tx, r.ChildID, -r.StarCost); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(
		`UPDATE reward_redemptions SET status = ?, reviewed_at = ?, reviewed_by = ? WHERE id = ?`,
		to, s.clock.Now().UTC(), reviewerID, id,
	); err != nil {
		return nil, fmt.Errorf("update redemption: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetRedemption(id)
}

func (s *RewardStore) GetRedemption(id int64) (*model.RewardRedemption, error) {
	r, err := scanRedemption(s.db.QueryRow(`SELECT `+redemptionCols+` FROM reward_redemptions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return r, nil
}

func (s *RewardStore) ListRedemptionsByChild(childID int64) ([]model.RewardRedemption, error) {
	return s.listRedemptions(
		`SELECT `+redemptionCols+` FROM reward_redemptions WHERE child_id = ? ORDER BY requested_at DESC`,
		childID,
	)
}

// ListPendingRedemptions returns the review queue, oldest first.
func (s *RewardStore) ListPendingRedemptions() ([]model.RewardRedemption, error) {
	return s.listRedemptions(
		`SELECT ` + redemptionCols + ` FROM reward_redemptions WHERE status = 'pending' ORDER BY requested_at ASC`,
	)
}

func (s *RewardStore) listRedemptions(query string, args ...any) ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.RewardRedemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}
