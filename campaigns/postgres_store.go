package campaigns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/liamcoop/campaignrules/rules"
)

const uniqueViolation = "23505"

const campaignColumns = `id, name, current_status, target_status, is_managed, budget_limit,
	spend_today, stock_days_left, stock_days_min, schedule_enabled, created_at, updated_at`

// PostgresStore implements Store backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed Store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*Campaign, error) {
	var (
		c                   Campaign
		current, target     string
		budget              decimal.NullDecimal
		stockLeft, stockMin sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&c.Name,
		&current,
		&target,
		&c.IsManaged,
		&budget,
		&c.SpendToday,
		&stockLeft,
		&stockMin,
		&c.ScheduleEnabled,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.CurrentStatus = rules.Status(current)
	c.TargetStatus = rules.Status(target)
	if budget.Valid {
		limit := budget.Decimal
		c.BudgetLimit = &limit
	}
	c.StockDaysLeft = intFromNull(stockLeft)
	c.StockDaysMin = intFromNull(stockMin)
	return &c, nil
}

// GetCampaign retrieves a campaign by ID
func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns one page of campaigns in creation order
func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]*Campaign, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.IsManaged != nil {
		args = append(args, *filter.IsManaged)
		conditions = append(conditions, fmt.Sprintf("is_managed = $%d", len(args)))
	}
	if filter.NeedsSync != nil {
		if *filter.NeedsSync {
			conditions = append(conditions, "current_status <> target_status")
		} else {
			conditions = append(conditions, "current_status = target_status")
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where + ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Skip > 0 {
		args = append(args, filter.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var list []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return list, total, nil
}

// CreateCampaign inserts a new campaign
func (s *PostgresStore) CreateCampaign(ctx context.Context, c *Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (id, name, current_status, target_status, is_managed, budget_limit,
			spend_today, stock_days_left, stock_days_min, schedule_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, c.ID, c.Name, string(c.CurrentStatus), string(c.TargetStatus), c.IsManaged, nullDecimal(c.BudgetLimit),
		c.SpendToday, nullInt(c.StockDaysLeft), nullInt(c.StockDaysMin), c.ScheduleEnabled,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: name %q", ErrConflict, c.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}
	return nil
}

// UpdateCampaign modifies an existing campaign
func (s *PostgresStore) UpdateCampaign(ctx context.Context, c *Campaign) error {
	if _, err := uuid.Parse(c.ID); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE campaigns
		SET name = $1, current_status = $2, target_status = $3, is_managed = $4, budget_limit = $5,
			spend_today = $6, stock_days_left = $7, stock_days_min = $8, schedule_enabled = $9,
			updated_at = NOW()
		WHERE id = $10
		RETURNING created_at, updated_at
	`, c.Name, string(c.CurrentStatus), string(c.TargetStatus), c.IsManaged, nullDecimal(c.BudgetLimit),
		c.SpendToday, nullInt(c.StockDaysLeft), nullInt(c.StockDaysMin), c.ScheduleEnabled, c.ID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: name %q", ErrConflict, c.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

// DeleteCampaign removes a campaign together with its schedule and audit trail
func (s *PostgresStore) DeleteCampaign(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return expectOneRow(result, id)
}

// UpdateTargetStatus sets the target status of a campaign
func (s *PostgresStore) UpdateTargetStatus(ctx context.Context, id string, status rules.Status) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return updateTarget(ctx, s.db, id, status)
}

func updateTarget(ctx context.Context, q queryer, id string, status rules.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: invalid target status %q", ErrValidation, status)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE campaigns SET target_status = $1, updated_at = NOW() WHERE id = $2
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update target status: %w", err)
	}
	return expectOneRow(result, id)
}

// ListSlots returns the schedule of a campaign ordered by day and start time
func (s *PostgresStore) ListSlots(ctx context.Context, campaignID string) ([]rules.ScheduleSlot, error) {
	if _, err := uuid.Parse(campaignID); err != nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day_of_week, start_time, end_time
		FROM campaign_schedules
		WHERE campaign_id = $1
		ORDER BY day_of_week ASC, start_time ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule: %w", err)
	}
	defer rows.Close()

	var slots []rules.ScheduleSlot
	for rows.Next() {
		var slot rules.ScheduleSlot
		if err := rows.Scan(&slot.ID, &slot.DayOfWeek, &slot.StartTime, &slot.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan schedule slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule: %w", err)
	}

	return slots, nil
}

// ReplaceSlots swaps the schedule of a campaign in a single transaction
func (s *PostgresStore) ReplaceSlots(ctx context.Context, campaignID string, slots []rules.ScheduleSlot) ([]rules.ScheduleSlot, error) {
	if _, err := uuid.Parse(campaignID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, campaignID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET schedule_enabled = $1, updated_at = NOW() WHERE id = $2
	`, len(slots) > 0, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle schedule management: %w", err)
	}
	if err := expectOneRow(result, campaignID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_schedules WHERE campaign_id = $1`, campaignID); err != nil {
		return nil, fmt.Errorf("failed to clear schedule: %w", err)
	}

	stored := make([]rules.ScheduleSlot, len(slots))
	for i, slot := range slots {
		slot.ID = uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_schedules (id, campaign_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5)
		`, slot.ID, campaignID, slot.DayOfWeek, slot.StartTime, slot.EndTime); err != nil {
			return nil, fmt.Errorf("failed to insert schedule slot: %w", err)
		}
		stored[i] = slot
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit schedule: %w", err)
	}
	return stored, nil
}

// DeleteSlots removes the schedule and disables schedule management
func (s *PostgresStore) DeleteSlots(ctx context.Context, campaignID string) error {
	_, err := s.ReplaceSlots(ctx, campaignID, nil)
	return err
}

// AppendLog writes one audit entry
func (s *PostgresStore) AppendLog(ctx context.Context, entry *EvaluationLogEntry) error {
	return insertLog(ctx, s.db, entry)
}

func insertLog(ctx context.Context, q queryer, entry *EvaluationLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	payload := "{}"
	if len(entry.Context) > 0 {
		payload = string(entry.Context)
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO rule_evaluation_logs (id, campaign_id, triggered_rule, previous_target, new_target, context)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, entry.ID, entry.CampaignID, entry.TriggeredRule, string(entry.PreviousTarget), string(entry.NewTarget), payload,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation log: %w", err)
	}
	return nil
}

// ListLogs returns one page of the audit trail of a campaign, newest first,
// and the total number of entries
func (s *PostgresStore) ListLogs(ctx context.Context, campaignID string, skip, limit int) ([]*EvaluationLogEntry, int, error) {
	if _, err := uuid.Parse(campaignID); err != nil {
		return nil, 0, nil
	}

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_evaluation_logs WHERE campaign_id = $1`, campaignID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count evaluation logs: %w", err)
	}

	// a NULL limit means no limit
	var pageSize any
	if limit > 0 {
		pageSize = limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, triggered_rule, previous_target, new_target, context, created_at
		FROM rule_evaluation_logs
		WHERE campaign_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, campaignID, pageSize, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list evaluation logs: %w", err)
	}
	defer rows.Close()

	var logs []*EvaluationLogEntry
	for rows.Next() {
		var (
			entry            EvaluationLogEntry
			triggered        sql.NullString
			previous, target string
			payload          []byte
		)
		if err := rows.Scan(&entry.ID, &entry.CampaignID, &triggered, &previous, &target, &payload, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan evaluation log: %w", err)
		}
		if triggered.Valid {
			name := triggered.String
			entry.TriggeredRule = &name
		}
		entry.PreviousTarget = rules.Status(previous)
		entry.NewTarget = rules.Status(target)
		entry.Context = payload
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating evaluation logs: %w", err)
	}

	return logs, total, nil
}

// RecordEvaluation appends the audit entry and optionally moves the target
// status in one transaction
func (s *PostgresStore) RecordEvaluation(ctx context.Context, entry *EvaluationLogEntry, updateTargetStatus bool) error {
	if _, err := uuid.Parse(entry.CampaignID); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, entry.CampaignID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if updateTargetStatus {
		if err := updateTarget(ctx, tx, entry.CampaignID, entry.NewTarget); err != nil {
			return err
		}
	}
	if err := insertLog(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit evaluation: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func expectOneRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
