package campaigns

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/liamcoop/campaignrules/rules"
)

var (
	// ErrNotFound is returned when a campaign does not exist
	ErrNotFound = errors.New("campaign not found")

	// ErrConflict is returned when a write collides with an existing campaign
	ErrConflict = errors.New("campaign already exists")

	// ErrValidation is returned when campaign or schedule input is malformed
	ErrValidation = errors.New("validation failed")
)

const (
	maxNameLength = 255
	maxStockDays  = 365
	maxSlots      = 7 * 24
)

// ValidateCampaign checks a campaign before it is written
func ValidateCampaign(c *Campaign) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: campaign name cannot be empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(c.Name); n > maxNameLength {
		return fmt.Errorf("%w: campaign name length %d exceeds maximum of %d characters", ErrValidation, n, maxNameLength)
	}

	if !c.CurrentStatus.Valid() {
		return fmt.Errorf("%w: invalid current_status %q", ErrValidation, c.CurrentStatus)
	}
	if !c.TargetStatus.Valid() {
		return fmt.Errorf("%w: invalid target_status %q", ErrValidation, c.TargetStatus)
	}

	if c.BudgetLimit != nil && c.BudgetLimit.IsNegative() {
		return fmt.Errorf("%w: budget_limit cannot be negative", ErrValidation)
	}
	if c.SpendToday.IsNegative() {
		return fmt.Errorf("%w: spend_today cannot be negative", ErrValidation)
	}

	if err := validateStockDays("stock_days_left", c.StockDaysLeft); err != nil {
		return err
	}
	return validateStockDays("stock_days_min", c.StockDaysMin)
}

func validateStockDays(field string, v *int) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > maxStockDays {
		return fmt.Errorf("%w: %s must be between 0 and %d, got %d", ErrValidation, field, maxStockDays, *v)
	}
	return nil
}

// ValidateSlots checks a weekly schedule before it replaces the stored one
func ValidateSlots(slots []rules.ScheduleSlot) error {
	if len(slots) > maxSlots {
		return fmt.Errorf("%w: schedule contains %d slots, maximum allowed is %d", ErrValidation, len(slots), maxSlots)
	}

	for i, slot := range slots {
		if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
			return fmt.Errorf("%w: slot %d: day_of_week must be between 0 and 6, got %d", ErrValidation, i, slot.DayOfWeek)
		}
		if slot.EndTime <= slot.StartTime {
			return fmt.Errorf("%w: slot %d: end_time %s must be after start_time %s", ErrValidation, i, slot.EndTime, slot.StartTime)
		}
	}
	return nil
}
