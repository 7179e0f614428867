package rules

import "time"

// ScheduleRule pauses campaigns outside of their weekly activity windows.
// It only applies when schedule management is enabled for the campaign.
type ScheduleRule struct{}

func NewScheduleRule() *ScheduleRule { return &ScheduleRule{} }

func (ScheduleRule) Name() string  { return "schedule" }
func (ScheduleRule) Priority() int { return 2 }

func (ScheduleRule) Evaluate(snapshot CampaignSnapshot, slots []ScheduleSlot, now time.Time) (*Decision, error) {
	if !snapshot.ScheduleEnabled {
		return nil, nil
	}

	if len(slots) == 0 {
		return paused("campaign %s has schedule management enabled but no schedule is configured", snapshot.ID), nil
	}

	day := Weekday(now)
	tod := TimeOfDayOf(now)

	matched := false
	for _, slot := range slots {
		if slot.DayOfWeek != day {
			continue
		}
		matched = true
		if slot.ContainsTime(now) {
			return nil, nil
		}
	}

	if !matched {
		return paused("no active slots for today (day of week: %d)", day), nil
	}
	return paused("current time %02d:%02d, day of week %d is outside every active window", tod.Hour(), tod.Minute(), day), nil
}
