package rules

import (
	"fmt"
	"time"
)

// ManagementRule keeps campaigns that are not under automatic control exactly
// as they are.
type ManagementRule struct{}

func NewManagementRule() *ManagementRule { return &ManagementRule{} }

func (ManagementRule) Name() string  { return "management_disabled" }
func (ManagementRule) Priority() int { return 1 }

func (ManagementRule) Evaluate(snapshot CampaignSnapshot, _ []ScheduleSlot, _ time.Time) (*Decision, error) {
	if snapshot.IsManaged {
		return nil, nil
	}

	if !snapshot.CurrentStatus.Valid() {
		return nil, fmt.Errorf("campaign %s has invalid current status %q", snapshot.ID, snapshot.CurrentStatus)
	}
	return &Decision{Status: snapshot.CurrentStatus, Details: "automatic management is disabled"}, nil
}
