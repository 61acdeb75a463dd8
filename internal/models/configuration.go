package models

import "time"

// EscalationRule defines one step in an alert type's escalation chain.
// DelayMinutes is measured from the previous level (cumulative delays
// are computed by the scheduler, not stored).
type EscalationRule struct {
	Level        int    `json:"level" yaml:"level"`
	DelayMinutes int    `json:"delay_minutes" yaml:"delay_minutes"`
	EscalateTo   string `json:"escalate_to" yaml:"escalate_to"`
	Condition    string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Delay returns the rule's delay as a duration.
func (r EscalationRule) Delay() time.Duration {
	return time.Duration(r.DelayMinutes) * time.Minute
}

// SuppressionRule describes how duplicate alerts are merged.
// Candidates matching an open alert on (source entity type, source
// entity id, alert type) within the window are suppressed.
type SuppressionRule struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	WindowMinutes int  `json:"window_minutes" yaml:"window_minutes"`
}

// Window returns the suppression window as a duration.
func (r SuppressionRule) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

// BusinessHours gates the escalation clock to a daily window in a
// given timezone. Outside the window, escalation delay does not accrue.
type BusinessHours struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	StartHour int    `json:"start_hour" yaml:"start_hour"`
	EndHour   int    `json:"end_hour" yaml:"end_hour"`
	Timezone  string `json:"timezone" yaml:"timezone"`
}

// AlertConfiguration is the per alert-type policy: which channels and
// recipients are notified, how the alert escalates, and how duplicates
// are suppressed. Read-only at runtime.
type AlertConfiguration struct {
	ID          string             `json:"id" yaml:"-"`
	AlertType   string             `json:"alert_type" yaml:"alert_type"`
	Enabled     bool               `json:"enabled" yaml:"enabled"`
	Thresholds  map[string]float64 `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Channels    []Channel          `json:"channels" yaml:"channels"`
	Recipients  []string           `json:"recipients" yaml:"recipients"`
	Escalation  []EscalationRule   `json:"escalation,omitempty" yaml:"escalation,omitempty"`
	Suppression SuppressionRule    `json:"suppression" yaml:"suppression"`
	Hours       BusinessHours      `json:"business_hours" yaml:"business_hours"`
	CreatedAt   time.Time          `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time          `json:"updated_at" yaml:"-"`
}

// RuleForLevel returns the escalation rule for the given level.
func (c *AlertConfiguration) RuleForLevel(level int) (EscalationRule, bool) {
	for _, r := range c.Escalation {
		if r.Level == level {
			return r, true
		}
	}
	return EscalationRule{}, false
}

// MaxLevel returns the highest configured escalation level, or 0 if
// the chain is empty.
func (c *AlertConfiguration) MaxLevel() int {
	max := 0
	for _, r := range c.Escalation {
		if r.Level > max {
			max = r.Level
		}
	}
	return max
}
