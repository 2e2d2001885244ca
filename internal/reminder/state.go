package reminder

import "time"

const stateKey = "memory_monster_update_reminders"

// State is the persisted reminder state. The zero value is the idle state
// with no update known, which is also what resolution resets to.
type State struct {
	UpdateAvailable       bool       `json:"update_available"`
	LatestVersion         string     `json:"latest_version,omitempty"`
	UpdateDetectedAt      *time.Time `json:"update_detected_at,omitempty"`
	LastUpdateCheck       *time.Time `json:"last_update_check,omitempty"`
	ReminderCount         int        `json:"reminder_count"`
	LastReminderAt        *time.Time `json:"last_reminder_at,omitempty"`
	DismissedUntil        *time.Time `json:"dismissed_until,omitempty"`
	UserDismissedUpdate   bool       `json:"user_dismissed_update"`
	IsFirstRun            bool       `json:"is_first_run"`
	OnboardingPromptShown bool       `json:"onboarding_prompt_shown"`
	UpgradePromptShown    bool       `json:"upgrade_prompt_shown"`
}

// DismissDuration is a user-selectable suppression window
type DismissDuration string

// Suppression windows offered to the user. Session dismissals last an hour,
// matching the shortest explicit window.
const (
	DismissHour    DismissDuration = "hour"
	DismissDay     DismissDuration = "day"
	DismissWeek    DismissDuration = "week"
	DismissSession DismissDuration = "session"
)

var dismissWindows = map[DismissDuration]time.Duration{
	DismissHour:    time.Hour,
	DismissDay:     24 * time.Hour,
	DismissWeek:    7 * 24 * time.Hour,
	DismissSession: time.Hour,
}

// Window returns the suppression duration, false for an unknown value.
func (d DismissDuration) Window() (time.Duration, bool) {
	w, ok := dismissWindows[d]
	return w, ok
}

// reminderBackoff is the wait before each successive reminder, indexed by the
// current reminder count. The fourth and all later reminders use the final
// three-day interval.
var reminderBackoff = []time.Duration{
	time.Hour,
	6 * time.Hour,
	24 * time.Hour,
	72 * time.Hour,
}

// backoffFor returns the wait that must elapse before reminder number
// count+1 may be shown.
func backoffFor(count int) time.Duration {
	if count >= len(reminderBackoff) {
		count = len(reminderBackoff) - 1
	}
	if count < 0 {
		count = 0
	}
	return reminderBackoff[count]
}
