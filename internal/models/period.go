package models

import "time"

// RegistrationEndPolicy selects how a period closes its registration window.
type RegistrationEndPolicy string

// Registration end policies.
const (
	PolicyPeriodEnd RegistrationEndPolicy = "PERIOD_END"
	PolicySlotStart RegistrationEndPolicy = "SLOT_START"
)

// Period is a named interval grouping slots and governing registration
// and cancellation rules.
type Period struct {
	ID                     string                `db:"id" json:"id"`
	Label                  string                `db:"label" json:"label"`
	RegistrationStartDate  time.Time             `db:"registration_start_date" json:"registration_start_date"`
	RegistrationEndDate    time.Time             `db:"registration_end_date" json:"registration_end_date"`
	ImmersionStartDate     time.Time             `db:"immersion_start_date" json:"immersion_start_date"`
	ImmersionEndDate       time.Time             `db:"immersion_end_date" json:"immersion_end_date"`
	CancellationLimitHours int                   `db:"cancellation_limit_delay" json:"cancellation_limit_delay"`
	RegistrationEndPolicy  RegistrationEndPolicy `db:"registration_end_date_policy" json:"registration_end_date_policy"`
	YearQuota              int                   `db:"year_nb_authorized_immersion" json:"year_nb_authorized_immersion"`
	EarlyRegistrationSlots int                   `db:"registration_start_date_per_semester" json:"registration_start_date_per_semester"`
	CreatedAt              time.Time             `db:"created_at" json:"created_at"`
}

// Covers reports whether d falls inside the period's immersion window.
func (p Period) Covers(d time.Time) bool {
	day := d.Truncate(24 * time.Hour)
	return !day.Before(p.ImmersionStartDate.Truncate(24*time.Hour)) &&
		!day.After(p.ImmersionEndDate.Truncate(24*time.Hour))
}
