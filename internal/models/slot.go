package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// GroupMode selects how group registrations consume a slot.
type GroupMode string

// Group modes.
const (
	GroupModeOneGroup GroupMode = "ONE_GROUP"
	GroupModeByPlaces GroupMode = "BY_PLACES"
)

// Slot is a concrete datetime with capacity offered by a course.
type Slot struct {
	ID                     string         `db:"id" json:"id"`
	CourseID               string         `db:"course_id" json:"course_id"`
	Campus                 *string        `db:"campus" json:"campus,omitempty"`
	Building               *string        `db:"building" json:"building,omitempty"`
	Room                   *string        `db:"room" json:"room,omitempty"`
	Date                   time.Time      `db:"date" json:"date"`
	StartTime              string         `db:"start_time" json:"start_time"`
	EndTime                string         `db:"end_time" json:"end_time"`
	NPlaces                int            `db:"n_places" json:"n_places"`
	AdditionalInformation  *string        `db:"additional_information" json:"additional_information,omitempty"`
	URL                    *string        `db:"url" json:"url,omitempty"`
	Published              bool           `db:"published" json:"published"`
	Cancelled              bool           `db:"cancelled" json:"cancelled"`
	AllowIndividual        bool           `db:"allow_individual_registrations" json:"allow_individual_registrations"`
	AllowGroup             bool           `db:"allow_group_registrations" json:"allow_group_registrations"`
	GroupMode              GroupMode      `db:"group_mode" json:"group_mode"`
	PublicGroup            bool           `db:"public_group" json:"public_group"`
	AllowedLevels          pq.StringArray `db:"allowed_highschool_levels" json:"allowed_highschool_levels"`
	SavedAllowedLevels     pq.StringArray `db:"saved_allowed_highschool_levels" json:"saved_allowed_highschool_levels"`
	CancellationLimitHours *int           `db:"cancellation_limit_delay" json:"cancellation_limit_delay,omitempty"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// StartDateTime combines date and start time in the slot's local day.
func (s Slot) StartDateTime() (time.Time, error) {
	return combine(s.Date, s.StartTime)
}

// EndDateTime combines date and end time.
func (s Slot) EndDateTime() (time.Time, error) {
	return combine(s.Date, s.EndTime)
}

// LevelAllowed checks a pupil level against the registration-time snapshot
// of the slot's level filter. An empty snapshot means no restriction.
func (s Slot) LevelAllowed(level HighSchoolLevel) bool {
	if len(s.SavedAllowedLevels) == 0 {
		return true
	}
	for _, l := range s.SavedAllowedLevels {
		if HighSchoolLevel(l) == level {
			return true
		}
	}
	return false
}

func combine(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot time %q: %w", clock, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

// SlotDetail enriches a slot with course context and usage counters.
type SlotDetail struct {
	Slot
	CourseLabel   string `db:"course_label" json:"course_label"`
	TrainingLabel string `db:"training_label" json:"training_label"`
	PlacesUsed    int    `db:"places_used" json:"places_used"`
}

// SlotFilter captures list filters for slots.
type SlotFilter struct {
	CourseID   string
	HighSchool string
	Published  *bool
	Cancelled  *bool
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
