package models

import "time"

// AttendanceStatus of a registration.
type AttendanceStatus int

// Attendance statuses.
const (
	AttendanceNotEntered AttendanceStatus = 0
	AttendancePresent    AttendanceStatus = 1
	AttendanceAbsent     AttendanceStatus = 2
)

// CancelType is a labelled cancellation reason. System reasons (e.g. ATT,
// missing document) are reserved for automated cancellations.
type CancelType struct {
	ID     string `db:"id" json:"id"`
	Code   string `db:"code" json:"code"`
	Label  string `db:"label" json:"label"`
	System bool   `db:"system" json:"system"`
	Active bool   `db:"active" json:"active"`
}

// SystemCancelMissingDocument is the reserved code applied when a record
// leaves the Validated state or a slot is cancelled.
const SystemCancelMissingDocument = "ATT"

// Immersion is a registration of one user on one slot.
type Immersion struct {
	ID               string           `db:"id" json:"id"`
	SlotID           string           `db:"slot_id" json:"slot_id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	AttendanceStatus AttendanceStatus `db:"attendance_status" json:"attendance_status"`
	CancellationType *string          `db:"cancellation_type" json:"cancellation_type,omitempty"`
	SurveyEmailSent  bool             `db:"survey_email_sent" json:"survey_email_sent"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Cancelled reports whether the registration no longer consumes a place.
func (i Immersion) Cancelled() bool {
	return i.CancellationType != nil
}

// ImmersionDetail enriches a registration with slot and student context.
type ImmersionDetail struct {
	Immersion
	SlotDate    time.Time `db:"slot_date" json:"slot_date"`
	SlotStart   string    `db:"slot_start" json:"slot_start"`
	SlotEnd     string    `db:"slot_end" json:"slot_end"`
	CourseLabel string    `db:"course_label" json:"course_label"`
	StudentName string    `db:"student_name" json:"student_name"`
}

// GroupRegistration books a cohort on a slot as a unit.
type GroupRegistration struct {
	ID               string    `db:"id" json:"id"`
	SlotID           string    `db:"slot_id" json:"slot_id"`
	HighSchoolID     string    `db:"highschool_id" json:"highschool_id"`
	NbStudents       int       `db:"nb_students" json:"nb_students"`
	NbGuides         int       `db:"nb_guides" json:"nb_guides"`
	Comments         string    `db:"comments" json:"comments"`
	CancellationType *string   `db:"cancellation_type" json:"cancellation_type,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Cancelled reports whether the group booking still holds its places.
func (g GroupRegistration) Cancelled() bool {
	return g.CancellationType != nil
}

// Places returns how many places the booking consumes under BY_PLACES mode.
func (g GroupRegistration) Places() int {
	n := g.NbStudents + g.NbGuides
	if n < 1 {
		return 1
	}
	return n
}

// ImmersionUserGroup links accounts known to be the same person, created
// to resolve duplicate dossiers.
type ImmersionUserGroup struct {
	ID        string    `db:"id" json:"id"`
	Label     string    `db:"label" json:"label"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
