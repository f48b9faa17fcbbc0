package models

import "time"

// Training belongs either to one or more structures or to a high school,
// never both.
type Training struct {
	ID           string    `db:"id" json:"id"`
	Label        string    `db:"label" json:"label"`
	Active       bool      `db:"active" json:"active"`
	HighSchoolID *string   `db:"highschool_id" json:"highschool_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Course is offered by a (structure, training) or (high school, training)
// pair; labels are unique per owner and training.
type Course struct {
	ID            string     `db:"id" json:"id"`
	Label         string     `db:"label" json:"label"`
	TrainingID    string     `db:"training_id" json:"training_id"`
	StructureID   *string    `db:"structure_id" json:"structure_id,omitempty"`
	HighSchoolID  *string    `db:"highschool_id" json:"highschool_id,omitempty"`
	Published     bool       `db:"published" json:"published"`
	FirstSlotDate *time.Time `db:"first_slot_date" json:"first_slot_date,omitempty"`
	LastSlotDate  *time.Time `db:"last_slot_date" json:"last_slot_date,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// CourseDetail enriches a course with owner labels.
type CourseDetail struct {
	Course
	TrainingLabel   string  `db:"training_label" json:"training_label"`
	StructureLabel  *string `db:"structure_label" json:"structure_label,omitempty"`
	HighSchoolLabel *string `db:"highschool_label" json:"highschool_label,omitempty"`
}
