package models

import "time"

// HighSchoolLevel identifies a pupil's grade, used for slot audience filters.
type HighSchoolLevel string

// Known high school levels.
const (
	LevelSeconde   HighSchoolLevel = "SECONDE"
	LevelPremiere  HighSchoolLevel = "PREMIERE"
	LevelTerminale HighSchoolLevel = "TERMINALE"
	LevelPostBac   HighSchoolLevel = "POST-BAC"
)

// HighSchool is an independent organization whose pupils attend immersions.
type HighSchool struct {
	ID                        string     `db:"id" json:"id"`
	Label                     string     `db:"label" json:"label"`
	Country                   string     `db:"country" json:"country"`
	Address                   string     `db:"address" json:"address"`
	Department                string     `db:"department" json:"department"`
	City                      string     `db:"city" json:"city"`
	ZipCode                   string     `db:"zip_code" json:"zip_code"`
	Email                     string     `db:"email" json:"email"`
	HeadTeacherName           string     `db:"head_teacher_name" json:"head_teacher_name"`
	WithConvention            bool       `db:"with_convention" json:"with_convention"`
	ConventionStartDate       *time.Time `db:"convention_start_date" json:"convention_start_date,omitempty"`
	ConventionEndDate         *time.Time `db:"convention_end_date" json:"convention_end_date,omitempty"`
	AllowIndividualImmersions bool       `db:"allow_individual_immersions" json:"allow_individual_immersions"`
	PostbacImmersion          bool       `db:"postbac_immersion" json:"postbac_immersion"`
	MailingList               *string    `db:"mailing_list" json:"mailing_list,omitempty"`
	LogoPath                  *string    `db:"logo_path" json:"logo_path,omitempty"`
	SignaturePath             *string    `db:"signature_path" json:"signature_path,omitempty"`
	Active                    bool       `db:"active" json:"active"`
	CreatedAt                 time.Time  `db:"created_at" json:"created_at"`
}

// HighSchoolFilter captures list filters.
type HighSchoolFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
