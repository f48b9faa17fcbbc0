package models

import "time"

// ValidationState is the record validation lifecycle.
type ValidationState int

// Record validation states. The numeric values are part of the
// persisted contract and never reorder.
const (
	RecordToComplete   ValidationState = 0
	RecordToValidate   ValidationState = 1
	RecordValidated    ValidationState = 2
	RecordRejected     ValidationState = 3
	RecordToRevalidate ValidationState = 4
	RecordInitialized  ValidationState = 5
)

func (s ValidationState) String() string {
	switch s {
	case RecordToComplete:
		return "TO_COMPLETE"
	case RecordToValidate:
		return "TO_VALIDATE"
	case RecordValidated:
		return "VALIDATED"
	case RecordRejected:
		return "REJECTED"
	case RecordToRevalidate:
		return "TO_REVALIDATE"
	case RecordInitialized:
		return "INITIALIZED"
	}
	return "UNKNOWN"
}

// BachelorType of a pupil's diploma track.
type BachelorType int

// Bachelor types.
const (
	BachelorGeneral       BachelorType = 1
	BachelorTechnological BachelorType = 2
	BachelorProfessional  BachelorType = 3
)

// RecordKind discriminates pupil and visitor dossiers.
type RecordKind string

// Record kinds.
const (
	RecordKindHighSchool RecordKind = "HIGHSCHOOL"
	RecordKindVisitor    RecordKind = "VISITOR"
)

// StudentRecord is a pupil's or visitor's dossier. Pupil dossiers carry
// the high-school specific fields; visitor dossiers leave them empty.
type StudentRecord struct {
	ID               string          `db:"id" json:"id"`
	Kind             RecordKind      `db:"kind" json:"kind"`
	UserID           string          `db:"user_id" json:"user_id"`
	HighSchoolID     *string         `db:"highschool_id" json:"highschool_id,omitempty"`
	BirthDate        time.Time       `db:"birth_date" json:"birth_date"`
	Phone            string          `db:"phone" json:"phone"`
	Level            HighSchoolLevel `db:"level" json:"level"`
	ClassName        string          `db:"class_name" json:"class_name"`
	BachelorType     *BachelorType   `db:"bachelor_type" json:"bachelor_type,omitempty"`
	BachelorMention  *string         `db:"bachelor_mention" json:"bachelor_mention,omitempty"`
	Validation       ValidationState `db:"validation" json:"validation"`
	ValidationDate   *time.Time      `db:"validation_date" json:"validation_date,omitempty"`
	RejectedDate     *time.Time      `db:"rejected_date" json:"rejected_date,omitempty"`
	Duplicates       *string         `db:"duplicates" json:"duplicates,omitempty"`
	DisclosureAgreed bool            `db:"disclosure_agreed" json:"disclosure_agreed"`
	Version          int             `db:"version" json:"version"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// IsValid reports whether the record currently authorizes registration.
func (r StudentRecord) IsValid() bool {
	return r.Validation == RecordValidated
}

// RecordDocument is an attachment on a record.
type RecordDocument struct {
	ID               string     `db:"id" json:"id"`
	RecordID         string     `db:"record_id" json:"record_id"`
	Label            string     `db:"label" json:"label"`
	FilePath         string     `db:"file_path" json:"file_path"`
	ExpiryDate       *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	RenewalEmailSent bool       `db:"renewal_email_sent" json:"renewal_email_sent"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
