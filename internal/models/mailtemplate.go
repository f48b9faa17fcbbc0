package models

import "time"

// Mail template codes emitted by the registration core.
const (
	TemplateImmersionConfirm     = "IMMERSION_CONFIRM"
	TemplateImmersionReminder    = "IMMERSION_RAPPEL"
	TemplateImmersionReminderInt = "IMMERSION_RAPPEL_INT"
	TemplateImmersionReminderStr = "IMMERSION_RAPPEL_STR"
	TemplateImmersionCancel      = "IMMERSION_ANNUL"
	TemplateImmersionCancelInt   = "IMMERSION_ANNULATION_INT"
	TemplateImmersionCancelStr   = "IMMERSION_ANNULATION_STR"
	TemplateAccountMerge         = "CPT_FUSION"
	TemplateRecordValidated      = "CPT_MIN_VALIDE"
	TemplateRecordRejected       = "CPT_MIN_REJET"
	TemplateMinorAccountCreate   = "CPT_MIN_CREATE"
	TemplateDocumentUploadNudge  = "CPT_DEPOT_PIECE"
	TemplateSlotModified         = "CRENEAU_MODIFY_NOTIF"
	TemplateSlotEvaluation       = "EVALUATION_CRENEAU"
)

// MailTemplate is a named mail body with a closed variable vocabulary.
type MailTemplate struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Label     string    `db:"label" json:"label"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	Active    bool      `db:"active" json:"active"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MailTemplateVar is one legal variable, shared across templates through
// an association table.
type MailTemplateVar struct {
	ID          string `db:"id" json:"id"`
	Code        string `db:"code" json:"code"`
	Description string `db:"description" json:"description"`
}
