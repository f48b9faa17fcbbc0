package models

import (
	"encoding/json"
	"time"
)

// SettingType distinguishes operator-facing and technical entries.
type SettingType string

// Setting types.
const (
	SettingTechnical  SettingType = "TECHNICAL"
	SettingFunctional SettingType = "FUNCTIONAL"
)

// Setting is one keyed configuration entry. Parameters always hold a
// `{type, value, description}` object validated against the settings schema.
type Setting struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"setting" json:"setting"`
	Parameters  json.RawMessage `db:"parameters" json:"parameters"`
	SettingType SettingType     `db:"setting_type" json:"setting_type"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// SettingParameters is the decoded shape of Setting.Parameters.
type SettingParameters struct {
	Type        string      `json:"type"`
	Value       interface{} `json:"value"`
	Description string      `json:"description"`
}

// Recognized setting names used by the registration core.
const (
	SettingHighSchoolWithAgreement       = "ACTIVATE_HIGH_SCHOOL_WITH_AGREEMENT"
	SettingHighSchoolWithoutAgreement    = "ACTIVATE_HIGH_SCHOOL_WITHOUT_AGREEMENT"
	SettingRequestStudentAgreement       = "REQUEST_FOR_STUDENT_AGREEMENT"
	SettingDeleteAttachmentsAtValidation = "DELETE_RECORD_ATTACHMENTS_AT_VALIDATION"
	SettingActivateHijack                = "ACTIVATE_HIJACK"
	SettingActivateMassUpdate            = "ACTIVATE_MASS_UPDATE"
	SettingSocialAccountURL              = "SOCIAL_ACCOUNT_URL"
	SettingNbDaysSlotReminder            = "NB_DAYS_SLOT_REMINDER"
)
