package models

import "time"

// Establishment is the highest organization level. It owns structures,
// which in turn carry trainings and courses.
type Establishment struct {
	ID                   string    `db:"id" json:"id"`
	Code                 string    `db:"code" json:"code"`
	Label                string    `db:"label" json:"label"`
	ShortLabel           string    `db:"short_label" json:"short_label"`
	Address              string    `db:"address" json:"address"`
	Department           string    `db:"department" json:"department"`
	City                 string    `db:"city" json:"city"`
	ZipCode              string    `db:"zip_code" json:"zip_code"`
	Email                string    `db:"email" json:"email"`
	Active               bool      `db:"active" json:"active"`
	Master               bool      `db:"master" json:"master"`
	DisabilityNotify     bool      `db:"disability_notify" json:"disability_notify"`
	LogoPath             *string   `db:"logo_path" json:"logo_path,omitempty"`
	SignaturePath        *string   `db:"signature_path" json:"signature_path,omitempty"`
	DataSourcePlugin     *string   `db:"data_source_plugin" json:"data_source_plugin,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Structure belongs to one establishment and carries referent users.
type Structure struct {
	ID              string    `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	Label           string    `db:"label" json:"label"`
	MailingList     *string   `db:"mailing_list" json:"mailing_list,omitempty"`
	Active          bool      `db:"active" json:"active"`
	EstablishmentID string    `db:"establishment_id" json:"establishment_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
