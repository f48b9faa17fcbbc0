package models

// PermissionGroup is a named bundle of permissions assigned to roles.
type PermissionGroup struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Permission is one codename-addressed right. ContentTypeApp and
// ContentTypeModel locate the owning model for name regeneration.
type Permission struct {
	ID               string `db:"id" json:"id"`
	Codename         string `db:"codename" json:"codename"`
	Name             string `db:"name" json:"name"`
	ContentTypeApp   string `db:"content_type_app" json:"content_type_app"`
	ContentTypeModel string `db:"content_type_model" json:"content_type_model"`
}
