// Package seed bootstraps the reference data the platform needs before
// its first request: settings, cancellation reasons, mail templates and
// their variable vocabulary. Every insert is keyed by name or code and
// skips existing rows, so running the import twice is safe.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/immersup/immersup-api/internal/models"
)

// Goals accepted by the initial import.
const (
	GoalProd       = "prod"
	GoalPreprod    = "preprod"
	GoalTest       = "test"
	GoalDockerDemo = "docker-demo"
	GoalDockerDev  = "docker-dev"
)

// Seeder writes the initial dataset.
type Seeder struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New constructs a Seeder.
func New(db *sqlx.DB, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{db: db, logger: logger}
}

// Run seeds everything the given goal needs.
func (s *Seeder) Run(ctx context.Context, goal string) error {
	switch goal {
	case GoalProd, GoalPreprod, GoalTest, GoalDockerDemo, GoalDockerDev:
	default:
		return fmt.Errorf("unknown goal %q", goal)
	}

	if err := s.Settings(ctx); err != nil {
		return err
	}
	if err := s.CancelTypes(ctx); err != nil {
		return err
	}
	if err := s.MailTemplates(ctx); err != nil {
		return err
	}
	if goal == GoalDockerDemo || goal == GoalDockerDev {
		if err := s.DemoAccounts(ctx); err != nil {
			return err
		}
	}
	return nil
}

type settingDefault struct {
	name        string
	kind        models.SettingType
	valueType   string
	value       interface{}
	description string
}

var settingDefaults = []settingDefault{
	{models.SettingHighSchoolWithAgreement, models.SettingFunctional, "boolean", true,
		"Ouvre les inscriptions aux lycéens des établissements conventionnés"},
	{models.SettingHighSchoolWithoutAgreement, models.SettingFunctional, "boolean", false,
		"Ouvre les inscriptions aux lycéens des établissements non conventionnés"},
	{models.SettingRequestStudentAgreement, models.SettingFunctional, "boolean", false,
		"Demande l'accord de l'étudiant avant diffusion de ses données"},
	{models.SettingDeleteAttachmentsAtValidation, models.SettingFunctional, "boolean", true,
		"Supprime les justificatifs sans date de validité après validation d'une fiche"},
	{models.SettingActivateHijack, models.SettingTechnical, "boolean", false,
		"Active l'usurpation d'identité pour les utilisateurs non superutilisateurs"},
	{models.SettingActivateMassUpdate, models.SettingTechnical, "boolean", false,
		"Active la mise à jour en masse des créneaux"},
	{models.SettingSocialAccountURL, models.SettingTechnical, "text", "",
		"URL du fournisseur d'identité externe"},
	{models.SettingNbDaysSlotReminder, models.SettingFunctional, "integer", 4,
		"Nombre de jours avant le créneau pour l'envoi du rappel et du lien distant"},
}

// Settings inserts the default configuration entries.
func (s *Seeder) Settings(ctx context.Context) error {
	const query = `INSERT INTO core_generalsettings (id, setting, parameters, setting_type, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (setting) DO NOTHING`
	now := time.Now().UTC()
	for _, def := range settingDefaults {
		params, err := json.Marshal(models.SettingParameters{
			Type:        def.valueType,
			Value:       def.value,
			Description: def.description,
		})
		if err != nil {
			return fmt.Errorf("marshal setting %s: %w", def.name, err)
		}
		if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), def.name, params, def.kind, now); err != nil {
			return fmt.Errorf("seed setting %s: %w", def.name, err)
		}
	}
	s.logger.Info("settings seeded", zap.Int("count", len(settingDefaults)))
	return nil
}

// CancelTypes inserts the cancellation reasons, including the reserved
// system reason applied on missing documents.
func (s *Seeder) CancelTypes(ctx context.Context) error {
	types := []models.CancelType{
		{Code: models.SystemCancelMissingDocument, Label: "Justificatif manquant ou expiré", System: true, Active: true},
		{Code: "EMP", Label: "Empêchement personnel", System: false, Active: true},
		{Code: "MAL", Label: "Maladie", System: false, Active: true},
		{Code: "TRA", Label: "Problème de transport", System: false, Active: true},
		{Code: "ANN", Label: "Créneau annulé par l'établissement", System: true, Active: true},
		{Code: "AUT", Label: "Autre motif", System: false, Active: true},
	}
	const query = `INSERT INTO core_cancel_type (id, code, label, system, active)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (code) DO NOTHING`
	for _, ct := range types {
		if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), ct.Code, ct.Label, ct.System, ct.Active); err != nil {
			return fmt.Errorf("seed cancel type %s: %w", ct.Code, err)
		}
	}
	s.logger.Info("cancel types seeded", zap.Int("count", len(types)))
	return nil
}

// templateVarCodes is the full variable vocabulary. Each template below
// references a subset of it.
var templateVarCodes = map[string]string{
	"urlPlateforme":            "URL de la plateforme",
	"nom":                      "Nom du destinataire",
	"prenom":                   "Prénom du destinataire",
	"destinataire.estIndividu": "Vrai pour une inscription individuelle",
	"destinataire.estCohorte":  "Vrai pour une inscription en cohorte",
	"creneau.*":                "Attributs du créneau (libelle, date, debut, fin, campus, batiment)",
	"nbAnnulations":            "Nombre d'inscriptions annulées",
	"piece.libelle":            "Libellé du justificatif attendu",
	"motifRefus":               "Motif de refus de la fiche",
}

type templateDefault struct {
	code    string
	label   string
	subject string
	body    string
	vars    []string
}

var templateDefaults = []templateDefault{
	{
		code:    models.TemplateImmersionConfirm,
		label:   "Confirmation d'inscription à une immersion",
		subject: "Votre inscription du {{ .creneau.date }}",
		body: "Bonjour {{ .prenom }} {{ .nom }},\n\nVotre inscription au créneau {{ .creneau.libelle }} " +
			"du {{ .creneau.date }} de {{ .creneau.debut }} à {{ .creneau.fin }} est confirmée.\n\n{{ .urlPlateforme }}",
		vars: []string{"urlPlateforme", "nom", "prenom", "destinataire.estIndividu", "destinataire.estCohorte", "creneau.*"},
	},
	{
		code:    models.TemplateImmersionCancel,
		label:   "Annulation d'une immersion",
		subject: "Annulation de votre immersion",
		body:    "Bonjour {{ .prenom }} {{ .nom }},\n\nVotre inscription a été annulée.\n\n{{ .urlPlateforme }}",
		vars:    []string{"urlPlateforme", "nom", "prenom", "destinataire.estIndividu", "destinataire.estCohorte", "creneau.*", "nbAnnulations"},
	},
	{
		code:    models.TemplateImmersionCancelInt,
		label:   "Annulation d'une immersion (intervenant)",
		subject: "Annulation d'une inscription sur votre créneau",
		body:    "Bonjour {{ .prenom }} {{ .nom }},\n\nUne inscription sur votre créneau {{ .creneau.libelle }} a été annulée.",
		vars:    []string{"urlPlateforme", "nom", "prenom", "creneau.*"},
	},
	{
		code:    models.TemplateSlotModified,
		label:   "Modification d'un créneau",
		subject: "Modification du créneau {{ .creneau.libelle }}",
		body: "Bonjour {{ .prenom }} {{ .nom }},\n\nLe créneau {{ .creneau.libelle }} du {{ .creneau.date }} " +
			"auquel vous êtes inscrit a été modifié. Consultez la plateforme : {{ .urlPlateforme }}",
		vars: []string{"urlPlateforme", "nom", "prenom", "creneau.*"},
	},
	{
		code:    models.TemplateRecordValidated,
		label:   "Validation d'une fiche",
		subject: "Votre fiche a été validée",
		body:    "Bonjour {{ .prenom }} {{ .nom }},\n\nVotre fiche a été validée. Vous pouvez maintenant vous inscrire aux immersions.\n\n{{ .urlPlateforme }}",
		vars:    []string{"urlPlateforme", "nom", "prenom"},
	},
	{
		code:    models.TemplateRecordRejected,
		label:   "Refus d'une fiche",
		subject: "Votre fiche a été refusée",
		body:    "Bonjour {{ .prenom }} {{ .nom }},\n\nVotre fiche a été refusée. Connectez-vous pour la compléter : {{ .urlPlateforme }}",
		vars:    []string{"urlPlateforme", "nom", "prenom", "motifRefus"},
	},
	{
		code:    models.TemplateDocumentUploadNudge,
		label:   "Justificatif à renouveler",
		subject: "Un justificatif de votre fiche a expiré",
		body: "Bonjour {{ .prenom }} {{ .nom }},\n\nLe justificatif {{ .piece.libelle }} de votre fiche a expiré. " +
			"Déposez un nouveau document : {{ .urlPlateforme }}",
		vars: []string{"urlPlateforme", "nom", "prenom", "piece.libelle"},
	},
}

// MailTemplates inserts the variable vocabulary, the default templates
// and their associations.
func (s *Seeder) MailTemplates(ctx context.Context) error {
	const varQuery = `INSERT INTO core_mailtemplatevars (id, code, description)
        VALUES ($1, $2, $3)
        ON CONFLICT (code) DO NOTHING`
	for code, description := range templateVarCodes {
		if _, err := s.db.ExecContext(ctx, varQuery, uuid.NewString(), code, description); err != nil {
			return fmt.Errorf("seed template var %s: %w", code, err)
		}
	}

	const tplQuery = `INSERT INTO core_mailtemplate (id, code, label, subject, body, active, updated_at)
        VALUES ($1, $2, $3, $4, $5, TRUE, $6)
        ON CONFLICT (code) DO NOTHING`
	const assocQuery = `INSERT INTO core_mailtemplate_available_vars (mailtemplate_id, mailtemplatevars_id)
        SELECT t.id, v.id FROM core_mailtemplate t, core_mailtemplatevars v
        WHERE t.code = $1 AND v.code = $2
        ON CONFLICT DO NOTHING`
	now := time.Now().UTC()
	for _, def := range templateDefaults {
		if _, err := s.db.ExecContext(ctx, tplQuery, uuid.NewString(), def.code, def.label, def.subject, def.body, now); err != nil {
			return fmt.Errorf("seed template %s: %w", def.code, err)
		}
		for _, varCode := range def.vars {
			if _, err := s.db.ExecContext(ctx, assocQuery, def.code, varCode); err != nil {
				return fmt.Errorf("associate %s with %s: %w", varCode, def.code, err)
			}
		}
	}
	s.logger.Info("mail templates seeded", zap.Int("count", len(templateDefaults)))
	return nil
}

// DemoAccounts creates a local superuser for the docker goals.
func (s *Seeder) DemoAccounts(ctx context.Context) error {
	hash, err := bcrypt.GenerateFromPassword([]byte("immersup"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}
	const query = `INSERT INTO core_immersionuser
        (id, email, password_hash, first_name, last_name, role, superuser, active,
         creation_email_sent, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, TRUE, TRUE, TRUE, $7, $7)
        ON CONFLICT (email) DO NOTHING`
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), "admin@immersup.local", string(hash), "Admin", "ImmerSup", models.RoleOperator, now); err != nil {
		return fmt.Errorf("seed demo superuser: %w", err)
	}
	s.logger.Info("demo accounts seeded")
	return nil
}
