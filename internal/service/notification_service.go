package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/mailer"
)

type mailTemplateRepository interface {
	GetByCode(ctx context.Context, code string) (*models.MailTemplate, error)
	List(ctx context.Context) ([]models.MailTemplate, error)
	Update(ctx context.Context, tpl *models.MailTemplate) error
	Vars(ctx context.Context, templateID string) ([]models.MailTemplateVar, error)
}

type recipientReader interface {
	FindByID(ctx context.Context, id string) (*models.ImmersionUser, error)
}

type mailEnqueuer interface {
	Enqueue(msg mailer.Message) error
}

type mailMetrics interface {
	ObserveMailEnqueued()
	ObserveMailDropped()
}

// NotificationService maps domain events to mail templates and renders
// them against a closed variable vocabulary. Template bodies referencing
// a variable outside their declared set are refused, both at edit time
// and again before every render. Per-message failures are logged and
// never surface to the emitting transaction.
type NotificationService struct {
	templates   mailTemplateRepository
	users       recipientReader
	queue       mailEnqueuer
	metrics     mailMetrics
	platformURL string
	logger      *zap.Logger
}

// NewNotificationService constructs NotificationService. metrics may be nil.
func NewNotificationService(templates mailTemplateRepository, users recipientReader, queue mailEnqueuer, metrics mailMetrics, platformURL string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{templates: templates, users: users, queue: queue, metrics: metrics, platformURL: platformURL, logger: logger}
}

// templateVars extracts the dotted variable paths a template body
// references, by walking its parse tree.
func templateVars(body string) ([]string, error) {
	tpl, err := template.New("check").Parse(body)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, t := range tpl.Templates() {
		if t.Tree != nil && t.Tree.Root != nil {
			collectVars(t.Tree.Root, seen)
		}
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars, nil
}

func collectVars(node parse.Node, seen map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectVars(child, seen)
		}
	case *parse.ActionNode:
		collectPipeVars(n.Pipe, seen)
	case *parse.IfNode:
		collectPipeVars(n.Pipe, seen)
		collectVars(n.List, seen)
		if n.ElseList != nil {
			collectVars(n.ElseList, seen)
		}
	case *parse.RangeNode:
		collectPipeVars(n.Pipe, seen)
		collectVars(n.List, seen)
		if n.ElseList != nil {
			collectVars(n.ElseList, seen)
		}
	case *parse.WithNode:
		collectPipeVars(n.Pipe, seen)
		collectVars(n.List, seen)
		if n.ElseList != nil {
			collectVars(n.ElseList, seen)
		}
	}
}

func collectPipeVars(pipe *parse.PipeNode, seen map[string]struct{}) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				seen[strings.Join(a.Ident, ".")] = struct{}{}
			case *parse.ChainNode:
				if field, ok := a.Node.(*parse.FieldNode); ok {
					seen[strings.Join(append(field.Ident, a.Field...), ".")] = struct{}{}
				}
			case *parse.PipeNode:
				collectPipeVars(a, seen)
			}
		}
	}
}

// varAllowed matches a referenced path against the declared set. A
// declared `creneau.*` admits every path under `creneau`.
func varAllowed(path string, allowed map[string]struct{}) bool {
	if _, ok := allowed[path]; ok {
		return true
	}
	for prefix := path; ; {
		i := strings.LastIndex(prefix, ".")
		if i < 0 {
			return false
		}
		prefix = prefix[:i]
		if _, ok := allowed[prefix+".*"]; ok {
			return true
		}
	}
}

// checkTemplate verifies subject and body against the template's
// declared variables.
func (s *NotificationService) checkTemplate(ctx context.Context, tpl *models.MailTemplate) error {
	declared, err := s.templates.Vars(ctx, tpl.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template vars")
	}
	allowed := make(map[string]struct{}, len(declared))
	for _, v := range declared {
		allowed[v.Code] = struct{}{}
	}
	for _, text := range []string{tpl.Subject, tpl.Body} {
		refs, err := templateVars(text)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("template %s does not parse: %v", tpl.Code, err))
		}
		for _, ref := range refs {
			if !varAllowed(ref, allowed) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("template %s references undeclared variable %q", tpl.Code, ref))
			}
		}
	}
	return nil
}

// UpdateTemplate saves an edited template after the vocabulary check.
func (s *NotificationService) UpdateTemplate(ctx context.Context, tpl *models.MailTemplate) error {
	if err := s.checkTemplate(ctx, tpl); err != nil {
		return err
	}
	if err := s.templates.Update(ctx, tpl); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save template")
	}
	return nil
}

// ListTemplates returns every template.
func (s *NotificationService) ListTemplates(ctx context.Context) ([]models.MailTemplate, error) {
	templates, err := s.templates.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return templates, nil
}

// send resolves, re-checks, renders and enqueues one message. Every
// failure path logs and returns.
func (s *NotificationService) send(ctx context.Context, code string, to mailer.Address, data map[string]interface{}) {
	tpl, err := s.templates.GetByCode(ctx, code)
	if err == sql.ErrNoRows {
		s.logger.Warn("no active template for event", zap.String("code", code))
		return
	}
	if err != nil {
		s.logger.Error("template load failed", zap.String("code", code), zap.Error(err))
		return
	}
	if err := s.checkTemplate(ctx, tpl); err != nil {
		s.logger.Error("template refused at render time", zap.String("code", code), zap.Error(err))
		return
	}

	data["urlPlateforme"] = s.platformURL
	subject, err := renderText(tpl.Subject, data)
	if err != nil {
		s.logger.Error("subject render failed", zap.String("code", code), zap.Error(err))
		return
	}
	body, err := renderText(tpl.Body, data)
	if err != nil {
		s.logger.Error("body render failed", zap.String("code", code), zap.Error(err))
		return
	}

	msg := mailer.Message{To: []mailer.Address{to}, Subject: subject, Body: body}
	if err := s.queue.Enqueue(msg); err != nil {
		s.logger.Error("mail enqueue failed", zap.String("code", code), zap.String("to", to.Email), zap.Error(err))
		if s.metrics != nil {
			s.metrics.ObserveMailDropped()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveMailEnqueued()
	}
}

func renderText(text string, data map[string]interface{}) (string, error) {
	tpl, err := template.New("mail").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *NotificationService) recipient(ctx context.Context, userID string) (*models.ImmersionUser, bool) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Error("notification recipient load failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return user, true
}

func address(u *models.ImmersionUser) mailer.Address {
	return mailer.Address{Name: u.FirstName + " " + u.LastName, Email: u.Email}
}

func slotData(slot *models.Slot) map[string]interface{} {
	data := map[string]interface{}{
		"libelle": "",
		"date":    slot.Date.Format("02/01/2006"),
		"debut":   slot.StartTime,
		"fin":     slot.EndTime,
	}
	if slot.Campus != nil {
		data["campus"] = map[string]interface{}{"ville": *slot.Campus}
	}
	if slot.Building != nil {
		data["batiment"] = map[string]interface{}{"lien": *slot.Building}
	}
	return data
}

func userData(u *models.ImmersionUser) map[string]interface{} {
	return map[string]interface{}{
		"nom":    u.LastName,
		"prenom": u.FirstName,
		"destinataire": map[string]interface{}{
			"estIndividu": true,
			"estCohorte":  false,
		},
	}
}

// RegistrationConfirmed emits the confirmation mail after a placement
// commits.
func (s *NotificationService) RegistrationConfirmed(ctx context.Context, immersion *models.Immersion, slot *models.Slot) {
	user, ok := s.recipient(ctx, immersion.StudentID)
	if !ok {
		return
	}
	data := userData(user)
	data["creneau"] = slotData(slot)
	s.send(ctx, models.TemplateImmersionConfirm, address(user), data)
}

// RegistrationCancelled emits the cancellation mail. Speakers receive
// their own variant.
func (s *NotificationService) RegistrationCancelled(ctx context.Context, immersion *models.Immersion, slot *models.Slot) {
	user, ok := s.recipient(ctx, immersion.StudentID)
	if !ok {
		return
	}
	code := models.TemplateImmersionCancel
	if user.Role == models.RoleSpeaker {
		code = models.TemplateImmersionCancelInt
	}
	data := userData(user)
	data["creneau"] = slotData(slot)
	s.send(ctx, code, address(user), data)
}

// RegistrationsAutoCancelled notifies a student whose registrations were
// cancelled by the system.
func (s *NotificationService) RegistrationsAutoCancelled(ctx context.Context, studentID string, immersions []models.Immersion) {
	user, ok := s.recipient(ctx, studentID)
	if !ok {
		return
	}
	data := userData(user)
	data["nbAnnulations"] = len(immersions)
	s.send(ctx, models.TemplateImmersionCancel, address(user), data)
}

// SlotModified notifies every active registrant of an edited slot.
func (s *NotificationService) SlotModified(ctx context.Context, slot *models.Slot, studentIDs []string) {
	s.notifySlotAudience(ctx, slot, models.TemplateSlotModified, studentIDs)
}

// SlotCancelled notifies the students cancelled by a slot cascade.
func (s *NotificationService) SlotCancelled(ctx context.Context, slot *models.Slot, studentIDs []string) {
	s.notifySlotAudience(ctx, slot, models.TemplateImmersionCancel, studentIDs)
}

// SlotReminder mails the registrants of an upcoming slot. Speakers
// receive their own variant.
func (s *NotificationService) SlotReminder(ctx context.Context, slot *models.Slot, studentIDs []string) {
	for _, id := range studentIDs {
		user, ok := s.recipient(ctx, id)
		if !ok {
			continue
		}
		code := models.TemplateImmersionReminder
		if user.Role == models.RoleSpeaker {
			code = models.TemplateImmersionReminderInt
		}
		data := userData(user)
		data["creneau"] = slotData(slot)
		s.send(ctx, code, address(user), data)
	}
}

// AccountCreated sends the account creation mail to a new holder.
func (s *NotificationService) AccountCreated(ctx context.Context, user *models.ImmersionUser) {
	s.send(ctx, models.TemplateMinorAccountCreate, address(user), userData(user))
}

func (s *NotificationService) notifySlotAudience(ctx context.Context, slot *models.Slot, code string, studentIDs []string) {
	for _, id := range studentIDs {
		user, ok := s.recipient(ctx, id)
		if !ok {
			continue
		}
		data := userData(user)
		data["creneau"] = slotData(slot)
		s.send(ctx, code, address(user), data)
	}
}

// AccountsMerged notifies every account linked into a merge group.
func (s *NotificationService) AccountsMerged(ctx context.Context, memberIDs []string) {
	for _, id := range memberIDs {
		user, ok := s.recipient(ctx, id)
		if !ok {
			continue
		}
		s.send(ctx, models.TemplateAccountMerge, address(user), userData(user))
	}
}

// RecordValidated notifies the dossier holder of a validation.
func (s *NotificationService) RecordValidated(ctx context.Context, record *models.StudentRecord) {
	user, ok := s.recipient(ctx, record.UserID)
	if !ok {
		return
	}
	s.send(ctx, models.TemplateRecordValidated, address(user), userData(user))
}

// RecordRejected notifies the dossier holder of a rejection.
func (s *NotificationService) RecordRejected(ctx context.Context, record *models.StudentRecord) {
	user, ok := s.recipient(ctx, record.UserID)
	if !ok {
		return
	}
	s.send(ctx, models.TemplateRecordRejected, address(user), userData(user))
}

// DocumentRenewalDue nudges a holder whose attachment expired.
func (s *NotificationService) DocumentRenewalDue(ctx context.Context, userID string, doc *models.RecordDocument) {
	user, ok := s.recipient(ctx, userID)
	if !ok {
		return
	}
	data := userData(user)
	data["piece"] = map[string]interface{}{"libelle": doc.Label}
	s.send(ctx, models.TemplateDocumentUploadNudge, address(user), data)
}
