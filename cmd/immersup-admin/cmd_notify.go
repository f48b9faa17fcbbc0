package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/immersup/immersup-api/internal/repository"
	"github.com/immersup/immersup-api/internal/service"
	"github.com/immersup/immersup-api/pkg/config"
	"github.com/immersup/immersup-api/pkg/mailer"
)

// sendNotificationsCmd runs the daily notification sweeps: slot
// reminders, expired attachment nudges and pending account creation
// mails. Meant to be invoked from cron.
var sendNotificationsCmd = &cobra.Command{
	Use:   "send-notifications",
	Short: "Run the daily notification sweeps",
	RunE:  runSendNotifications,
}

func runSendNotifications(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var sender mailer.Sender
	switch cfg.Mail.Backend {
	case "sendgrid":
		sender = mailer.NewSendgridSender(cfg.Mail)
	default:
		sender = mailer.NewConsoleSender(logr)
	}
	queue := mailer.NewQueue(sender, cfg.Mail, logr)
	queue.Start(cmd.Context())
	defer queue.Stop()

	userRepo := repository.NewUserRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	immersionRepo := repository.NewImmersionRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	templateRepo := repository.NewMailTemplateRepository(db)

	settingsSvc, err := service.NewSettingsService(settingsRepo, nil, cfg.Settings.CacheTTL, logr)
	if err != nil {
		return fmt.Errorf("init settings registry: %w", err)
	}
	notificationSvc := service.NewNotificationService(templateRepo, userRepo, queue, nil, cfg.PlatformURL, logr)
	periodSvc := service.NewPeriodService(periodRepo, logr)
	slotSvc := service.NewSlotService(slotRepo, immersionRepo, orgRepo, periodSvc, notificationSvc, settingsSvc, nil, logr)
	recordSvc := service.NewRecordService(recordRepo, immersionRepo, nil, settingsSvc, notificationSvc, nil, logr)

	ctx := cmd.Context()

	reminded, err := slotSvc.SendReminders(ctx, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("slot reminders queued for %d registrants\n", reminded)

	if err := recordSvc.SweepExpiredDocuments(ctx); err != nil {
		return err
	}
	fmt.Println("expired attachment sweep - done")

	pending, err := userRepo.ListPendingCreationEmail(ctx)
	if err != nil {
		return err
	}
	for i := range pending {
		notificationSvc.AccountCreated(ctx, &pending[i])
		if err := userRepo.MarkCreationEmailSent(ctx, pending[i].ID); err != nil {
			return err
		}
	}
	fmt.Printf("account creation mails queued for %d accounts\n", len(pending))
	return nil
}
