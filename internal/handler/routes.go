package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/middleware"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/service"
)

// Services groups everything the router needs.
type Services struct {
	Auth          *service.AuthService
	Users         actorReader
	Authority     *service.AuthorityService
	Slots         *service.SlotService
	Periods       *service.PeriodService
	Registrations *service.RegistrationService
	Records       *service.RecordService
	Organizations *service.OrganizationService
	Settings      *service.SettingsService
	Notifications *service.NotificationService
	Exports       *service.ExportService
	Metrics       *service.MetricsService
	Geo           *GeoHandler
}

// RegisterRoutes mounts every endpoint under the API prefix.
func RegisterRoutes(r *gin.Engine, prefix string, svcs Services) {
	auth := NewAuthHandler(svcs.Auth, svcs.Users)
	slots := NewSlotHandler(svcs.Slots, svcs.Users)
	periods := NewPeriodHandler(svcs.Periods)
	registrations := NewRegistrationHandler(svcs.Registrations, svcs.Exports, svcs.Metrics, svcs.Users)
	records := NewRecordHandler(svcs.Records, svcs.Users)
	users := NewUserHandler(svcs.Authority, svcs.Users)
	schools := NewHighSchoolHandler(svcs.Organizations)
	establishments := NewEstablishmentHandler(svcs.Organizations)
	settings := NewSettingsHandler(svcs.Settings)
	templates := NewMailTemplateHandler(svcs.Notifications)

	managers := []models.UserRole{
		models.RoleOperator,
		models.RoleMasterEstablishmentManager,
		models.RoleEstablishmentManager,
		models.RoleStructureManager,
		models.RoleHighSchoolManager,
	}
	operators := []models.UserRole{models.RoleOperator}

	api := r.Group(prefix)

	api.POST("/auth/login", auth.Login)
	api.POST("/auth/refresh", auth.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(svcs.Auth))

	authed.GET("/auth/me", auth.Me)
	authed.POST("/auth/hijack/:id", auth.Hijack)

	authed.GET("/slots", slots.List)
	authed.GET("/slots/:id", slots.Get)
	authed.POST("/slots", middleware.RequireRoles(managers...), slots.Create)
	authed.PATCH("/slots/:id", middleware.RequireRoles(managers...), slots.Update)
	authed.POST("/slots/:id/publish", middleware.RequireRoles(managers...), slots.Publish)
	authed.POST("/slots/:id/unpublish", middleware.RequireRoles(managers...), slots.Unpublish)
	authed.POST("/slots/:id/cancel", middleware.RequireRoles(managers...), slots.Cancel)

	authed.GET("/periods", periods.List)
	authed.GET("/periods/:id", periods.Get)
	authed.POST("/periods", middleware.RequireRoles(operators...), periods.Create)

	authed.POST("/registrations", registrations.Place)
	authed.POST("/registrations/groups", middleware.RequireRoles(managers...), registrations.PlaceGroup)
	authed.POST("/registrations/:id/cancel", registrations.Cancel)
	authed.POST("/registrations/:id/move", registrations.Move)
	authed.POST("/registrations/:id/attendance", registrations.Attendance)
	authed.GET("/students/:id/registrations", registrations.ListForStudent)
	authed.GET("/students/:id/certificate", registrations.Certificate)

	authed.POST("/records", records.Submit)
	authed.GET("/records/mine", records.Mine)
	authed.GET("/records/awaiting", middleware.RequireRoles(managers...), records.ListAwaiting)
	authed.POST("/records/:id/validate", middleware.RequireRoles(managers...), records.Validate)
	authed.POST("/records/:id/reject", middleware.RequireRoles(managers...), records.Reject)
	authed.POST("/records/:id/duplicates", middleware.RequireRoles(managers...), records.Duplicates)
	authed.POST("/records/:id/documents", records.AttachDocument)

	authed.POST("/users/merge", middleware.RequireRoles(operators...), users.Merge)
	authed.GET("/users/groups/:id", middleware.RequireRoles(operators...), users.GroupMembers)
	authed.GET("/users/me/establishments", users.MyEstablishments)
	authed.GET("/users/me/structures", users.MyStructures)

	authed.GET("/establishments", establishments.List)
	authed.GET("/establishments/:id", establishments.Get)
	authed.GET("/establishments/:id/structures", establishments.Structures)
	authed.POST("/establishments", middleware.RequireRoles(operators...), establishments.Create)
	authed.GET("/structures/:id", establishments.Structure)
	authed.GET("/courses/:id", establishments.Course)

	authed.GET("/highschools", schools.List)
	authed.GET("/highschools/agreed", schools.Agreed)
	authed.GET("/highschools/postbac", schools.Postbac)
	authed.GET("/highschools/:id", schools.Get)
	authed.GET("/highschools/:id/logo", schools.Logo)
	authed.POST("/highschools", middleware.RequireRoles(operators...), schools.Create)
	authed.POST("/highschools/:id/logo", middleware.RequireRoles(operators...), schools.UploadLogo)

	authed.GET("/settings", middleware.RequireRoles(operators...), settings.List)
	authed.GET("/settings/:name", middleware.RequireRoles(operators...), settings.Get)
	authed.PUT("/settings/:name", middleware.RequireRoles(operators...), settings.Set)

	authed.GET("/mailtemplates", middleware.RequireRoles(operators...), templates.List)
	authed.PUT("/mailtemplates/:id", middleware.RequireRoles(operators...), templates.Update)

	// address lookups back the signup forms, before any token exists
	geo := api.Group("", middleware.OptionalJWT(svcs.Auth))
	geo.GET("/geo/departments", svcs.Geo.Departments)
	geo.GET("/geo/departments/:department/cities", svcs.Geo.Cities)
	geo.GET("/geo/departments/:department/zipcodes", svcs.Geo.ZipCodes)

	r.GET("/metrics", gin.WrapH(svcs.Metrics.Handler()))
}
