package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/immersup/immersup-api/internal/repository"
)

// coreModels maps content type model identifiers to display names.
// Permissions pointing at anything else are stale and get deleted.
var coreModels = map[string]string{
	"immersionuser":         "immersion user",
	"immersionusergroup":    "immersion user group",
	"record":                "record",
	"recorddocument":        "record document",
	"slot":                  "slot",
	"immersion":             "immersion",
	"slotgroupregistration": "slot group registration",
	"course":                "course",
	"period":                "period",
	"establishment":         "establishment",
	"structure":             "structure",
	"highschool":            "high school",
	"canceltype":            "cancel type",
	"mailtemplate":          "mail template",
	"mailtemplatevars":      "mail template vars",
	"generalsettings":       "general settings",
}

// fixCorePermissionsCmd regenerates the "Can <action> <model>" display
// names of core permissions and deletes those whose model no longer
// exists.
var fixCorePermissionsCmd = &cobra.Command{
	Use:   "fix-core-permissions",
	Short: "Regenerate core permission display names",
	RunE:  runFixCorePermissions,
}

func runFixCorePermissions(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	repo := repository.NewGroupRightsRepository(db)
	perms, err := repo.ListCorePermissions(ctx)
	if err != nil {
		return err
	}

	fixed, deleted := 0, 0
	for _, p := range perms {
		model, known := coreModels[p.ContentTypeModel]
		if !known {
			fmt.Printf("%s has no model class : delete\n", p.Codename)
			if err := repo.DeletePermission(ctx, p.ID); err != nil {
				return err
			}
			deleted++
			continue
		}
		action := p.Codename
		if i := strings.Index(action, "_"); i > 0 {
			action = action[:i]
		}
		name := fmt.Sprintf("Can %s %s", action, model)
		if name == p.Name {
			continue
		}
		if err := repo.UpdatePermissionName(ctx, p.ID, name); err != nil {
			return err
		}
		fixed++
	}
	fmt.Printf("fixed %d permission names, deleted %d stale permissions\n", fixed, deleted)
	return nil
}
