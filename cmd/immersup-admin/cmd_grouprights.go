package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/immersup/immersup-api/internal/repository"
)

const groupRightsFile = "group_permissions_codenames.json"

var groupRightsPath string

// saveGroupRightsCmd dumps every group's permission codenames, sorted,
// so two exports of the same state produce the same file.
var saveGroupRightsCmd = &cobra.Command{
	Use:   "save-group-rights",
	Short: "Dump group permission codenames to JSON",
	RunE:  runSaveGroupRights,
}

// restoreGroupRightsCmd clears every group's grants and reapplies the
// dump. Missing groups and codenames are reported and skipped.
var restoreGroupRightsCmd = &cobra.Command{
	Use:   "restore-group-rights",
	Short: "Reapply group permissions from the JSON dump",
	RunE:  runRestoreGroupRights,
}

func init() {
	saveGroupRightsCmd.Flags().StringVar(&groupRightsPath, "file", groupRightsFile, "output file")
	restoreGroupRightsCmd.Flags().StringVar(&groupRightsPath, "file", groupRightsFile, "input file")
}

func runSaveGroupRights(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repository.NewGroupRightsRepository(db)
	rights, err := repo.ListGroupsWithPermissions(cmd.Context())
	if err != nil {
		return err
	}

	perms := make(map[string][]string, len(rights))
	for _, gr := range rights {
		perms[gr.Group] = gr.Permissions
	}
	data, err := json.MarshalIndent(perms, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal group rights: %w", err)
	}
	if err := os.WriteFile(groupRightsPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", groupRightsPath, err)
	}
	fmt.Printf("saved %d groups to %s\n", len(perms), groupRightsPath)
	return nil
}

func runRestoreGroupRights(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(groupRightsPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", groupRightsPath, err)
	}
	var perms map[string][]string
	if err := json.Unmarshal(data, &perms); err != nil {
		return fmt.Errorf("parse %s: %w", groupRightsPath, err)
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	repo := repository.NewGroupRightsRepository(db)
	if err := repo.ClearAllGroupPermissions(ctx); err != nil {
		return err
	}

	restored := 0
	for name, codenames := range perms {
		group, err := repo.FindGroupByName(ctx, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "group %s does not exist\n", name)
			continue
		}
		for _, codename := range codenames {
			if err := repo.AddPermissionToGroup(ctx, group.ID, codename); err != nil {
				fmt.Fprintf(os.Stderr, "permission %s does not exist\n", codename)
				continue
			}
			restored++
		}
	}
	fmt.Printf("restored %d grants across %d groups\n", restored, len(perms))
	return nil
}
