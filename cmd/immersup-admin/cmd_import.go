package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/immersup/immersup-api/internal/seed"
)

var importGoal string

// initialImportCmd seeds the reference data a fresh database needs:
// settings, cancellation reasons, mail templates and their variables.
// Rows are keyed by name or code, so the command can be re-run.
var initialImportCmd = &cobra.Command{
	Use:   "initial-import",
	Short: "Seed reference data for a deployment goal",
	Long: `Seed the reference data a fresh database needs.

The docker goals additionally create a local superuser account
(admin@immersup.local).`,
	RunE: runInitialImport,
}

func init() {
	initialImportCmd.Flags().StringVarP(&importGoal, "goal", "g", seed.GoalTest,
		"deployment goal: prod, preprod, test, docker-demo or docker-dev")
}

func runInitialImport(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("initial data import for %q\n", importGoal)
	if err := seed.New(db, logr).Run(cmd.Context(), importGoal); err != nil {
		return err
	}
	fmt.Println("initial data import - done")
	return nil
}
