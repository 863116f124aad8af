package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate flow definitions",
	Long:  `Loads every flow and checks graph integrity: start nodes, transition targets and classified routes.`,
	Run: func(cmd *cobra.Command, args []string) {
		reg, err := loadRegistry(cmd)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}

		for _, id := range reg.IDs() {
			def, _ := reg.Get(id)
			fmt.Printf("✔ %s (%s): %d nodes, start=%s\n", id, def.Name, len(def.Nodes), def.Start)
		}
		fmt.Println("All flows valid.")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
