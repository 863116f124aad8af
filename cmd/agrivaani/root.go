package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agrivaani/agrivaani/flows"
	"github.com/agrivaani/agrivaani/pkg/flow"
)

var rootCmd = &cobra.Command{
	Use:   "agrivaani",
	Short: "AgriVaani is a guided-conversation assistant for Indian farmer schemes",
	Long: `AgriVaani walks farmers through scheme applications and eligibility
questionnaires over WhatsApp, voice calls, the web API or the terminal.
Flows are declarative YAML graphs; answers route through an external
classifier where needed.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("flows", "", "Directory of flow YAML files (default: bundled flows)")
}

// loadRegistry builds the flow registry from --flows or the bundled set.
func loadRegistry(cmd *cobra.Command) (*flow.Registry, error) {
	dir, _ := cmd.Flags().GetString("flows")
	if dir == "" {
		return flow.NewFromFS(flows.FS)
	}
	return flow.NewFromFS(os.DirFS(dir))
}
