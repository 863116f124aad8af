package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agrivaani/agrivaani/internal/adapters/cli"
	"github.com/agrivaani/agrivaani/internal/docgate"
	"github.com/agrivaani/agrivaani/internal/driver"
	"github.com/agrivaani/agrivaani/internal/genai"
	"github.com/agrivaani/agrivaani/internal/recommend"
	"github.com/agrivaani/agrivaani/internal/resolver"
	"github.com/agrivaani/agrivaani/pkg/adapters/memory"
	"github.com/agrivaani/agrivaani/pkg/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a flow interactively in the terminal",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runChat(cmd); err != nil {
			fmt.Printf("Chat error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("flow", "eligibility", "Flow to run")
	chatCmd.Flags().String("language", "english", "Conversation language")
	chatCmd.Flags().String("api-key", os.Getenv("GENAI_API_KEY"), "API key for the AI endpoint")
	chatCmd.Flags().String("genai-base-url", os.Getenv("GENAI_BASE_URL"), "Base URL of an OpenAI-compatible endpoint")
	chatCmd.Flags().String("model", "openai/gpt-oss-120b", "Model for classification, translation and recommendations")
}

func runChat(cmd *cobra.Command) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return fmt.Errorf("loading flows: %w", err)
	}

	sessions := session.NewManager(memory.NewStore())

	driverOpts := []driver.Option{}
	var res *resolver.Resolver
	gate := docgate.New()

	if key := flagString(cmd, "api-key"); key != "" {
		ai := genai.NewClient(genai.Config{
			APIKey:  key,
			BaseURL: flagString(cmd, "genai-base-url"),
			Model:   flagString(cmd, "model"),
		})
		res = resolver.New(ai)
		gate = docgate.New(docgate.WithVerifier(ai))
		driverOpts = append(driverOpts,
			driver.WithTranslator(ai),
			driver.WithHandoff(recommend.New(ai)),
		)
	} else {
		fmt.Println("(no AI api key configured, classified questions take their fallback route)")
		res = resolver.New(nil)
	}

	eng := driver.New(reg, sessions, res, gate, driverOpts...)
	chat := cli.NewChat(eng, flagString(cmd, "flow"), flagString(cmd, "language"), os.Stdin, os.Stdout)
	return chat.Run(cmd.Context())
}
