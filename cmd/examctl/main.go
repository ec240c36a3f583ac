// Command examctl is the operations CLI of the exam portal.
package main

import (
	"context"
	"os"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand shares: the loaded config and its logger.
type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func rootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "examctl",
		Short:         "Operations tool for the proctored exam portal",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			e.cfg = config.Load()
			e.log = logger.Setup(e.cfg.LogLevel, e.cfg.LogFormat)
		},
	}
	root.AddCommand(migrateCmd(e), createAdminCmd(e), seedQuestionsCmd(e))
	return root
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
