// Package cmd defines the CLI commands for the joblink executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

type appKeyType struct{}

// newRootCmd builds the root command. The application is wired once in
// PersistentPreRunE and handed to subcommands through the context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "joblink",
		Short: "Resolve job posting URLs to company, role and canonical link",
		Long: `joblink turns a job posting URL into a structured record: the hiring
company, the role title, a tracking-free canonical URL and a confidence
score. It fetches through tiered providers (ATS APIs, direct HTTP, a
rendered-HTML fallback), unwraps aggregator pages to the underlying ATS
posting, and drains its work queues under a rate limit and a wall-clock
budget.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKeyType{}).(*app); ok && a != nil {
				a.close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDrainCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newResolveCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKeyType{}).(*app)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "joblink: %v\n", err)
		os.Exit(1)
	}
}
