package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve one URL synchronously and print the result as JSON",
		Long: `Fetches the URL through the tiered providers, decides company, role
and canonical link, and prints the result. The queues and the system of
record are not touched; this is the debugging path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			decision, outcome, err := a.engine.Process(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			tokens := make([]string, 0, len(decision.AuditTokens))
			for _, t := range decision.AuditTokens {
				tokens = append(tokens, t.Render())
			}
			out, err := json.MarshalIndent(map[string]any{
				"url":       args[0],
				"final_url": outcome.FinalURL,
				"canonical": decision.CanonicalURL,
				"company":   decision.Company,
				"role":      decision.Role,
				"conf":      decision.Confidence,
				"signals":   decision.Signals(),
				"provider":  outcome.Provider,
				"audit":     tokens,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}
