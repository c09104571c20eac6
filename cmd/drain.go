package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joblink/joblink-etl/internal/queue"
)

func newDrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Drain both queues once and exit",
		Long: `Runs one full drain: alternating parse and notes passes under the
configured rate limits until both queues are idle or the wall-clock
budget runs out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.sched.DrainAll(cmd.Context()); err != nil {
				return fmt.Errorf("drain: %w", err)
			}
			for _, name := range []queue.Name{queue.Parse, queue.Notes} {
				depth, err := a.queues.Depth(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("queue depth: %w", err)
				}
				a.log.Info("queue drained",
					zap.String("queue", string(name)),
					zap.Int("remaining", depth),
				)
			}
			return nil
		},
	}
	return cmd
}
