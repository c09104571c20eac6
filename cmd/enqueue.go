package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joblink/joblink-etl/internal/records"
)

func newEnqueueCmd() *cobra.Command {
	var ownerKey, rowID string

	cmd := &cobra.Command{
		Use:   "enqueue <url>",
		Short: "Queue one job posting URL for parsing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			key := records.Key{Owner: ownerKey, Row: rowID}
			added, err := a.sched.EnqueueParse(cmd.Context(), key, args[0])
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			a.log.Info("enqueue finished",
				zap.String("url", args[0]),
				zap.Bool("added", added),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerKey, "owner", "cli", "owner key of the tracked row")
	cmd.Flags().StringVar(&rowID, "row", "", "row id of the tracked row")
	if err := cmd.MarkFlagRequired("row"); err != nil {
		panic(err)
	}
	return cmd
}
