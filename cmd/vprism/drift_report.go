package main

import (
	"github.com/spf13/cobra"

	"github.com/wxxb789/vprism-core/internal/quality/drift"
)

func newDriftCmd(flags *globalFlags) *cobra.Command {
	driftCmd := &cobra.Command{
		Use:   "drift",
		Short: "Rolling drift detection against recent price history",
	}

	var market string
	var window int
	var warnThreshold, failThreshold float64

	reportCmd := &cobra.Command{
		Use:   "report [symbol]",
		Short: "Compute drift metrics for one symbol (spec §4.8)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loader := newServiceLoader(flags)
			opts := []drift.Option{drift.WithThresholds(warnThreshold, failThreshold)}

			conn, err := openStorage(ctx, flags)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
				writer, err := newDriftWriter(ctx, conn)
				if err != nil {
					return err
				}
				opts = append(opts, drift.WithWriter(writer))
			}

			detector := drift.New(loader, opts...)

			result, err := detector.Compute(ctx, args[0], market, window)
			if err != nil {
				return err
			}

			rows := make([]*row, 0, len(result.Metrics))
			for _, m := range result.Metrics {
				r := newRow().
					set("symbol", result.Symbol).
					set("market", result.Market).
					set("run_id", result.RunID).
					set("metric", m.Name).
					set("value", m.Value).
					set("status", string(m.Status))
				rows = append(rows, r)
			}
			return renderRows(flags, rows)
		},
	}
	reportCmd.Flags().StringVar(&market, "market", "cn", "market tag")
	reportCmd.Flags().IntVar(&window, "window", 20, "rolling baseline window size")
	reportCmd.Flags().Float64Var(&warnThreshold, "warn-threshold", 2.0, "z-score warn threshold")
	reportCmd.Flags().Float64Var(&failThreshold, "fail-threshold", 3.0, "z-score fail threshold")

	driftCmd.AddCommand(reportCmd)
	return driftCmd
}
