package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/threadstore/internal/metrics"
	"github.com/dotcommander/threadstore/internal/output"
	"github.com/dotcommander/threadstore/pkg/kv"
)

func newSweepCmd(rec *metrics.Recorder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired and corrupt entries now",
		Long: "Run one eviction cycle synchronously. With --metrics-file the run's counters are written " +
			"in Prometheus text format, suitable for node_exporter's textfile collector.",
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsFile, _ := cmd.Flags().GetString("metrics-file")

			var removed int
			if err := withStore(func(s kv.Store) error {
				n, err := s.Sweep()
				removed = n
				return err
			}); err != nil {
				return err
			}

			if metricsFile != "" {
				if err := rec.WriteTextfile(metricsFile); err != nil {
					return cmdErr(err)
				}
			}

			type resp struct {
				Removed     int    `json:"removed"`
				MetricsFile string `json:"metrics_file,omitempty"`
			}
			return output.PrintSuccess(resp{Removed: removed, MetricsFile: metricsFile})
		},
	}

	cmd.Flags().String("metrics-file", "", "Write Prometheus text-format counters to this file")
	return cmd
}
