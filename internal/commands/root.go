package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/threadstore/internal/app"
	"github.com/dotcommander/threadstore/internal/metrics"
	"github.com/dotcommander/threadstore/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	defer app.ResetStorage()

	err := newRootCmd(version).Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}

func newRootCmd(version string) *cobra.Command {
	rec := metrics.New()

	root := &cobra.Command{
		Use:           "threadstore",
		Short:         "Persistent key/value storage for conversation threads",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				// A read-only home still works with env or flag configuration.
				slog.Warn("could not create config directory", "error", err)
			}

			// Wire --backend and --storage-dir into the app-level resolver.
			backend, _ := cmd.Flags().GetString("backend")
			storageDir, _ := cmd.Flags().GetString("storage-dir")
			app.SetOverrides(app.Overrides{Backend: backend, StorageDir: storageDir})
			app.SetRecorder(rec)
			return nil
		},
	}

	root.PersistentFlags().String("backend", "", "Storage backend (file, sqlite, memory)")
	root.PersistentFlags().String("storage-dir", "", "Directory for the file backend (default: $THREADSTORE_STORAGE_DIR)")
	root.Flags().BoolP("version", "v", false, "version for threadstore")

	root.AddCommand(newSetCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newSweepCmd(rec))
	root.AddCommand(newPathCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newSchemaCmd(root))
	return root
}
