package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dotcommander/threadstore/internal/app"
	"github.com/dotcommander/threadstore/internal/output"
	"github.com/dotcommander/threadstore/pkg/kv"
)

func newPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the resolved storage location and where it came from",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")

			backend, err := app.ResolveBackend(slog.Default())
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Backend       kv.Backend `json:"backend"`
				BackendSource string     `json:"backend_source"`
				Path          string     `json:"path,omitempty"`
				Source        string     `json:"source,omitempty"`
				Key           string     `json:"key,omitempty"`
				KeyPath       string     `json:"key_path,omitempty"`
			}
			r := resp{Backend: backend.Value, BackendSource: backend.Source, Key: key}

			switch backend.Value {
			case kv.BackendFile:
				dir, err := app.ResolveStorageDir()
				if err != nil {
					return cmdErr(err)
				}
				r.Path, r.Source = dir.Value, dir.Source
				if key != "" {
					r.KeyPath = kv.KeyPath(dir.Value, key)
				}
			case kv.BackendSQLite:
				db, err := app.ResolveSQLitePath()
				if err != nil {
					return cmdErr(err)
				}
				r.Path, r.Source = db.Value, db.Source
			}
			return output.PrintSuccess(r)
		},
	}

	cmd.Flags().StringP("key", "k", "", "Also show the file that holds this key (file backend)")
	return cmd
}
