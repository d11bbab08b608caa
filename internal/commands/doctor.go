package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/threadstore/internal/app"
	"github.com/dotcommander/threadstore/internal/output"
	"github.com/dotcommander/threadstore/pkg/kv"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and storage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.StoreConfig(slog.Default())
			if err != nil {
				return cmdErr(err)
			}
			configFile, err := app.SettingsSource()
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Backend     kv.Backend `json:"backend"`
				Location    string     `json:"location,omitempty"`
				ConfigFile  string     `json:"config_file,omitempty"`
				Timeout     string     `json:"timeout"`
				SlidingTTL  bool       `json:"sliding_ttl"`
				LockTimeout string     `json:"lock_timeout"`
				Lock        string     `json:"lock_strategy"`
				StorageOK   bool       `json:"storage_ok"`
				StorageErr  string     `json:"storage_error,omitempty"`
				RoundTripOK bool       `json:"round_trip_ok"`
				Hint        string     `json:"hint,omitempty"`
			}
			r := resp{
				Backend:     cfg.Backend,
				ConfigFile:  configFile,
				Timeout:     cfg.DefaultTTL.String(),
				SlidingTTL:  cfg.SlidingTTL,
				LockTimeout: cfg.LockTimeout.String(),
				Lock:        kv.LockStrategy(),
			}
			switch cfg.Backend {
			case kv.BackendFile:
				r.Location = cfg.Dir
			case kv.BackendSQLite:
				r.Location = cfg.SQLitePath
			}

			err = withCheckStore(func(s kv.Store) error {
				if fs, ok := s.(*kv.FileStore); ok {
					r.Location = fs.Dir()
				}
				key := doctorKey()
				if err := s.SetWithTTL(key, time.Minute, "ok"); err != nil {
					return err
				}
				r.StorageOK = true
				defer func() { _ = s.Delete(key) }()
				v, ok := s.Get(key)
				r.RoundTripOK = ok && v == "ok"
				return nil
			})
			if err != nil {
				r.StorageErr = err.Error()
				r.Hint = "If this is running in a sandboxed environment, set storage_dir to a writable location or use --storage-dir."
			}
			if cfg.Backend == kv.BackendFile && kv.LockStrategy() == "none" {
				r.Hint = "This platform has no advisory file locks; concurrent writers from several processes may interleave."
			}
			return output.PrintSuccess(r)
		},
	}
	return cmd
}

// doctorKey is the scratch key doctor writes and removes.
func doctorKey() string { return fmt.Sprintf("doctor:%d", os.Getpid()) }

// withCheckStore is withStore without printing: doctor reports failures in its
// own response.
func withCheckStore(fn func(s kv.Store) error) error {
	s, err := app.Storage(slog.Default())
	if err != nil {
		return err
	}
	return fn(s)
}
