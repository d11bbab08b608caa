package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/threadstore/internal/app"
	"github.com/dotcommander/threadstore/internal/output"
	"github.com/dotcommander/threadstore/pkg/kv"
)

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a value under a key with an expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")
			value, _ := cmd.Flags().GetString("value")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if key == "" {
				return cmdErr(errors.New("key must not be empty"))
			}
			if ttl < 0 {
				return cmdErr(fmt.Errorf("invalid ttl %s: must be positive", ttl))
			}
			if value == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return cmdErr(fmt.Errorf("failed to read value from stdin: %w", err))
				}
				value = string(b)
			}
			if ttl == 0 {
				cfg, err := app.StoreConfig(slog.Default())
				if err != nil {
					return cmdErr(err)
				}
				ttl = cfg.DefaultTTL
			}

			if err := withStore(func(s kv.Store) error {
				return kv.Setex(s, key, ttl, value)
			}); err != nil {
				return err
			}

			type resp struct {
				Key       string    `json:"key"`
				TTL       string    `json:"ttl"`
				ExpiresAt time.Time `json:"expires_at"`
			}
			return output.PrintSuccess(resp{Key: key, TTL: ttl.String(), ExpiresAt: time.Now().Add(ttl).UTC()})
		},
	}

	cmd.Flags().StringP("key", "k", "", "Entry key (required)")
	cmd.Flags().String("value", "", "Entry value, or - to read it from stdin (required)")
	cmd.Flags().Duration("ttl", 0, "Time to live (e.g. 30m, 3h); default is the configured conversation timeout")

	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read the value for a key",
		Long:  "Read the value for a key. With sliding TTL enabled a hit also extends the entry's expiry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")

			var (
				value string
				found bool
			)
			if err := withStore(func(s kv.Store) error {
				value, found = s.Get(key)
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Key   string `json:"key"`
				Found bool   `json:"found"`
				Value string `json:"value,omitempty"`
			}
			return output.PrintSuccess(resp{Key: key, Found: found, Value: value})
		},
	}

	cmd.Flags().StringP("key", "k", "", "Entry key (required)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")

			if err := withStore(func(s kv.Store) error {
				return s.Delete(key)
			}); err != nil {
				return err
			}

			type resp struct {
				Key     string `json:"key"`
				Deleted bool   `json:"deleted"`
			}
			return output.PrintSuccess(resp{Key: key, Deleted: true})
		},
	}

	cmd.Flags().StringP("key", "k", "", "Entry key (required)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
