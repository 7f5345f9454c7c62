package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/tarifmanager/internal/schedule"
)

var statusAt string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect and convert schedules",
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Print a stored schedule as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, key, err := openForKey(cmd, args)
		if err != nil {
			return err
		}
		defer a.Close()
		c, err := a.rates.Load(cmd.Context(), key)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"key": key, "encoded": schedule.Encode(c), "config": c})
	},
}

var scheduleStatusCmd = &cobra.Command{
	Use:   "status [key]",
	Short: "Evaluate a stored schedule now or at --at",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, key, err := openForKey(cmd, args)
		if err != nil {
			return err
		}
		defer a.Close()
		at := a.rates.Now()
		if statusAt != "" {
			if at, err = time.Parse(time.RFC3339, statusAt); err != nil {
				return fmt.Errorf("--at: %w", err)
			}
		}
		snap, err := a.rates.Snapshot(cmd.Context(), key, at)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), snap)
	},
}

var scheduleEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Read a JSON schedule on stdin and print its encoded record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var c schedule.Config
		dec := json.NewDecoder(cmd.InOrStdin())
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return fmt.Errorf("decode JSON schedule: %w", err)
		}
		c.Commit()
		fmt.Fprintln(cmd.OutOrStdout(), schedule.Encode(c))
		return nil
	},
}

var scheduleDecodeCmd = &cobra.Command{
	Use:   "decode [encoded]",
	Short: "Print an encoded record (argument or stdin) as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw string
		if len(args) == 1 {
			raw = args[0]
		} else {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			raw = string(b)
		}
		c, err := schedule.Decode(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), c)
	},
}

func init() {
	scheduleStatusCmd.Flags().StringVar(&statusAt, "at", "", "RFC 3339 instant to evaluate at")
	scheduleCmd.AddCommand(scheduleShowCmd, scheduleStatusCmd, scheduleEncodeCmd, scheduleDecodeCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// openForKey builds the app and resolves the schedule key argument, which
// defaults to the first configured schedule.
func openForKey(cmd *cobra.Command, args []string) (*app, string, error) {
	if err := loadConfig(); err != nil {
		return nil, "", err
	}
	a, err := buildApp(cmd.Context())
	if err != nil {
		return nil, "", err
	}
	key := cfg.Schedules[0].Key
	if len(args) == 1 {
		key = args[0]
	}
	return a, key, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
