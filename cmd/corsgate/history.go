package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/corsgate/pkg/cli"
	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/history"
)

// errNoHistory is returned when neither --db nor policy.history_path is set.
var errNoHistory = errors.New("no history database: set --db or policy.history_path")

type historyOptions struct {
	dbPath string
	limit  int
	format string
}

// historyTable renders history records one per row.
type historyTable []history.Record

func (t historyTable) Header() []string {
	return []string{"TIME", "SOURCE", "RESULT", "REVISION", "ORIGINS", "ERRORS"}
}

func (t historyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		result := "published"
		switch {
		case !r.Success:
			result = "rejected"
		case r.Policy == nil:
			result = "cleared"
		}

		var origins string
		if r.Policy != nil {
			origins = strings.Join(r.Policy.AllowedOrigins, ",")
		}

		errs := make([]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			errs = append(errs, e.Error())
		}

		rows = append(rows, []string{
			r.At.Format(time.RFC3339),
			r.Source,
			result,
			strconv.FormatUint(r.Revision, 10),
			origins,
			strings.Join(errs, "; "),
		})
	}
	return rows
}

func newHistoryCmd() *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded policy changes",
		Long: `Show the most recent policy changes recorded by a running gateway,
newest first. The gateway records changes when policy.history_path is set.

Examples:
  # Last 20 changes
  corsgate history --db /var/lib/corsgate/history.db --limit 20

  # Use the history path from the config file, as CSV
  corsgate history --config /etc/corsgate/config.yaml --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "", "history database (defaults to policy.history_path from the config)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", history.DefaultListLimit, "maximum number of changes to show")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json, csv)")
	return cmd
}

func runHistory(cmd *cobra.Command, opts historyOptions) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(opts.format))
	if err != nil {
		return err
	}
	if opts.limit < 1 {
		return cli.NewConfigError("limit", "must be a positive integer")
	}

	path := opts.dbPath
	if path == "" {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile, config.OSLookup)
		if err != nil {
			return cli.NewConfigError("", err.Error())
		}
		path = cfg.Policy.HistoryPath
	}
	if path == "" {
		return errNoHistory
	}
	if _, err := os.Stat(path); err != nil {
		return cli.NewCommandError("history", err)
	}

	store, err := history.NewSQLiteStore(history.SQLiteConfig{DBPath: path})
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), opts.limit)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	if cli.OutputFormat(opts.format) == cli.FormatJSON {
		return formatter.FormatTo(cmd.OutOrStdout(), records)
	}
	return formatter.FormatTo(cmd.OutOrStdout(), historyTable(records))
}
