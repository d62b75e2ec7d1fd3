package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/auraxis/internal/config"
	"github.com/nextlevelbuilder/auraxis/internal/sink"
	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Query the SQLite event archive",
	}
	cmd.AddCommand(archiveCountCmd())
	cmd.AddCommand(archiveRecentCmd())
	return cmd
}

func openArchive() (*sink.SQLiteArchive, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	return sink.OpenSQLite(cfg.Sinks.SQLite.Path)
}

func archiveCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count [event]",
		Short: "Count archived events, optionally of one name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer a.Close()

			var name events.Name
			if len(args) == 1 {
				name = events.Name(args[0])
			}
			n, err := a.Count(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func archiveRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent <character-id>",
		Short: "Show the latest archived events for a character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid character id %q", args[0])
			}
			a, err := openArchive()
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.Recent(cmd.Context(), events.CharacterID(id), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEVENT\tWORLD\tRECEIVED")
			for _, r := range rows {
				world := "-"
				if r.WorldID.Valid {
					world = events.World(r.WorldID.Int64).String()
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Name, world, time.UnixMilli(r.ReceivedAt).UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}
