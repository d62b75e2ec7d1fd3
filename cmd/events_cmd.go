package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

type worldEntry struct {
	ID   int16  `json:"id"`
	Name string `json:"name"`
}

type catalog struct {
	Events []events.Name `json:"events"`
	Worlds []worldEntry  `json:"worlds"`
}

func eventsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the event names and worlds usable in a subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := catalog{Events: events.Names()}
			for _, w := range events.Worlds() {
				c.Worlds = append(c.Worlds, worldEntry{ID: int16(w), Name: w.String()})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "EVENT")
			for _, name := range c.Events {
				fmt.Fprintln(tw, name)
			}
			fmt.Fprintf(tw, "GainExperience_experience_id_<id>\n\n")
			fmt.Fprintln(tw, "WORLD\tID")
			for _, w := range c.Worlds {
				fmt.Fprintf(tw, "%s\t%d\n", w.Name, w.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
