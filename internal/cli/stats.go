package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/umbusk1/bibliofep/internal/stats"
)

// topRows caps the bar charts printed by the stats command.
const topRows = 10

func newStatsCommand(e *env) *cobra.Command {
	var (
		ff     filterFlags
		asJSON bool
		fresh  bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			a, err := e.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			var st *stats.Stats
			if fresh {
				st, err = a.StatsStore.Compute(cmd.Context(), f)
			} else {
				st, _, err = a.Stats.Get(cmd.Context(), f)
			}
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(e.out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			writeStats(e, st)
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw payload")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "bypass the cache")
	return cmd
}

func writeStats(e *env, st *stats.Stats) {
	g := st.General
	first, last := "-", "-"
	if g.FirstConversation != nil {
		first = g.FirstConversation.Format("2006-01-02 15:04")
	}
	if g.LastConversation != nil {
		last = g.LastConversation.Format("2006-01-02 15:04")
	}
	fmt.Fprintln(e.out, titleStyle.Render("Resumen"))
	writePairs(e.out, []pair{
		{"conversations", strconv.FormatInt(g.TotalConversations, 10)},
		{"messages", strconv.FormatInt(g.TotalMessages, 10)},
		{"avg messages", fmt.Sprintf("%.2f", g.AvgMessagesPerConversation)},
		{"first", first},
		{"last", last},
	})

	if len(st.Countries) > 0 {
		fmt.Fprintln(e.out, "\n"+titleStyle.Render("Países"))
		rows, counts := make([]pair, 0, topRows), make([]int64, 0, topRows)
		for _, c := range st.Countries[:min(topRows, len(st.Countries))] {
			rows = append(rows, pair{label: c.Country, value: strconv.FormatInt(c.Count, 10)})
			counts = append(counts, c.Count)
		}
		writeBars(e.out, rows, counts)
	}
	if len(st.Topics) > 0 {
		fmt.Fprintln(e.out, "\n"+titleStyle.Render("Temas"))
		rows, counts := make([]pair, 0, topRows), make([]int64, 0, topRows)
		for _, t := range st.Topics[:min(topRows, len(st.Topics))] {
			rows = append(rows, pair{label: t.TopicName, value: strconv.FormatInt(t.Count, 10)})
			counts = append(counts, t.Count)
		}
		writeBars(e.out, rows, counts)
	}
}
