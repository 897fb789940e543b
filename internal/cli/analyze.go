package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/umbusk1/bibliofep/internal/stats"
	"github.com/umbusk1/bibliofep/internal/topics"
)

// filterFlags mirrors the dashboard's query filters.
type filterFlags struct {
	start, end  string
	month, year int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "range end (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.month, "month", 0, "calendar month (1-12), used with --year")
	cmd.Flags().IntVar(&f.year, "year", 0, "calendar year, used with --month")
}

func (f *filterFlags) filter() (stats.Filter, error) {
	q := url.Values{}
	if f.start != "" {
		q.Set("startDate", f.start)
	}
	if f.end != "" {
		q.Set("endDate", f.end)
	}
	if f.month != 0 {
		q.Set("month", strconv.Itoa(f.month))
	}
	if f.year != 0 {
		q.Set("year", strconv.Itoa(f.year))
	}
	return stats.ParseFilter(q)
}

func newAnalyzeCommand(e *env) *cobra.Command {
	var (
		ff        filterFlags
		ids       []string
		unlabeled bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [--ids a,b,c | --month M --year Y | --start D --end D]",
		Short: "Label conversations with topics using the configured model",
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
			ids = lo.Compact(ids)
			if len(ids) == 0 {
				if ids, err = a.Conversations.ListIDs(cmd.Context(), f, unlabeled); err != nil {
					return err
				}
			}
			if len(ids) == 0 {
				return errors.New("no conversations match")
			}
			fmt.Fprintln(e.out, titleStyle.Render("analyzing"), valueStyle.Render(strconv.Itoa(len(ids))), labelStyle.Render("conversations"))

			res, err := a.Labeller.Analyze(cmd.Context(), ids)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(e.out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			writeTopics(e, res)
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "conversation ids to analyze")
	cmd.Flags().BoolVar(&unlabeled, "unlabeled", true, "skip conversations that already have topics")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result")
	return cmd
}

func writeTopics(e *env, res *topics.Result) {
	writePairs(e.out, []pair{
		{"topics found", strconv.Itoa(res.TopicsAnalyzed)},
		{"rows saved", strconv.Itoa(res.TopicsSaved)},
	})
	fmt.Fprintln(e.out)
	pairs := lo.Map(res.Topics, func(t topics.Topic, _ int) pair {
		return pair{label: t.Name, value: fmt.Sprintf("%-14s %.2f", t.Category, t.Relevance)}
	})
	writePairs(e.out, pairs)
}
