package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/umbusk1/bibliofep/internal/ingestion/watcher"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
)

func newIngestCommand(e *env) *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "ingest <export.json>...",
		Short: "Ingest exported conversation files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.Context(), publish)
			if err != nil {
				return err
			}
			failed := 0
			for _, path := range args {
				res, err := watcher.IngestFile(cmd.Context(), a.Publisher, path)
				switch {
				case errors.Is(err, apperrors.ErrAlreadyProcessed):
					fmt.Fprintln(e.out, warnStyle.Render("skipped"), path, labelStyle.Render("(already processed)"))
				case err != nil:
					failed++
					fmt.Fprintln(e.out, errorStyle.Render("failed "), path, labelStyle.Render(err.Error()))
				default:
					fmt.Fprintln(e.out, okStyle.Render("ingested"), path,
						labelStyle.Render(fmt.Sprintf("%d conversations, %d messages, %s",
							res.ConversationsProcessed, res.MessagesProcessed, res.Period)))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", true, "announce ingested conversations on Kafka when brokers are configured")
	return cmd
}

func newWatchCommand(e *env) *cobra.Command {
	var (
		dir      string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest exports dropped into a directory until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Ingestion.WatchDir
			}
			if dir == "" {
				return errors.New("--dir or ingestion.watchDir is required")
			}
			if debounce <= 0 {
				debounce = cfg.Ingestion.Debounce
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, err := e.open(ctx, true)
			if err != nil {
				return err
			}
			w := watcher.New(dir, debounce, a.Publisher)
			w.OnOutcome = func(o watcher.Outcome) {
				switch {
				case errors.Is(o.Err, apperrors.ErrAlreadyProcessed):
					fmt.Fprintln(e.out, warnStyle.Render("skipped"), o.Path)
				case o.Err != nil:
					fmt.Fprintln(e.out, errorStyle.Render("failed "), o.Path, labelStyle.Render(o.Err.Error()))
				default:
					fmt.Fprintln(e.out, okStyle.Render("ingested"), o.Path,
						labelStyle.Render(fmt.Sprintf("%d conversations", o.Result.ConversationsProcessed)))
				}
			}
			fmt.Fprintln(e.out, titleStyle.Render("watching"), dir)
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "drop directory (defaults to ingestion.watchDir)")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a file is ingested")
	return cmd
}
