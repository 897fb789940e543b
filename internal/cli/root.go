// Package cli implements dashctl, the operator command line for the
// dashboard: schema migration, user management, offline ingestion, topic
// analysis, and report inspection.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/umbusk1/bibliofep/internal/app"
	"github.com/umbusk1/bibliofep/pkg/config"
	"github.com/umbusk1/bibliofep/pkg/logger"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// env lazily loads configuration and connects the services a command needs.
type env struct {
	opts *rootOptions
	out  io.Writer
	cfg  *config.Config
	app  *app.App
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.opts.configPath)
	if err != nil {
		return nil, err
	}
	e.cfg = cfg
	return cfg, nil
}

func (e *env) open(ctx context.Context, publish bool) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.Options{Publish: publish})
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func (e *env) close() {
	if e.app != nil {
		e.app.Close()
		e.app = nil
	}
}

// NewRootCommand builds the dashctl command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	root, _ := newRoot(out)
	return root
}

func newRoot(out io.Writer) (*cobra.Command, *env) {
	opts := &rootOptions{}
	e := &env{opts: opts, out: out}

	root := &cobra.Command{
		Use:           "dashctl",
		Short:         "Operate the conversation analytics dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logger.SetupWriter(os.Stderr, level, "text")
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "configs/dashboard.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newMigrateCommand(e),
		newUsersCommand(e),
		newIngestCommand(e),
		newWatchCommand(e),
		newAnalyzeCommand(e),
		newStatsCommand(e),
		newReportsCommand(e),
	)
	return root, e
}

// Execute runs dashctl and returns the process exit code.
func Execute(ctx context.Context) int {
	root, e := newRoot(os.Stdout)
	defer e.close()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		return 1
	}
	return 0
}

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := e.open(cmd.Context(), false); err != nil {
				return err
			}
			fmt.Fprintln(e.out, okStyle.Render("schema up to date"))
			return nil
		},
	}
}
