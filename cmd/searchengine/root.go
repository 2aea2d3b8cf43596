package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-search/internal/config"
	"github.com/JakeFAU/site-search/internal/server"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the commands need from the wired application.
type App interface {
	Run(ctx context.Context) error
	RunIndex(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can swap in a fake.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "searchengine",
		Short: "Crawl a fixed set of sites and serve full-text search over them",
		Long: `searchengine crawls every configured site breadth-first, stores each page
with its lemma counts, and answers ranked AND queries with highlighted snippets.

Run without a subcommand to serve the HTTP API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
		RunE: runServe,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd(), newIndexCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the search and indexing API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index every configured site once and exit",
		Long: `index wipes the index, crawls every configured site and exits once each
site has a final status. It exits non-zero when any site failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return app.RunIndex(cmd.Context())
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	return app.Run(cmd.Context())
}

func resolveApp(ctx context.Context) (App, error) {
	app, ok := ctx.Value(appKey).(App)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}
