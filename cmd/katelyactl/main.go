// Command katelyactl administers a KatelyaTV deployment from the terminal: it
// edits the source registry, issues tokens and runs searches in process.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Eternity714/KatelyaTV/internal/app"
	"github.com/Eternity714/KatelyaTV/internal/jsonutil"
)

// Version is set at build time via ldflags.
var Version = "dev"

type cli struct {
	cfg     app.Config
	logger  *slog.Logger
	verbose bool

	storage    string
	sqlitePath string
	mongoURI   string
	mongoDB    string
	redisURL   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "katelyactl",
		Short:         "Administer KatelyaTV sources, tokens and searches",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.loadConfig(cmd.ErrOrStderr())
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.storage, "storage", "", "Storage backend: memory | sqlite | mongo (default STORAGE_TYPE)")
	flags.StringVar(&c.sqlitePath, "sqlite-path", "", "SQLite database file (default SQLITE_PATH)")
	flags.StringVar(&c.mongoURI, "mongo-uri", "", "MongoDB connection string (default MONGO_URI)")
	flags.StringVar(&c.mongoDB, "mongo-db", "", "MongoDB database name (default MONGO_DB)")
	flags.StringVar(&c.redisURL, "redis-url", "", "Redis URL (default REDIS_URL)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(c.sourcesCmd())
	root.AddCommand(c.tokenCmd())
	root.AddCommand(c.searchCmd())
	root.AddCommand(c.probeCmd())
	return root
}

// loadConfig merges the environment with command line overrides.
func (c *cli) loadConfig(stderr io.Writer) {
	c.cfg = app.LoadConfig()
	if c.storage != "" {
		c.cfg.StorageType = strings.ToLower(c.storage)
	}
	if c.sqlitePath != "" {
		c.cfg.SQLitePath = c.sqlitePath
	}
	if c.mongoURI != "" {
		c.cfg.MongoURI = c.mongoURI
	}
	if c.mongoDB != "" {
		c.cfg.MongoDB = c.mongoDB
	}
	if c.redisURL != "" {
		c.cfg.RedisURL = c.redisURL
	}
	// The CLI never syncs the sources file implicitly; see `sources import`.
	c.cfg.SourcesFile = ""

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

func (c *cli) build(cmd *cobra.Command) (*app.Components, error) {
	components, err := app.Build(cmd.Context(), c.cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return components, nil
}

func printJSON(w io.Writer, payload any) error {
	encoder := jsonutil.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
