package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_airlog/internal/config"
	"github.com/friendsincode/muninn_airlog/internal/db"
	"github.com/friendsincode/muninn_airlog/internal/events"
	"github.com/friendsincode/muninn_airlog/internal/logging"
	"github.com/friendsincode/muninn_airlog/internal/server"
	"github.com/friendsincode/muninn_airlog/internal/tracks"
	"github.com/friendsincode/muninn_airlog/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "muninnairlog",
	Short:   "Muninn Airlog - broadcast session arbiter and track logger",
	Long:    "Muninn Airlog arbitrates who is on air, logs every track play against the right session, and keeps the station's play history clean.",
	Version: version.Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Muninn Airlog server",
	Long:  "Start the HTTP API, the inactivity heartbeat, and the event relays",
	RunE:  runServe,
}

var dedupeIgnoreCase bool

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Merge duplicate tracks in the library",
	Long:  "Group tracks by their identity tuple, repoint plays at the oldest row in each group, and delete the rest",
	RunE:  runDedupe,
}

var autofillCmd = &cobra.Command{
	Use:   "autofill-labels",
	Short: "Merge placeholder-label tracks into labeled siblings",
	RunE:  runAutofillLabels,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old sessions that logged no plays",
	RunE:  runPrune,
}

func init() {
	dedupeCmd.Flags().BoolVar(&dedupeIgnoreCase, "ignore-case", true, "match track tuples case-insensitively")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dedupeCmd)
	rootCmd.AddCommand(autofillCmd)
	rootCmd.AddCommand(pruneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Muninn Airlog starting")

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("Muninn Airlog stopped")
	return nil
}

func runDedupe(cmd *cobra.Command, args []string) error {
	matcher, database, err := initMatcher()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	merged, err := matcher.DeduplicateAll(cmd.Context(), dedupeIgnoreCase)
	if err != nil {
		return fmt.Errorf("dedupe: %w", err)
	}

	logger.Info().Int("merged", merged).Msg("duplicate tracks merged")
	return nil
}

func runAutofillLabels(cmd *cobra.Command, args []string) error {
	matcher, database, err := initMatcher()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	merged, err := matcher.AutofillLabels(cmd.Context())
	if err != nil {
		return fmt.Errorf("autofill labels: %w", err)
	}

	logger.Info().Int("merged", merged).Msg("placeholder-label tracks merged")
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	// The prune query needs no lease store or cache; a bare coordinator
	// would drag both in, so the query lives on the db package too.
	pruned, err := db.PruneEmptySessions(cmd.Context(), database)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	logger.Info().Int64("pruned", pruned).Msg("empty sessions pruned")
	return nil
}

// initMatcher builds the track matcher for batch jobs. Batch runs skip
// the Redis cache; the merge paths invalidate nothing they did not warm.
func initMatcher() (*tracks.Matcher, *gorm.DB, error) {
	if err := loadConfig(); err != nil {
		return nil, nil, err
	}

	database, err := initDatabase()
	if err != nil {
		return nil, nil, err
	}

	return tracks.NewMatcher(database, events.NewBus(), nil, logger), database, nil
}

// initDatabase initializes the database connection (used by batch commands)
func initDatabase() (*gorm.DB, error) {
	return db.Connect(cfg)
}
