package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"habitstock/internal/config"
	apperrors "habitstock/internal/errors"
	"habitstock/internal/ledger"
	"habitstock/internal/logging"
	"habitstock/internal/news"
	"habitstock/internal/social"
	"habitstock/internal/store"
	"habitstock/internal/stream"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-08-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
	Hub    *stream.Hub
	Feed   *stream.Feed
	Ledger *ledger.Ledger
	News   *news.Service
	Social *social.Service
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
		Hub:    stream.NewHub(),
	}

	dataStore, err := store.NewSQLiteStore(config.DefaultDBPath())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Msg("SQLite store initialized")
	}

	if app.Store != nil {
		app.Ledger = ledger.New(cfg.User.ID, cfg.User.InitialPrice, app.Store, logger,
			ledger.WithHub(app.Hub))
	}

	if cfg.Feed.Enabled && cfg.Feed.URL != "" {
		feedCfg := stream.DefaultFeedConfig(cfg.Feed.URL)
		if cfg.Feed.MaxRetries > 0 {
			feedCfg.MaxRetries = cfg.Feed.MaxRetries
		}
		if cfg.Feed.BaseDelayMs > 0 {
			feedCfg.BaseDelay = time.Duration(cfg.Feed.BaseDelayMs) * time.Millisecond
		}
		if cfg.Feed.PingInterval > 0 {
			feedCfg.PingInterval = time.Duration(cfg.Feed.PingInterval) * time.Second
		}
		app.Feed = stream.NewFeed(feedCfg, app.Hub, logger)
		logger.Debug().Str("url", cfg.Feed.URL).Msg("Snapshot feed configured")
	}

	if app.Store != nil && app.Ledger != nil {
		var llm news.LLMClient
		if cfg.News.Enabled && cfg.Credentials.OpenAI.APIKey != "" {
			llm = news.NewOpenAIClient(cfg.Credentials.OpenAI.APIKey, cfg.News.Model)
			logger.Debug().Str("model", cfg.News.Model).Msg("OpenAI LLM client initialized")
		}
		app.News = news.NewService(llm, app.Store, app.Ledger, logger)
		app.Social = social.NewService(cfg.User.ID, app.Store, app.Feed, logger)
	}

	rootCmd := &cobra.Command{
		Use:   "habitstock",
		Short: "Habitstock - habit tracking as a personal stock price",
		Long: `Habitstock turns daily tasks into a simulated stock price.

Completing a task moves your price up by a frozen per-task delta; undoing it
moves the price back down by exactly the same amount. Daily bars aggregate
into weekly and monthly candles with moving-average overlays, and completed
tasks can generate AI news articles that boost their price impact.

Use 'habitstock help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			if app.Ledger != nil {
				if err := app.Ledger.Load(cmd.Context()); err != nil {
					return err
				}
			}
			app.connectFeed(cmd.Context())
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/habitstock)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newTaskCmd(app))
	rootCmd.AddCommand(newChartCmd(app))
	rootCmd.AddCommand(newPriceCmd(app))
	rootCmd.AddCommand(newFollowCmd(app))
	rootCmd.AddCommand(newUnfollowCmd(app))
	rootCmd.AddCommand(newFriendsCmd(app))
	rootCmd.AddCommand(newNewsCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Habitstock v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

// connectFeed dials the snapshot feed and starts the hub consumers: the
// ledger reconciles pushed bars for the local user, the social service
// overlays pushed bars for followed friends. A feed that cannot connect
// leaves the app fully functional offline.
func (app *App) connectFeed(ctx context.Context) {
	if app.Feed == nil || app.Ledger == nil {
		return
	}
	if err := app.Feed.Connect(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("Feed unavailable, continuing offline")
		return
	}
	if err := app.Feed.Watch(app.Config.User.ID); err != nil {
		app.Logger.Warn().Err(err).Msg("Feed watch failed")
	}
	go app.Ledger.Listen(ctx, app.Hub)
	if app.Social != nil {
		if err := app.Social.Listen(ctx, app.Hub); err != nil {
			app.Logger.Warn().Err(err).Msg("Friend feed listen failed")
		}
	}
}

// requireLedger guards commands that need a working store behind a uniform
// error instead of a nil dereference.
func (app *App) requireLedger() error {
	if app.Ledger == nil {
		return apperrors.Wrap(apperrors.ErrDatabaseError, "store unavailable, check database path and permissions")
	}
	return nil
}
