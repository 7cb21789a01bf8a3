package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryan-buckman/unitview/internal/cms"
	"github.com/bryan-buckman/unitview/internal/config"
	"github.com/bryan-buckman/unitview/internal/database"
	"github.com/bryan-buckman/unitview/internal/doorway"
	"github.com/bryan-buckman/unitview/internal/format"
	"github.com/bryan-buckman/unitview/internal/listing"
	"github.com/bryan-buckman/unitview/internal/logging"
	"github.com/bryan-buckman/unitview/internal/page"
	"github.com/bryan-buckman/unitview/internal/persist"
	"github.com/bryan-buckman/unitview/internal/server"
	"github.com/bryan-buckman/unitview/internal/session"
	"github.com/bryan-buckman/unitview/internal/tracking"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "unitview",
	Short: "Serves apartment listing pages with filtering, sorting and favorites",
	Long: `unitview sits in front of a CMS-rendered apartment site. It fetches
listing pages, formats prices and dates, wires the availability and floor plan
filters, the sort buttons and the favorite hearts, and keeps per-visitor view
state across page loads.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var renderCmd = &cobra.Command{
	Use:   "render [file.html]",
	Short: "Run the load pass over a saved page and print the result",
	Long: `Reads a saved CMS page, runs the same load pass a visitor's first
request gets, and writes the augmented HTML to stdout. Use - to read stdin.

Example:
  unitview render page.html --path /units/studio/unit-101 --vw 375`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Refresh every cached listing page once",
	RunE:  runWarm,
}

var (
	renderPath  string
	renderWidth int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "unitview.yaml", "config file")
	renderCmd.Flags().StringVar(&renderPath, "path", "/", "URL path the page was served at")
	renderCmd.Flags().IntVar(&renderWidth, "vw", 0, "viewport width in pixels (0 = unknown)")
	rootCmd.AddCommand(serveCmd, renderCmd, warmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDatabase opens the configured database when the SQL session backend
// is selected. It returns nil otherwise.
func openDatabase() (database.Store, error) {
	if cfg.Session.Backend != config.BackendSQL {
		return nil, nil
	}
	db, err := database.Open(cfg.Session.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database opened", zap.String("type", db.DatabaseType()))
	return db, nil
}

func newSessionBackend(db database.Store) (session.Backend, func() error, error) {
	switch cfg.Session.Backend {
	case config.BackendSQL:
		return session.NewSQL(db), func() error { return nil }, nil
	case config.BackendRedis:
		r := session.NewRedis(cfg.Session.RedisAddr, cfg.Session.RedisPassword, cfg.Session.RedisDB, cfg.GetSessionTTL())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Session.RedisAddr, err)
		}
		return r, r.Close, nil
	}
	return session.NewMemory(), func() error { return nil }, nil
}

func newTracker() (tracking.Tracker, error) {
	if cfg.Tracking.AMQPURL == "" {
		return tracking.Nop{}, nil
	}
	t, err := tracking.NewRabbit(cfg.Tracking.AMQPURL, cfg.Tracking.Prefix)
	if err != nil {
		return nil, fmt.Errorf("connect to tracking broker: %w", err)
	}
	logger.Info("tracking enabled", zap.String("exchange", tracking.ExchangeName(cfg.Tracking.Prefix)))
	return t, nil
}

// newCache builds the upstream fetcher and page cache.
func newCache(db database.Store) (*cms.Cache, error) {
	if cfg.Upstream.BaseURL == "" {
		return nil, errors.New("upstream.base_url is required")
	}
	fetcher, err := cms.NewFetcher(cfg.Upstream.BaseURL, cfg.GetUpstreamTimeout(), logger)
	if err != nil {
		return nil, err
	}
	return cms.NewCache(fetcher, db, cfg.GetCacheTTL(), logger), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	sessions, closeSessions, err := newSessionBackend(db)
	if err != nil {
		return err
	}
	defer closeSessions()

	cache, err := newCache(db)
	if err != nil {
		return err
	}
	warmer := cms.NewWarmer(cache, cfg.Upstream.FeedURL, cfg.Upstream.WarmPaths, db, logger)
	poller := cms.NewPoller(warmer, db, cfg.GetWarmInterval(), logger)

	tracker, err := newTracker()
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Pages:         cache,
		Sessions:      sessions,
		Tracker:       tracker,
		Doorway:       doorway.NewURLRegistry(cfg.Doorway),
		Dates:         format.NewParser(loc),
		DB:            db,
		Warmer:        warmer,
		Poller:        poller,
		DocsDir:       cfg.Server.DocsDir,
		FilterTimeout: cfg.GetFilterTimeout(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hooks []server.ShutdownHook
	if db != nil {
		hooks = append(hooks, func(ctx context.Context) error {
			n, err := db.PurgeSessions(ctx, time.Now().Add(-cfg.GetSessionTTL()))
			if err == nil && n > 0 {
				logger.Info("purged idle sessions", zap.Int64("count", n))
			}
			return err
		})
	}

	logger.Info("serving",
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.String("sessions", cfg.Session.Backend),
		zap.Duration("cache_ttl", cfg.GetCacheTTL()))
	return srv.Run(ctx, cfg.Server.Addr, cfg.GetShutdownTimeout(), hooks...)
}

func runRender(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	doc, err := page.Parse(in)
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	v := listing.New(doc, listing.Options{
		Path:          renderPath,
		ViewportWidth: renderWidth,
		Durable:       persist.NewMemoryDurable(nil),
		Session:       persist.NewMemorySession(),
		Doorway:       doorway.NewURLRegistry(cfg.Doorway),
		Dates:         format.NewParser(loc),
		Logger:        logger,
	})
	defer v.Close()
	sum := v.Init()

	out, err := v.Document().Render()
	if err != nil {
		return err
	}
	logger.Info("rendered",
		zap.Bool("grid", sum.Grid),
		zap.Int("prices", sum.Prices),
		zap.Int("dates", sum.Dates),
		zap.String("size", humanize.Bytes(uint64(len(out)))))
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

func runWarm(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	cache, err := newCache(db)
	if err != nil {
		return err
	}
	warmer := cms.NewWarmer(cache, cfg.Upstream.FeedURL, cfg.Upstream.WarmPaths, db, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	start := time.Now()
	res, err := warmer.WarmAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "warmed %d pages (%d failed) in %s\n",
		res.Pages, res.Failed, time.Since(start).Round(time.Millisecond))
	return nil
}
