package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/app"
	"github.com/ternarybob/spectare/internal/common"
)

// stringList is a flag that may be given several times
type stringList []string

func (s *stringList) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

var (
	configFiles stringList // Multiple -config flags supported
	startURLs   stringList

	searchKeywords = flag.String("search", "", "Comma-separated search keywords (overrides config)")
	maxResults     = flag.Int("max", 0, "Maximum videos per listing (0 = config value)")
	postsFromDate  = flag.String("from", "", "Only videos uploaded since, e.g. \"2 weeks ago\"")
	concurrency    = flag.Int("concurrency", 0, "Parallel browser sessions (overrides config)")
	headful        = flag.Bool("headful", false, "Show the browser windows")
	exportRecords  = flag.Bool("export", false, "Write stored records as JSON lines to stdout and exit")
	showVersion    = flag.Bool("version", false, "Print version information")
	showVersionV   = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Var(&startURLs, "url", "Start URL (can be specified multiple times, overrides config)")
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Spectare version %s\n", common.GetFullVersion())
		return 0
	}

	common.InstallCrashHandler(common.LogsDir())
	defer common.RecoverWithCrashFile()

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("spectare.toml"); err == nil {
			configFiles = append(configFiles, "spectare.toml")
		}
	}

	// Startup order: config files -> env -> flags -> logger -> banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		return 1
	}

	common.ApplyFlagOverrides(config, common.FlagOverrides{
		SearchKeywords: *searchKeywords,
		StartURLs:      startURLs,
		MaxResults:     *maxResults,
		PostsFromDate:  *postsFromDate,
		Concurrency:    *concurrency,
		Headful:        *headful,
	})

	if *exportRecords {
		// Export output owns stdout
		config.Logging.Output = []string{"file"}
	}
	logger := common.InitLogger(config)

	if *exportRecords {
		return export(config, logger)
	}

	if err := config.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("search", config.Input.SearchKeywords).
		Strs("start_urls", config.Input.StartURLs).
		Str("posts_from_date", config.Input.PostsFromDate).
		Str("database", config.Storage.Badger.Path).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	common.SafeGo(logger, "signal-watcher", func() {
		select {
		case <-sigChan:
			logger.Info().Msg("Interrupt signal received, stopping crawl")
			cancel()
		case <-ctx.Done():
		}
	})

	stats, err := application.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info().
			Int("pending", stats.Queue.Pending+stats.Queue.InFlight).
			Msg("Crawl interrupted, rerun with the same database to resume")
	case err != nil:
		logger.Error().Err(err).Msg("Crawl failed")
		return 1
	default:
		logger.Info().
			Int64("videos", stats.Videos).
			Int64("failed", stats.Failed).
			Msg("Crawl complete")
	}

	return 0
}

func export(config *common.Config, logger arbor.ILogger) int {
	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	count, err := application.Export(context.Background(), os.Stdout)
	if err != nil {
		logger.Error().Err(err).Msg("Export failed")
		return 1
	}
	logger.Info().Int("records", count).Msg("Export complete")
	return 0
}
