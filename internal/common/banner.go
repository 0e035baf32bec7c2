package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and a one-line summary of the run
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("Spectare", GetVersion())

	mode := "start_urls"
	if len(config.Keywords()) > 0 {
		mode = "search_keywords"
	}

	logger.Info().
		Str("version", GetFullVersion()).
		Str("input", mode).
		Int("max_results", config.Input.MaxResults).
		Int("workers", config.Crawler.MaxConcurrency).
		Bool("headless", config.Browser.Headless).
		Msg("Spectare starting")
}
