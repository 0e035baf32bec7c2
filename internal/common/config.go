package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Input       InputConfig    `toml:"input"`
	Crawler     CrawlerConfig  `toml:"crawler"`
	Browser     BrowserConfig  `toml:"browser"`
	Selectors   SelectorConfig `toml:"selectors"`
	Queue       QueueConfig    `toml:"queue"`
	Storage     StorageConfig  `toml:"storage"`
	Redis       RedisConfig    `toml:"redis"`
	Kafka       KafkaConfig    `toml:"kafka"`
	Logging     LoggingConfig  `toml:"logging"`
}

// InputConfig is what the operator asks the run to scrape.
// Exactly one of SearchKeywords / StartURLs must be set.
type InputConfig struct {
	SearchKeywords        string   `toml:"search_keywords"` // Comma-separated, one seed per keyword
	StartURLs             []string `toml:"start_urls" validate:"dive,url"`
	MaxResults            int      `toml:"max_results" validate:"gte=0"` // 0 = unbounded
	PostsFromDate         string   `toml:"posts_from_date"`              // e.g. "2 weeks ago"
	SimplifiedInformation bool     `toml:"simplified_information"`       // Emit listing records instead of visiting detail pages
	DownloadSubtitles     bool     `toml:"download_subtitles"`
	SubtitlesLanguage     string   `toml:"subtitles_language"`
}

type CrawlerConfig struct {
	MaxConcurrency    int     `toml:"max_concurrency" validate:"gte=1,lte=20"` // Parallel workers, one browser session each
	NavigationRate    float64 `toml:"navigation_rate" validate:"gte=0"`        // Navigations per second per session (0 = unlimited)
	ItemDelayMin      string  `toml:"item_delay_min"`                          // Pause between listing items
	ItemDelayMax      string  `toml:"item_delay_max"`
	KeyDelayMin       string  `toml:"key_delay_min"` // Pause between search keystrokes
	KeyDelayMax       string  `toml:"key_delay_max"`
	HumanPauseMin     string  `toml:"human_pause_min"`
	HumanPauseMax     string  `toml:"human_pause_max"`
	SettleInterval    string  `toml:"settle_interval"`    // Wait after each growth trigger
	HeartbeatInterval string  `toml:"heartbeat_interval"` // Progress log interval while paginating
	SearchTimeout     string  `toml:"search_timeout"`     // Upper bound for post-search navigation
	FilterTimeout     string  `toml:"filter_timeout"`     // Upper bound per filter selection
	ListingEndpoint   string  `toml:"listing_endpoint"`   // Network response that signals a refreshed listing
	RetryBackoff      string  `toml:"retry_backoff"`      // Initial requeue delay for failed visits
}

type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	NoSandbox         bool   `toml:"no_sandbox"`
	DisableGPU        bool   `toml:"disable_gpu"`
	UserAgent         string `toml:"user_agent"`
	ProxyServer       string `toml:"proxy_server"`
	ExecPath          string `toml:"exec_path"`          // Empty = let chromedp discover Chrome
	ActionTimeout     string `toml:"action_timeout"`     // Bound for every DOM operation
	NavigationTimeout string `toml:"navigation_timeout"` // Bound for page loads
	ViewportWidth     int    `toml:"viewport_width" validate:"gte=320"`
	ViewportHeight    int    `toml:"viewport_height" validate:"gte=240"`
	BlockImages       bool   `toml:"block_images"`
}

// SelectorConfig holds the CSS/XPath selectors used against the platform's markup.
type SelectorConfig struct {
	SearchBox        string `toml:"search_box" validate:"required"`
	SearchButton     string `toml:"search_button"`
	FilterMenuToggle string `toml:"filter_menu_toggle"`
	FilterOption     string `toml:"filter_option"`
	Section          string `toml:"section" validate:"required"`
	Item             string `toml:"item" validate:"required"`
	ItemLink         string `toml:"item_link" validate:"required"`
	ItemTitle        string `toml:"item_title"`
	ItemDuration     string `toml:"item_duration"`
	ItemChannelName  string `toml:"item_channel_name"`
	ItemChannelURL   string `toml:"item_channel_url"`
	ItemViewCount    string `toml:"item_view_count"`
	ItemDate         string `toml:"item_date"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often idle workers poll
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "10m" - in-flight items are redelivered after this
	MaxReceive        int    `toml:"max_receive" validate:"gte=1"`
	QueueName         string `toml:"queue_name" validate:"required"` // Key prefix in Badger
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for a clean run
}

// RedisConfig enables the shared dedup store used when several processes crawl together.
type RedisConfig struct {
	Enabled   bool   `toml:"enabled"`
	Address   string `toml:"address" validate:"required_if=Enabled true"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
	TTL       string `toml:"ttl"`
}

// KafkaConfig enables streaming records to a topic in addition to the local dataset.
type KafkaConfig struct {
	Enabled    bool     `toml:"enabled"`
	Brokers    []string `toml:"brokers" validate:"required_if=Enabled true"`
	Topic      string   `toml:"topic" validate:"required_if=Enabled true"`
	DebugTopic string   `toml:"debug_topic"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Input: InputConfig{
			SubtitlesLanguage: "en",
		},
		Crawler: CrawlerConfig{
			MaxConcurrency:    1,
			NavigationRate:    0.5,
			ItemDelayMin:      "300ms",
			ItemDelayMax:      "800ms",
			KeyDelayMin:       "45ms",
			KeyDelayMax:       "375ms",
			HumanPauseMin:     "300ms",
			HumanPauseMax:     "800ms",
			SettleInterval:    "3s",
			HeartbeatInterval: "60s",
			SearchTimeout:     "15s",
			FilterTimeout:     "10s",
			ListingEndpoint:   "/youtubei/v1/search",
			RetryBackoff:      "5s",
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			DisableGPU:        true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			ActionTimeout:     "30s",
			NavigationTimeout: "60s",
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			BlockImages:       true,
		},
		Selectors: SelectorConfig{
			SearchBox:        "input#search, input[name=\"search_query\"]",
			SearchButton:     "#search-icon-legacy, button[aria-label=\"Search\"]",
			FilterMenuToggle: "#filter-button button, #button[aria-label=\"Search filters\"]",
			FilterOption:     "ytd-search-filter-renderer a, ytd-search-filter-renderer yt-formatted-string",
			Section:          "ytd-item-section-renderer, ytd-rich-grid-renderer",
			Item:             "ytd-video-renderer, ytd-grid-video-renderer, ytd-rich-item-renderer",
			ItemLink:         "a[href^=\"/watch\"]",
			ItemTitle:        "#video-title",
			ItemDuration:     "ytd-thumbnail-overlay-time-status-renderer #text",
			ItemChannelName:  "#channel-info #channel-name, #channel-name",
			ItemChannelURL:   "#channel-info > a, #channel-name a",
			ItemViewCount:    "#metadata-line > span:nth-child(1), #metadata-line > span:nth-of-type(1)",
			ItemDate:         "#metadata-line > span:nth-child(2), #metadata-line > span:nth-of-type(2)",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			VisibilityTimeout: "10m",
			MaxReceive:        3,
			QueueName:         "spectare_requests",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Redis: RedisConfig{
			KeyPrefix: "spectare:seen:",
			TTL:       "168h",
		},
		Kafka: KafkaConfig{
			Topic:      "spectare.videos",
			DebugTopic: "spectare.failures",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier ones. CLI flags are applied separately by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SPECTARE_ENV"); env != "" {
		config.Environment = env
	}

	// Input
	if keywords := os.Getenv("SPECTARE_SEARCH_KEYWORDS"); keywords != "" {
		config.Input.SearchKeywords = keywords
	}
	if urls := os.Getenv("SPECTARE_START_URLS"); urls != "" {
		config.Input.StartURLs = splitList(urls)
	}
	if maxResults := os.Getenv("SPECTARE_MAX_RESULTS"); maxResults != "" {
		if n, err := strconv.Atoi(maxResults); err == nil {
			config.Input.MaxResults = n
		}
	}
	if from := os.Getenv("SPECTARE_POSTS_FROM_DATE"); from != "" {
		config.Input.PostsFromDate = from
	}
	if simplified := os.Getenv("SPECTARE_SIMPLIFIED_INFORMATION"); simplified != "" {
		if b, err := strconv.ParseBool(simplified); err == nil {
			config.Input.SimplifiedInformation = b
		}
	}
	if subtitles := os.Getenv("SPECTARE_DOWNLOAD_SUBTITLES"); subtitles != "" {
		if b, err := strconv.ParseBool(subtitles); err == nil {
			config.Input.DownloadSubtitles = b
		}
	}

	// Crawler
	if concurrency := os.Getenv("SPECTARE_CRAWLER_MAX_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Crawler.MaxConcurrency = c
		}
	}
	if navRate := os.Getenv("SPECTARE_CRAWLER_NAVIGATION_RATE"); navRate != "" {
		if r, err := strconv.ParseFloat(navRate, 64); err == nil {
			config.Crawler.NavigationRate = r
		}
	}

	// Browser
	if headless := os.Getenv("SPECTARE_BROWSER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}
	if proxy := os.Getenv("SPECTARE_BROWSER_PROXY_SERVER"); proxy != "" {
		config.Browser.ProxyServer = proxy
	}
	if execPath := os.Getenv("SPECTARE_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	// Queue and storage
	if maxReceive := os.Getenv("SPECTARE_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}
	if badgerPath := os.Getenv("SPECTARE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Redis and Kafka are switched on by providing an address
	if addr := os.Getenv("SPECTARE_REDIS_ADDRESS"); addr != "" {
		config.Redis.Address = addr
		config.Redis.Enabled = true
	}
	if password := os.Getenv("SPECTARE_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if brokers := os.Getenv("SPECTARE_KAFKA_BROKERS"); brokers != "" {
		config.Kafka.Brokers = splitList(brokers)
		config.Kafka.Enabled = true
	}
	if topic := os.Getenv("SPECTARE_KAFKA_TOPIC"); topic != "" {
		config.Kafka.Topic = topic
	}

	// Logging
	if level := os.Getenv("SPECTARE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SPECTARE_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// FlagOverrides carries the command-line values that take precedence over files and env
type FlagOverrides struct {
	SearchKeywords string
	StartURLs      []string
	MaxResults     int
	PostsFromDate  string
	Concurrency    int
	Headful        bool
}

// ApplyFlagOverrides applies command-line flags (highest priority)
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	if flags.SearchKeywords != "" {
		config.Input.SearchKeywords = flags.SearchKeywords
		config.Input.StartURLs = nil
	}
	if len(flags.StartURLs) > 0 {
		config.Input.StartURLs = flags.StartURLs
		if flags.SearchKeywords == "" {
			config.Input.SearchKeywords = ""
		}
	}
	if flags.MaxResults > 0 {
		config.Input.MaxResults = flags.MaxResults
	}
	if flags.PostsFromDate != "" {
		config.Input.PostsFromDate = flags.PostsFromDate
	}
	if flags.Concurrency > 0 {
		config.Crawler.MaxConcurrency = flags.Concurrency
	}
	if flags.Headful {
		config.Browser.Headless = false
	}
}

// ErrInputConflict is returned when neither or both of search_keywords/start_urls are set
var ErrInputConflict = errors.New("exactly one of input.search_keywords or input.start_urls must be set")

// Validate checks struct constraints and the input rules. Called once at startup; a
// failure aborts the run before any browser is started.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	hasKeywords := len(c.Keywords()) > 0
	hasURLs := len(c.Input.StartURLs) > 0
	if hasKeywords == hasURLs {
		return ErrInputConflict
	}

	if ParseDuration(c.Crawler.ItemDelayMin, 0) > ParseDuration(c.Crawler.ItemDelayMax, 0) {
		return fmt.Errorf("invalid configuration: crawler.item_delay_min exceeds crawler.item_delay_max")
	}

	return nil
}

// Keywords returns the trimmed, non-empty search keywords
func (c *Config) Keywords() []string {
	return splitList(c.Input.SearchKeywords)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// ParseDuration parses a duration string, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
