package browser

import (
	"time"

	"github.com/ternarybob/spectare/internal/common"
)

// Config holds the browser session settings
type Config struct {
	Headless          bool
	NoSandbox         bool
	DisableGPU        bool
	UserAgent         string
	ProxyServer       string
	ExecPath          string
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
	BlockImages       bool
}

// NewDefaultConfig returns headless defaults
func NewDefaultConfig() Config {
	return Config{
		Headless:          true,
		NoSandbox:         true,
		DisableGPU:        true,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ActionTimeout:     30 * time.Second,
		NavigationTimeout: 60 * time.Second,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		BlockImages:       true,
	}
}

// ConfigFrom converts the application configuration
func ConfigFrom(config *common.Config) Config {
	defaults := NewDefaultConfig()
	b := config.Browser

	result := Config{
		Headless:          b.Headless,
		NoSandbox:         b.NoSandbox,
		DisableGPU:        b.DisableGPU,
		UserAgent:         b.UserAgent,
		ProxyServer:       b.ProxyServer,
		ExecPath:          b.ExecPath,
		ActionTimeout:     common.ParseDuration(b.ActionTimeout, defaults.ActionTimeout),
		NavigationTimeout: common.ParseDuration(b.NavigationTimeout, defaults.NavigationTimeout),
		ViewportWidth:     b.ViewportWidth,
		ViewportHeight:    b.ViewportHeight,
		BlockImages:       b.BlockImages,
	}
	if result.UserAgent == "" {
		result.UserAgent = defaults.UserAgent
	}
	if result.ViewportWidth <= 0 || result.ViewportHeight <= 0 {
		result.ViewportWidth = defaults.ViewportWidth
		result.ViewportHeight = defaults.ViewportHeight
	}
	return result
}
