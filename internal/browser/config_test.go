package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/spectare/internal/common"
)

func TestConfigFrom(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Browser.Headless = false
	config.Browser.ProxyServer = "http://proxy:8080"
	config.Browser.ActionTimeout = "5s"
	config.Browser.NavigationTimeout = "bogus"
	config.Browser.UserAgent = ""
	config.Browser.ViewportWidth = 0

	result := ConfigFrom(config)

	assert.False(t, result.Headless)
	assert.Equal(t, "http://proxy:8080", result.ProxyServer)
	assert.Equal(t, 5*time.Second, result.ActionTimeout)
	assert.Equal(t, 60*time.Second, result.NavigationTimeout, "invalid durations fall back")
	assert.NotEmpty(t, result.UserAgent)
	assert.Equal(t, 1920, result.ViewportWidth)
	assert.Equal(t, 1080, result.ViewportHeight)
}

func TestPrepareTab_BlockImages(t *testing.T) {
	config := NewDefaultConfig()
	withBlocking := prepareTab(config)

	config.BlockImages = false
	withoutBlocking := prepareTab(config)

	assert.Len(t, withBlocking, len(withoutBlocking)+1)
}

func TestIsXPath(t *testing.T) {
	assert.True(t, isXPath("//ytd-video-primary-info-renderer/div/h1"))
	assert.True(t, isXPath("(//a)[1]"))
	assert.False(t, isXPath("#video-title"))
	assert.False(t, isXPath("a[href^=\"/watch\"]"))
}
