package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// stealthScript hides the most common automation fingerprints. It runs
// before any page script on every new document.
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5], configurable: true });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'], configurable: true });
	if (!window.chrome) { window.chrome = {}; }
	window.chrome.runtime = {};
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
	Object.defineProperty(screen, 'width', { get: () => %[1]d });
	Object.defineProperty(screen, 'height', { get: () => %[2]d });
	Object.defineProperty(screen, 'availWidth', { get: () => %[1]d });
	Object.defineProperty(screen, 'availHeight', { get: () => %[2]d - 40 });
	Object.defineProperty(screen, 'colorDepth', { get: () => 24 });
	Object.defineProperty(screen, 'pixelDepth', { get: () => 24 });
`

// blockedImagePatterns are passed to the network domain when images are disabled
var blockedImagePatterns = []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.svg", "*.ico", "*i.ytimg.com/*"}

// allocatorOptions builds the Chrome flags for one session
func allocatorOptions(config Config) []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", config.DisableGPU),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
		chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
		chromedp.UserAgent(config.UserAgent),
	)
	if config.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(config.ProxyServer))
	}
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}
	return opts
}

// prepareTab installs the stealth script, viewport and request blocking
func prepareTab(config Config) chromedp.Tasks {
	script := fmt.Sprintf(stealthScript, config.ViewportWidth, config.ViewportHeight)

	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(int64(config.ViewportWidth), int64(config.ViewportHeight)),
	}
	if config.BlockImages {
		tasks = append(tasks, network.SetBlockedURLs(blockedImagePatterns))
	}
	return tasks
}
