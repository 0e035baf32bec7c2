package interfaces

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

// Driver is the subset of browser automation the crawler needs. One Driver
// belongs to one browser session and is used by one worker at a time.
type Driver interface {
	// Navigate loads url and returns the HTTP status of the main document
	Navigate(ctx context.Context, url string) (int, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	QueryAll(ctx context.Context, selector string) ([]*cdp.Node, error)
	QueryWithin(ctx context.Context, parent *cdp.Node, selector string) ([]*cdp.Node, error)
	// AttributeWithin returns the attribute of the first match under parent, "" when absent
	AttributeWithin(ctx context.Context, parent *cdp.Node, selector, attr string) (string, error)
	TextWithin(ctx context.Context, parent *cdp.Node, selector string) (string, error)

	Evaluate(ctx context.Context, script string, res interface{}) error
	Hover(ctx context.Context, node *cdp.Node) error
	Remove(ctx context.Context, node *cdp.Node) error

	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// ClickText clicks the first element matching selector whose trimmed text equals text
	ClickText(ctx context.Context, selector, text string) error
	Press(ctx context.Context, key string) error
	// ScrollBy scrolls the window vertically; dy <= 0 scrolls one viewport
	ScrollBy(ctx context.Context, dy int) error

	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// WaitForNavigationOrResponse runs trigger, then blocks until the main
	// frame navigates or a response whose URL contains urlPart arrives,
	// whichever is first. Listening starts before trigger so fast pages are
	// not missed. It returns the name of the winning signal.
	WaitForNavigationOrResponse(ctx context.Context, trigger func(context.Context) error, urlPart string, timeout time.Duration) (string, error)
}

// SessionPool hands out browser sessions to workers
type SessionPool interface {
	// Acquire returns the Driver for worker slot n
	Acquire(ctx context.Context, n int) (Driver, error)
	// Retire closes the session in slot n and opens a fresh one
	Retire(ctx context.Context, n int) (Driver, error)
	Shutdown() error
}
