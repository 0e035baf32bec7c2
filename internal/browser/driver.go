package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/interfaces"
)

// Signals reported by WaitForNavigationOrResponse
const (
	SignalNavigation = "navigation"
	SignalResponse   = "response"
)

var keyNames = map[string]string{
	"Enter":     kb.Enter,
	"Escape":    kb.Escape,
	"Tab":       kb.Tab,
	"PageDown":  kb.PageDown,
	"End":       kb.End,
	"ArrowDown": kb.ArrowDown,
}

type pageEvent struct {
	kind string
	url  string
}

type subscriber struct {
	kind    string
	urlPart string
	ch      chan pageEvent
}

// ChromeDriver implements interfaces.Driver on one chromedp tab
type ChromeDriver struct {
	tabCtx context.Context
	config Config
	logger arbor.ILogger

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
}

var _ interfaces.Driver = (*ChromeDriver)(nil)

// NewChromeDriver wraps a chromedp tab context and prepares the tab
func NewChromeDriver(tabCtx context.Context, config Config, logger arbor.ILogger) (*ChromeDriver, error) {
	d := &ChromeDriver{
		tabCtx: tabCtx,
		config: config,
		logger: logger,
		subs:   make(map[int]*subscriber),
	}

	chromedp.ListenTarget(tabCtx, d.onEvent)

	if err := d.run(context.Background(), config.ActionTimeout, prepareTab(config)); err != nil {
		return nil, fmt.Errorf("failed to prepare tab: %w", err)
	}
	return d, nil
}

func (d *ChromeDriver) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		// Main frame only
		if e.Frame != nil && e.Frame.ParentID == "" {
			d.broadcast(pageEvent{kind: SignalNavigation, url: e.Frame.URL})
		}
	case *network.EventResponseReceived:
		if e.Response != nil {
			d.broadcast(pageEvent{kind: SignalResponse, url: e.Response.URL})
		}
	}
}

func (d *ChromeDriver) broadcast(ev pageEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subs {
		if sub.kind != ev.kind {
			continue
		}
		if sub.urlPart != "" && !strings.Contains(ev.url, sub.urlPart) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (d *ChromeDriver) subscribe(kind, urlPart string) (int, <-chan pageEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub := &subscriber{kind: kind, urlPart: urlPart, ch: make(chan pageEvent, 1)}
	d.subs[d.nextID] = sub
	return d.nextID, sub.ch
}

func (d *ChromeDriver) unsubscribe(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, id)
}

// run executes actions on the tab bounded by timeout and by the caller's ctx
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
	}
	return err
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// queryBy selects every match; XPath selectors go through DOM search
func queryBy(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// Navigate loads url and returns the main document status
func (d *ChromeDriver) Navigate(ctx context.Context, url string) (int, error) {
	runCtx, cancel := context.WithTimeout(d.tabCtx, d.config.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: navigation to %s: %w", ErrTimeout, url, context.DeadlineExceeded)
		}
		return 0, fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if resp != nil {
		return int(resp.Status), nil
	}

	// Same-document navigations carry no response; ask the performance API
	var status int64
	if err := d.run(ctx, d.config.ActionTimeout, chromedp.Evaluate(
		`window.performance?.getEntriesByType?.('navigation')?.[0]?.responseStatus || 200`, &status)); err != nil {
		return 200, nil
	}
	return int(status), nil
}

// WaitForSelector waits until selector matches a ready element
func (d *ChromeDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	by := chromedp.ByQuery
	if isXPath(selector) {
		by = chromedp.BySearch
	}
	if err := d.run(ctx, timeout, chromedp.WaitReady(selector, by)); err != nil {
		if errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%w: %s: %w", ErrNotFound, selector, err)
		}
		return err
	}
	return nil
}

// QueryAll returns every node matching selector without waiting
func (d *ChromeDriver) QueryAll(ctx context.Context, selector string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, d.config.ActionTimeout,
		chromedp.Nodes(selector, &nodes, queryBy(selector), chromedp.AtLeast(0)))
	return nodes, err
}

// QueryWithin returns the nodes matching selector under parent
func (d *ChromeDriver) QueryWithin(ctx context.Context, parent *cdp.Node, selector string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, d.config.ActionTimeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.FromNode(parent), chromedp.AtLeast(0)))
	return nodes, err
}

// AttributeWithin returns attr of the first match under parent
func (d *ChromeDriver) AttributeWithin(ctx context.Context, parent *cdp.Node, selector, attr string) (string, error) {
	nodes, err := d.QueryWithin(ctx, parent, selector)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	return nodes[0].AttributeValue(attr), nil
}

// TextWithin returns the rendered text of the first match under parent
func (d *ChromeDriver) TextWithin(ctx context.Context, parent *cdp.Node, selector string) (string, error) {
	nodes, err := d.QueryWithin(ctx, parent, selector)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	return d.nodeText(ctx, nodes[0])
}

func (d *ChromeDriver) nodeText(ctx context.Context, node *cdp.Node) (string, error) {
	var text string
	err := d.run(ctx, d.config.ActionTimeout,
		chromedp.Text([]cdp.NodeID{node.NodeID}, &text, chromedp.ByNodeID))
	return strings.TrimSpace(text), err
}

// Evaluate runs script in the page and awaits a returned promise
func (d *ChromeDriver) Evaluate(ctx context.Context, script string, res interface{}) error {
	return d.run(ctx, d.config.ActionTimeout, chromedp.Evaluate(script, res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
}

// Hover scrolls node into view and moves the mouse to a random point on it
func (d *ChromeDriver) Hover(ctx context.Context, node *cdp.Node) error {
	return d.run(ctx, d.config.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, err := humanPoint(ctx, node)
		if err != nil {
			return err
		}
		return chromedp.MouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

// Remove detaches node from the document
func (d *ChromeDriver) Remove(ctx context.Context, node *cdp.Node) error {
	return d.run(ctx, d.config.ActionTimeout, dom.RemoveNode(node.NodeID))
}

// Type focuses selector and types text into it
func (d *ChromeDriver) Type(ctx context.Context, selector, text string) error {
	return d.run(ctx, d.config.ActionTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// Click clicks the first element matching selector at a human-like position
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	nodes, err := d.QueryAll(ctx, selector)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return d.clickNode(ctx, nodes[0])
}

// ClickText clicks the first element under selector whose text equals text
func (d *ChromeDriver) ClickText(ctx context.Context, selector, text string) error {
	nodes, err := d.QueryAll(ctx, selector)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		nodeText, err := d.nodeText(ctx, node)
		if err != nil {
			continue
		}
		if strings.EqualFold(nodeText, strings.TrimSpace(text)) {
			return d.clickNode(ctx, node)
		}
	}
	return fmt.Errorf("%w: %s with text %q", ErrNotFound, selector, text)
}

func (d *ChromeDriver) clickNode(ctx context.Context, node *cdp.Node) error {
	return d.run(ctx, d.config.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, err := humanPoint(ctx, node)
		if err != nil {
			// Zero-size or detached boxes still accept a DOM click
			return chromedp.MouseClickNode(node).Do(ctx)
		}
		return chromedp.MouseClickXY(x, y).Do(ctx)
	}))
}

// Press sends a named key (Enter, Escape, Tab, ...) or literal text
func (d *ChromeDriver) Press(ctx context.Context, key string) error {
	if named, ok := keyNames[key]; ok {
		key = named
	}
	return d.run(ctx, d.config.ActionTimeout, chromedp.KeyEvent(key))
}

// ScrollBy scrolls the window by dy pixels, one viewport when dy <= 0
func (d *ChromeDriver) ScrollBy(ctx context.Context, dy int) error {
	script := "window.scrollBy(0, window.innerHeight)"
	if dy > 0 {
		script = fmt.Sprintf("window.scrollBy(0, %d)", dy)
	}
	return d.run(ctx, d.config.ActionTimeout, chromedp.Evaluate(script, nil))
}

// CurrentURL returns the tab location
func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var location string
	err := d.run(ctx, d.config.ActionTimeout, chromedp.Location(&location))
	return location, err
}

// HTML returns the rendered document
func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, d.config.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// WaitForNavigationOrResponse races a main frame navigation against a
// response whose URL contains urlPart
func (d *ChromeDriver) WaitForNavigationOrResponse(ctx context.Context, trigger func(context.Context) error, urlPart string, timeout time.Duration) (string, error) {
	navID, navCh := d.subscribe(SignalNavigation, "")
	defer d.unsubscribe(navID)
	respID, respCh := d.subscribe(SignalResponse, urlPart)
	defer d.unsubscribe(respID)

	if trigger != nil {
		if err := trigger(ctx); err != nil {
			return "", err
		}
	}

	waiters := []Waiter{{Name: SignalNavigation, Wait: receive(navCh)}}
	if urlPart != "" {
		waiters = append(waiters, Waiter{Name: SignalResponse, Wait: receive(respCh)})
	}

	signal, err := WaitFirst(ctx, timeout, waiters...)
	if err == nil {
		d.logger.Trace().Str("signal", signal).Msg("Page settled")
	}
	return signal, err
}

func receive(ch <-chan pageEvent) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// humanPoint scrolls node into view and picks a click point inside its box
func humanPoint(ctx context.Context, node *cdp.Node) (float64, float64, error) {
	if err := dom.ScrollIntoViewIfNeeded().WithNodeID(node.NodeID).Do(ctx); err != nil {
		return 0, 0, err
	}
	box, err := dom.GetBoxModel().WithNodeID(node.NodeID).Do(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(box.Content) < 8 || box.Width == 0 || box.Height == 0 {
		return 0, 0, fmt.Errorf("node %d has an empty box", node.NodeID)
	}

	// Content quad starts at the top-left corner
	x, y := common.RandomClickPoint(box.Content[0], box.Content[1], float64(box.Width), float64(box.Height))
	return x, y, nil
}
