// Package browsertest provides an in-memory interfaces.Driver for tests that
// exercise page logic without a browser.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"

	"github.com/ternarybob/spectare/internal/browser"
	"github.com/ternarybob/spectare/internal/interfaces"
)

// Item is one rendered listing entry. Values are keyed by selector; attribute
// values by selector + "@" + attribute name.
type Item struct {
	Node    *cdp.Node
	Texts   map[string]string
	Attrs   map[string]string
	removed bool
}

// NewItem builds an item whose link selector points at href
func NewItem(linkSelector, href string) *Item {
	return &Item{
		Texts: map[string]string{},
		Attrs: map[string]string{linkSelector + "@href": href},
	}
}

// Removed reports whether the page removed the item
func (i *Item) Removed() bool {
	return i.removed
}

// Driver fakes one browser tab. Sections holds the rendered listing; every
// ScrollBy appends the next entry of Growth to the last section.
type Driver struct {
	mu sync.Mutex

	SectionSelector string
	ItemSelector    string

	Sections [][]*Item
	Growth   [][]*Item

	// Present lists selectors WaitForSelector and Click find
	Present map[string]bool
	// Options lists the labels ClickText finds, per selector
	Options map[string][]string

	Status int
	Page   string
	URL    string

	// Signal is returned by WaitForNavigationOrResponse; "" simulates a timeout
	Signal string
	// Evaluations maps a script substring to the value Evaluate stores
	Evaluations map[string]interface{}
	// Errors injects a failure per method name
	Errors map[string]error

	Typed   strings.Builder
	Calls   []string
	Scrolls int

	nodes   map[cdp.NodeID]*Item
	nextID  cdp.NodeID
	section map[cdp.NodeID]int
}

var _ interfaces.Driver = (*Driver)(nil)

// NewDriver returns a fake tab whose listing uses the given selectors
func NewDriver(sectionSelector, itemSelector string) *Driver {
	return &Driver{
		SectionSelector: sectionSelector,
		ItemSelector:    itemSelector,
		Present:         map[string]bool{},
		Options:         map[string][]string{},
		Evaluations:     map[string]interface{}{},
		Errors:          map[string]error{},
		Status:          200,
		Signal:          browser.SignalNavigation,
		nodes:           map[cdp.NodeID]*Item{},
		section:         map[cdp.NodeID]int{},
	}
}

// AddSection renders a section holding items
func (d *Driver) AddSection(items ...*Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Sections = append(d.Sections, items)
}

// AddGrowth queues items the next scroll renders
func (d *Driver) AddGrowth(items ...*Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Growth = append(d.Growth, items)
}

// Called reports how often method ran
func (d *Driver) Called(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, call := range d.Calls {
		if call == method || strings.HasPrefix(call, method+" ") {
			count++
		}
	}
	return count
}

// CallLog returns a copy of the recorded calls
func (d *Driver) CallLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Calls...)
}

func (d *Driver) record(method string, args ...string) error {
	call := method
	if len(args) > 0 {
		call += " " + strings.Join(args, " ")
	}
	d.Calls = append(d.Calls, call)
	return d.Errors[method]
}

func (d *Driver) register(item *Item) *cdp.Node {
	if item.Node == nil {
		d.nextID++
		item.Node = &cdp.Node{NodeID: d.nextID, BackendNodeID: cdp.BackendNodeID(d.nextID)}
	}
	d.nodes[item.Node.NodeID] = item
	return item.Node
}

func (d *Driver) Navigate(ctx context.Context, url string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Navigate", url); err != nil {
		return 0, err
	}
	d.URL = url
	return d.Status, nil
}

func (d *Driver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("WaitForSelector", selector); err != nil {
		return err
	}
	if !d.Present[selector] {
		return fmt.Errorf("%w: %s: %w", browser.ErrNotFound, selector, browser.ErrTimeout)
	}
	return nil
}

func (d *Driver) QueryAll(ctx context.Context, selector string) ([]*cdp.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("QueryAll", selector); err != nil {
		return nil, err
	}
	if selector != d.SectionSelector {
		return nil, nil
	}

	nodes := make([]*cdp.Node, 0, len(d.Sections))
	for i := range d.Sections {
		d.nextID++
		node := &cdp.Node{NodeID: d.nextID, BackendNodeID: cdp.BackendNodeID(d.nextID)}
		d.section[node.NodeID] = i
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (d *Driver) QueryWithin(ctx context.Context, parent *cdp.Node, selector string) ([]*cdp.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("QueryWithin", selector); err != nil {
		return nil, err
	}
	index, ok := d.section[parent.NodeID]
	if !ok || selector != d.ItemSelector {
		return nil, nil
	}

	var nodes []*cdp.Node
	for _, item := range d.Sections[index] {
		if item.removed {
			continue
		}
		nodes = append(nodes, d.register(item))
	}
	return nodes, nil
}

func (d *Driver) AttributeWithin(ctx context.Context, parent *cdp.Node, selector, attr string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("AttributeWithin", selector, attr); err != nil {
		return "", err
	}
	if item, ok := d.nodes[parent.NodeID]; ok {
		return item.Attrs[selector+"@"+attr], nil
	}
	return "", nil
}

func (d *Driver) TextWithin(ctx context.Context, parent *cdp.Node, selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("TextWithin", selector); err != nil {
		return "", err
	}
	if item, ok := d.nodes[parent.NodeID]; ok {
		return item.Texts[selector], nil
	}
	return "", nil
}

// Evaluate stores the configured value whose key occurs in script.
// res must be a *string, *interface{} or nil.
func (d *Driver) Evaluate(ctx context.Context, script string, res interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Evaluate"); err != nil {
		return err
	}
	// The longest matching key wins so overlapping keys stay deterministic
	var (
		value   interface{}
		matched string
		found   bool
	)
	for key, candidate := range d.Evaluations {
		if strings.Contains(script, key) && (!found || len(key) > len(matched)) {
			value, matched, found = candidate, key, true
		}
	}
	if !found {
		return nil
	}
	if err, ok := value.(error); ok {
		return err
	}
	switch target := res.(type) {
	case *string:
		s, _ := value.(string)
		*target = s
	case *interface{}:
		*target = value
	}
	return nil
}

func (d *Driver) Hover(ctx context.Context, node *cdp.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("Hover")
}

func (d *Driver) Remove(ctx context.Context, node *cdp.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Remove"); err != nil {
		return err
	}
	if item, ok := d.nodes[node.NodeID]; ok {
		item.removed = true
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Type", selector); err != nil {
		return err
	}
	d.Typed.WriteString(text)
	return nil
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Click", selector); err != nil {
		return err
	}
	if !d.Present[selector] {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return nil
}

func (d *Driver) ClickText(ctx context.Context, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ClickText", selector, text); err != nil {
		return err
	}
	for _, option := range d.Options[selector] {
		if strings.EqualFold(option, text) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s with text %q", browser.ErrNotFound, selector, text)
}

func (d *Driver) Press(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("Press", key)
}

func (d *Driver) ScrollBy(ctx context.Context, dy int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ScrollBy"); err != nil {
		return err
	}
	d.Scrolls++
	if len(d.Growth) > 0 {
		next := d.Growth[0]
		d.Growth = d.Growth[1:]
		if len(d.Sections) == 0 {
			d.Sections = append(d.Sections, nil)
		}
		last := len(d.Sections) - 1
		d.Sections[last] = append(d.Sections[last], next...)
	}
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CurrentURL"); err != nil {
		return "", err
	}
	return d.URL, nil
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("HTML"); err != nil {
		return "", err
	}
	return d.Page, nil
}

func (d *Driver) WaitForNavigationOrResponse(ctx context.Context, trigger func(context.Context) error, urlPart string, timeout time.Duration) (string, error) {
	d.mu.Lock()
	if err := d.record("WaitForNavigationOrResponse", urlPart); err != nil {
		d.mu.Unlock()
		return "", err
	}
	signal := d.Signal
	d.mu.Unlock()

	if trigger != nil {
		if err := trigger(ctx); err != nil {
			return "", err
		}
	}
	if signal == "" {
		return "", browser.ErrTimeout
	}
	return signal, nil
}
