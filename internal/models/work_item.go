package models

import (
	"errors"
	"time"
)

// ErrNoMessage is returned when the queue has no visible item
var ErrNoMessage = errors.New("no messages in queue")

// Category decides how a dequeued URL is handled
type Category string

const (
	CategoryMaster  Category = "MASTER"  // Home/feed listing, or a keyword seed that still needs searching
	CategorySearch  Category = "SEARCH"  // Search results listing
	CategoryChannel Category = "CHANNEL" // Channel video listing
	CategoryDetail  Category = "DETAIL"  // Single video page
)

// IsListing reports whether the category is handled by the listing controller
func (c Category) IsListing() bool {
	return c == CategoryMaster || c == CategorySearch || c == CategoryChannel
}

// ItemStatus tracks a WorkItem through the queue
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusInFlight ItemStatus = "in_flight"
	ItemStatusDone     ItemStatus = "done"
	ItemStatusFailed   ItemStatus = "failed"
)

// WorkItem is one unit of crawl work. URL, Category and SearchTerm are fixed
// at creation; the remaining fields are queue bookkeeping.
type WorkItem struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`                   // Canonical URL, the dedup key
	Category   Category   `json:"category"`              // Routing
	SearchTerm string     `json:"search_term,omitempty"` // Keyword that led to this URL, if any
	EnqueuedAt time.Time  `json:"enqueued_at"`
	VisibleAt  time.Time  `json:"visible_at"`
	Attempts   int        `json:"attempts"`
	Status     ItemStatus `json:"status"`
	Errors     []string   `json:"errors,omitempty"` // One entry per failed attempt
}

// IsKeywordSeed reports whether the item still needs the search box flow
func (w *WorkItem) IsKeywordSeed() bool {
	return w.Category == CategoryMaster && w.SearchTerm != ""
}

// LastError returns the most recent failure message
func (w *WorkItem) LastError() string {
	if len(w.Errors) == 0 {
		return ""
	}
	return w.Errors[len(w.Errors)-1]
}

// QueueStats summarises queue contents
type QueueStats struct {
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
}

// Outstanding is the amount of work not yet settled
func (s QueueStats) Outstanding() int {
	return s.Pending + s.InFlight
}
