package pagination

import (
	"sync"

	"github.com/chromedp/cdproto/cdp"
)

// State is where a Session is in its scan/grow cycle
type State string

const (
	StateScanning       State = "SCANNING"
	StateAwaitingGrowth State = "AWAITING_GROWTH"
	StateTerminated     State = "TERMINATED"
)

// Reason explains why a Session terminated
type Reason string

const (
	ReasonTargetReached Reason = "target_reached"
	ReasonExhausted     Reason = "exhausted"
	ReasonError         Reason = "error"
)

// UnboundedTarget stands in for "no max_results configured"
const UnboundedTarget = 99999

// Session is the state of one listing page visit. It is owned by the worker
// running the visit; the heartbeat only reads counters through Counts.
type Session struct {
	URL             string
	SearchTerm      string
	TargetMax       int
	IsSearchContext bool

	mu              sync.Mutex
	alreadyEnqueued int
	uniqueEnqueued  int
	state           State
	reason          Reason
	passes          int

	handled map[cdp.BackendNodeID]bool
	videos  map[string]bool
}

// NewSession starts a visit of url. A targetMax of zero or less means unbounded.
func NewSession(url, searchTerm string, targetMax int, isSearchContext bool) *Session {
	if targetMax <= 0 {
		targetMax = UnboundedTarget
	}
	return &Session{
		URL:             url,
		SearchTerm:      searchTerm,
		TargetMax:       targetMax,
		IsSearchContext: isSearchContext,
		state:           StateScanning,
		handled:         make(map[cdp.BackendNodeID]bool),
		videos:          make(map[string]bool),
	}
}

// Counts returns unique and total enqueue attempts so far
func (s *Session) Counts() (unique, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uniqueEnqueued, s.alreadyEnqueued
}

// State returns the current state and, once terminated, the reason
func (s *Session) State() (State, Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// Passes returns how many scans ran
func (s *Session) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// TargetReached reports whether the raw attempt counter hit TargetMax
func (s *Session) TargetReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alreadyEnqueued >= s.TargetMax
}

func (s *Session) beginPass() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateScanning
	s.passes++
	return s.passes
}

func (s *Session) awaitGrowth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAwaitingGrowth
}

func (s *Session) terminate(reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateTerminated
	s.reason = reason
}

// claimNode marks a rendered node handled; false when it was handled before
func (s *Session) claimNode(node *cdp.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := node.BackendNodeID
	if key == 0 {
		key = cdp.BackendNodeID(node.NodeID)
	}
	if s.handled[key] {
		return false
	}
	s.handled[key] = true
	return true
}

// recordAttempt counts one enqueue attempt
func (s *Session) recordAttempt(wasNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alreadyEnqueued++
	if wasNew {
		s.uniqueEnqueued++
	}
}

// claimVideo reports whether id is new within this session
func (s *Session) claimVideo(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videos[id] {
		return false
	}
	s.videos[id] = true
	return true
}

// Result summarises a finished Session
type Result struct {
	Unique int
	Total  int
	Reason Reason
	Passes int
}

func (s *Session) result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{
		Unique: s.uniqueEnqueued,
		Total:  s.alreadyEnqueued,
		Reason: s.reason,
		Passes: s.passes,
	}
}
