// Package pagination derives display ranges and navigation bounds for paged
// lists and discards responses to superseded requests.
package pagination

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/abrezinsky/votedesk/internal/errors"
)

const (
	DefaultLimit = 9
	MaxLimit     = 100
)

var (
	// ErrPageOutOfRange is returned for navigation outside [1, Pages].
	ErrPageOutOfRange = errors.InvalidInput("page out of range")
	// ErrSuperseded is returned for a response to a request that is no longer the latest.
	ErrSuperseded = errors.Conflict("request superseded by a newer one")
)

// Query is a page request. List names the paged list the request belongs
// to; each list keeps its own navigation bounds and request generations.
type Query struct {
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
	Filter json.RawMessage `json:"filter,omitempty"`
	List   string          `json:"-"`
}

// Normalize fills defaults: page 1, limit DefaultLimit, limit capped at MaxLimit.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if len(q.Filter) == 0 || string(q.Filter) == "null" {
		q.Filter = json.RawMessage(`{}`)
	}
	return q
}

// Range returns the 1-based inclusive display range of page. Both bounds are
// zero when there are no items.
func Range(page, limit, total int) (start, end int) {
	if total <= 0 || limit <= 0 || page < 1 {
		return 0, 0
	}
	start = (page-1)*limit + 1
	end = min(page*limit, total)
	if start > end {
		return 0, 0
	}
	return start, end
}

// Pages returns ceil(total/limit).
func Pages(limit, total int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// HasPrev reports whether a previous page exists.
func HasPrev(page int) bool {
	return page > 1
}

// HasNext reports whether a next page exists.
func HasNext(page, limit, total int) bool {
	return page < Pages(limit, total)
}

// Info is the navigation state of one rendered page
type Info struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	Start   int  `json:"start"`
	End     int  `json:"end"`
	HasPrev bool `json:"hasPrev"`
	HasNext bool `json:"hasNext"`
}

// NewInfo computes navigation state for page.
func NewInfo(page, limit, total int) Info {
	start, end := Range(page, limit, total)
	return Info{
		Page:    page,
		Limit:   limit,
		Total:   total,
		Pages:   Pages(limit, total),
		Start:   start,
		End:     end,
		HasPrev: HasPrev(page),
		HasNext: HasNext(page, limit, total),
	}
}

// Navigator remembers the last known total for a list so navigation can be
// rejected before a request is issued.
type Navigator struct {
	mu    sync.Mutex
	limit int
	total int
	known bool
}

// NewNavigator creates a navigator for pages of limit items.
func NewNavigator(limit int) *Navigator {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Navigator{limit: limit}
}

// Limit returns the page size.
func (n *Navigator) Limit() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.limit
}

// SetLimit changes the page size. The known total is kept.
func (n *Navigator) SetLimit(limit int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if limit >= 1 {
		n.limit = min(limit, MaxLimit)
	}
}

// Observe records the total reported by the latest response.
func (n *Navigator) Observe(total int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.total = max(total, 0)
	n.known = true
}

// Reset forgets the known total, e.g. after a filter change.
func (n *Navigator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.total = 0
	n.known = false
}

// Check rejects page if it lies outside the known page range. Before the first
// response only page 1 is allowed.
func (n *Navigator) Check(page int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if page < 1 {
		return ErrPageOutOfRange
	}
	if !n.known {
		if page != 1 {
			return ErrPageOutOfRange
		}
		return nil
	}
	last := max(Pages(n.limit, n.total), 1)
	if page > last {
		return ErrPageOutOfRange
	}
	return nil
}

// Clamp returns the nearest valid page to page.
func (n *Navigator) Clamp(page int) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	last := 1
	if n.known {
		last = max(Pages(n.limit, n.total), 1)
	}
	return max(1, min(page, last))
}

// Sequencer tags requests with increasing generations so only the latest
// response is applied.
type Sequencer struct {
	gen atomic.Uint64
}

// Next starts a request and returns its generation.
func (s *Sequencer) Next() uint64 {
	return s.gen.Add(1)
}

// Latest returns the most recently issued generation.
func (s *Sequencer) Latest() uint64 {
	return s.gen.Load()
}

// Accept returns ErrSuperseded unless gen is the latest generation.
func (s *Sequencer) Accept(gen uint64) error {
	if gen != s.gen.Load() {
		return ErrSuperseded
	}
	return nil
}
