package viewport

import (
	"time"

	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// PagerState is the pagination controller state.
type PagerState int

const (
	// Priming: the initial snap to the latest message has not settled yet.
	Priming PagerState = iota
	// Ready: prepend triggers are armed.
	Ready
)

func (s PagerState) String() string {
	if s == Ready {
		return "ready"
	}
	return "priming"
}

// PagerConfig holds the pagination thresholds.
type PagerConfig struct {
	PageSize     int
	NearTop      int
	Settle       time.Duration
	Continuation time.Duration
	AfterPrepend time.Duration
}

// DefaultPagerConfig returns thresholds for a pixel-based surface.
func DefaultPagerConfig() PagerConfig {
	return PagerConfig{
		PageSize:     15,
		NearTop:      1500,
		Settle:       500 * time.Millisecond,
		Continuation: 100 * time.Millisecond,
		AfterPrepend: 50 * time.Millisecond,
	}
}

// Decision tells the caller what to do with a trigger.
type Decision struct {
	// Load: call Begin and fetch the page now.
	Load bool
	// RecheckAfter, when non-zero: call Recheck with the current offset after this delay.
	RecheckAfter time.Duration
}

// Pager decides when to request the next older page.
type Pager struct {
	cfg            PagerConfig
	conversationID string

	state    PagerState
	cursor   int64
	hasMore  bool
	inFlight bool
}

// NewPager creates a pager for a conversation whose oldest loaded message has
// sequence cursor.
func NewPager(conversationID string, cursor int64, hasMore bool, cfg PagerConfig) *Pager {
	return &Pager{cfg: cfg, conversationID: conversationID, cursor: cursor, hasMore: hasMore}
}

func (p *Pager) State() PagerState   { return p.state }
func (p *Pager) Cursor() int64       { return p.cursor }
func (p *Pager) HasMore() bool       { return p.hasMore }
func (p *Pager) InFlight() bool      { return p.inFlight }
func (p *Pager) Config() PagerConfig { return p.cfg }

// Positioned records that the initial snap happened. It returns the delay
// after which Settle should be called.
func (p *Pager) Positioned() time.Duration {
	return p.cfg.Settle
}

// Settle arms the triggers.
func (p *Pager) Settle() {
	if p.state == Priming {
		tuilog.Log.Debug("Pager.Settle: ready", "conversation", p.conversationID, "cursor", p.cursor)
	}
	p.state = Ready
}

// SentinelVisible handles the top-of-content sensor becoming visible.
func (p *Pager) SentinelVisible() Decision {
	return p.trigger(true)
}

// Scrolled handles a scroll to offset.
func (p *Pager) Scrolled(offset int) Decision {
	return p.trigger(offset <= p.cfg.NearTop)
}

// Recheck is the delayed continuation of an earlier trigger.
func (p *Pager) Recheck(offset int) Decision {
	return p.trigger(offset <= p.cfg.NearTop)
}

func (p *Pager) trigger(near bool) Decision {
	if p.state != Ready || !p.hasMore || !near {
		return Decision{}
	}
	if p.inFlight {
		return Decision{RecheckAfter: p.cfg.Continuation}
	}
	return Decision{Load: true}
}

// Begin marks a request in flight and returns it. It returns false when no
// request should be made.
func (p *Pager) Begin() (thread.PageRequest, bool) {
	if p.state != Ready || !p.hasMore || p.inFlight {
		return thread.PageRequest{}, false
	}
	p.inFlight = true
	return thread.PageRequest{
		ConversationID: p.conversationID,
		Cursor:         p.cursor,
		PageSize:       p.cfg.PageSize,
	}, true
}

// Complete records a fetched page. The cursor moves to the oldest sequence
// in the page. It returns the delay after which Recheck should run, or zero
// when there is nothing more to load.
func (p *Pager) Complete(page thread.Page) time.Duration {
	p.inFlight = false
	for _, m := range page.Messages {
		if p.cursor == 0 || m.Sequence < p.cursor {
			p.cursor = m.Sequence
		}
	}
	p.hasMore = page.HasMore && len(page.Messages) > 0
	if !p.hasMore {
		return 0
	}
	return p.cfg.AfterPrepend
}

// Fail records a failed request. The cursor and hasMore are left unchanged
// so the next trigger retries.
func (p *Pager) Fail(err error) {
	p.inFlight = false
	tuilog.Log.Warn("Pager.Fail: page request failed", "conversation", p.conversationID, "cursor", p.cursor, "error", err)
}
