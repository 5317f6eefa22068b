// Package viewport keeps the reading position of a conversation stable while
// content is prepended, appended and streamed, and decides when an older page
// should be requested.
//
// Distances are in the surface's own units: pixels for a graphical surface,
// rendered lines for the terminal view.
package viewport

import (
	"time"

	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// Surface is a scrollable region. Implementations clamp offsets passed to
// SetOffset to the valid range.
type Surface interface {
	Offset() int
	SetOffset(offset int)
	// ContentHeight is the full scrollable height.
	ContentHeight() int
	// ViewportHeight is the visible height.
	ViewportHeight() int
}

// Snapshot is the position captured before a change above the viewport.
type Snapshot struct {
	ScrollOffset     int
	ScrollableHeight int
}

// AnchorConfig holds the scroll anchoring thresholds.
type AnchorConfig struct {
	NearBottom         int
	UserScrollDelta    int
	MaxPlausibleDelta  int // 0 disables the upper bound
	Throttle           time.Duration
	Cooldown           time.Duration
	KeepBottomInterval time.Duration
}

// DefaultAnchorConfig returns thresholds for a pixel-based surface.
func DefaultAnchorConfig() AnchorConfig {
	return AnchorConfig{
		NearBottom:         200,
		UserScrollDelta:    5,
		MaxPlausibleDelta:  1 << 20,
		Throttle:           100 * time.Millisecond,
		Cooldown:           time.Second,
		KeepBottomInterval: 50 * time.Millisecond,
	}
}

// Anchor is the only writer of a surface's offset.
type Anchor struct {
	s   Surface
	cfg AnchorConfig

	pending *Snapshot

	appendNearBottom bool

	lastOffset    int
	windowStart   time.Time
	windowMoved   int
	overrideUntil time.Time
}

// NewAnchor creates an anchor for a surface.
func NewAnchor(s Surface, cfg AnchorConfig) *Anchor {
	return &Anchor{s: s, cfg: cfg, lastOffset: s.Offset()}
}

// Config returns the anchor's thresholds.
func (a *Anchor) Config() AnchorConfig { return a.cfg }

func (a *Anchor) set(offset int) {
	a.s.SetOffset(offset)
	a.lastOffset = a.s.Offset()
}

func (a *Anchor) snapBottom() {
	a.set(a.s.ContentHeight())
}

// NearBottom reports whether the viewport is within the near-bottom threshold.
func (a *Anchor) NearBottom() bool {
	return a.s.Offset() >= a.s.ContentHeight()-a.s.ViewportHeight()-a.cfg.NearBottom
}

// SnapInitial positions the view on the latest message.
func (a *Anchor) SnapInitial() {
	a.snapBottom()
}

// CapturePrepend records the position before an older page is merged.
func (a *Anchor) CapturePrepend() Snapshot {
	snap := Snapshot{ScrollOffset: a.s.Offset(), ScrollableHeight: a.s.ContentHeight()}
	a.pending = &snap
	return snap
}

// Pending reports whether a captured position is waiting to be restored.
func (a *Anchor) Pending() bool { return a.pending != nil }

// RestorePrepend shifts the offset by the growth in content height so the
// rows that were visible stay put. Call it once the new content has been
// laid out. An implausible delta skips the correction. It reports whether
// the offset was corrected.
func (a *Anchor) RestorePrepend() bool {
	if a.pending == nil {
		return false
	}
	snap := *a.pending
	a.pending = nil

	delta := a.s.ContentHeight() - snap.ScrollableHeight
	if delta < 0 || (a.cfg.MaxPlausibleDelta > 0 && delta > a.cfg.MaxPlausibleDelta) {
		tuilog.Log.Warn("Anchor.RestorePrepend: skipping implausible delta", "delta", delta,
			"old_height", snap.ScrollableHeight, "new_height", a.s.ContentHeight())
		return false
	}
	a.set(snap.ScrollOffset + delta)
	return true
}

// BeforeAppend records whether the viewport is near the bottom before a new
// trailing message is added.
func (a *Anchor) BeforeAppend() {
	a.appendNearBottom = a.NearBottom()
}

// AfterAppend follows the new bottom if the viewport was near it before the
// append and the user is not scrolling. Otherwise the offset is untouched.
func (a *Anchor) AfterAppend(now time.Time) bool {
	follow := a.appendNearBottom && !a.Overridden(now)
	a.appendNearBottom = false
	if follow {
		a.snapBottom()
	}
	return follow
}

// StreamTick re-snaps to the bottom while streaming if the viewport is near
// the bottom and not overridden. Callers tick at KeepBottomInterval.
func (a *Anchor) StreamTick(now time.Time) bool {
	if a.Overridden(now) || !a.NearBottom() {
		return false
	}
	a.snapBottom()
	return true
}

// ScrollBy applies a user scroll gesture and records it.
func (a *Anchor) ScrollBy(delta int, now time.Time) {
	a.s.SetOffset(a.s.Offset() + delta)
	a.ObserveScroll(now)
}

// ObserveScroll samples the current offset. Movement since the previous
// sample is summed over the throttle window; once the sum exceeds the user
// threshold it is a user scroll and auto-follow is suppressed for the
// cool-down. Offsets written by the anchor itself never count as movement.
func (a *Anchor) ObserveScroll(now time.Time) {
	offset := a.s.Offset()
	moved := offset - a.lastOffset
	a.lastOffset = offset

	if a.windowStart.IsZero() || now.Sub(a.windowStart) >= a.cfg.Throttle {
		a.windowStart = now
		a.windowMoved = 0
	}
	a.windowMoved += moved
	if abs(a.windowMoved) > a.cfg.UserScrollDelta {
		a.overrideUntil = now.Add(a.cfg.Cooldown)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Overridden reports whether auto-follow is suppressed by a recent user scroll.
func (a *Anchor) Overridden(now time.Time) bool {
	return now.Before(a.overrideUntil)
}

// Reset drops pending state and the user override, for example when the
// view switches conversation.
func (a *Anchor) Reset() {
	a.pending = nil
	a.appendNearBottom = false
	a.overrideUntil = time.Time{}
	a.windowStart = time.Time{}
	a.windowMoved = 0
	a.lastOffset = a.s.Offset()
}
