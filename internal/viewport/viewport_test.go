package viewport

import (
	"errors"
	"testing"
	"time"

	"github.com/wethinkt/go-threadview/internal/thread"
)

// fakeSurface behaves like a scroll container whose offset is set directly.
type fakeSurface struct {
	offset, content, viewport int
}

func (f *fakeSurface) Offset() int         { return f.offset }
func (f *fakeSurface) SetOffset(o int)     { f.offset = o }
func (f *fakeSurface) ContentHeight() int  { return f.content }
func (f *fakeSurface) ViewportHeight() int { return f.viewport }

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRestorePrependKeepsPosition(t *testing.T) {
	s := &fakeSurface{offset: 400, content: 2000, viewport: 600}
	a := NewAnchor(s, DefaultAnchorConfig())

	snap := a.CapturePrepend()
	if snap != (Snapshot{ScrollOffset: 400, ScrollableHeight: 2000}) {
		t.Fatalf("snapshot = %+v", snap)
	}
	s.content = 2600
	if !a.RestorePrepend() {
		t.Fatal("correction skipped")
	}
	if diff := s.offset - 1000; diff < -1 || diff > 1 {
		t.Errorf("offset = %d, want 1000", s.offset)
	}
	if a.Pending() {
		t.Error("snapshot not consumed")
	}
	if a.RestorePrepend() {
		t.Error("second restore applied without a snapshot")
	}
}

func TestRestorePrependSkipsImplausibleDelta(t *testing.T) {
	tests := []struct {
		name       string
		newContent int
	}{
		{"shrunk", 1500},
		{"absurd growth", 2000 + 10_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSurface{offset: 400, content: 2000, viewport: 600}
			cfg := DefaultAnchorConfig()
			cfg.MaxPlausibleDelta = 5000
			a := NewAnchor(s, cfg)
			a.CapturePrepend()
			s.content = tt.newContent
			if a.RestorePrepend() {
				t.Error("implausible delta applied")
			}
			if s.offset != 400 {
				t.Errorf("offset changed to %d", s.offset)
			}
		})
	}
}

func TestAutoFollowThreshold(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		follow bool
	}{
		// content 3000, viewport 800: near bottom when offset >= 2000.
		{"at bottom", 2200, true},
		{"on threshold", 2000, true},
		{"just above threshold", 1999, false},
		{"reading history", 500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSurface{offset: tt.offset, content: 3000, viewport: 800}
			a := NewAnchor(s, DefaultAnchorConfig())

			a.BeforeAppend()
			s.content = 3400
			followed := a.AfterAppend(t0)

			if followed != tt.follow {
				t.Errorf("AfterAppend() = %v, want %v", followed, tt.follow)
			}
			want := tt.offset
			if tt.follow {
				want = s.content
			}
			if s.offset != want {
				t.Errorf("offset = %d, want %d", s.offset, want)
			}
		})
	}
}

func TestUserScrollSuppressesFollow(t *testing.T) {
	s := &fakeSurface{offset: 2200, content: 3000, viewport: 800}
	a := NewAnchor(s, DefaultAnchorConfig())

	a.ScrollBy(-10, t0)
	if !a.Overridden(t0.Add(500 * time.Millisecond)) {
		t.Fatal("user scroll did not override")
	}

	a.BeforeAppend()
	s.content = 3100
	if a.AfterAppend(t0.Add(200 * time.Millisecond)) {
		t.Error("followed during cool-down")
	}
	if a.StreamTick(t0.Add(300 * time.Millisecond)) {
		t.Error("stream tick snapped during cool-down")
	}

	after := t0.Add(1100 * time.Millisecond)
	if a.Overridden(after) {
		t.Error("override not re-armed after cool-down")
	}
	if !a.StreamTick(after) {
		t.Error("stream tick did not snap after cool-down")
	}
	if s.offset != s.content {
		t.Errorf("offset = %d, want bottom %d", s.offset, s.content)
	}
}

func TestObserveScrollSmallDeltaAndThrottle(t *testing.T) {
	s := &fakeSurface{offset: 1000, content: 3000, viewport: 800}
	a := NewAnchor(s, DefaultAnchorConfig())

	a.ScrollBy(3, t0)
	if a.Overridden(t0) {
		t.Error("3 unit delta counted as user scroll")
	}

	// Small moves inside one window add up.
	a.ScrollBy(3, t0.Add(50*time.Millisecond))
	if !a.Overridden(t0.Add(60 * time.Millisecond)) {
		t.Error("accumulated delta inside the window not counted")
	}
}

func TestObserveScrollWindowResets(t *testing.T) {
	s := &fakeSurface{offset: 1000, content: 3000, viewport: 800}
	a := NewAnchor(s, DefaultAnchorConfig())

	for i := 0; i < 4; i++ {
		now := t0.Add(time.Duration(i) * 150 * time.Millisecond)
		a.ScrollBy(3, now)
		if a.Overridden(now) {
			t.Fatalf("step %d: slow drift counted as user scroll", i)
		}
	}
}

func TestObserveScrollAcrossStreamSnaps(t *testing.T) {
	s := &fakeSurface{offset: 2200, content: 3000, viewport: 800}
	a := NewAnchor(s, DefaultAnchorConfig())

	// A snap between two small user moves must not hide them.
	a.ScrollBy(-3, t0)
	s.content += 20
	if !a.StreamTick(t0.Add(10 * time.Millisecond)) {
		t.Fatal("tick did not snap")
	}
	a.ScrollBy(-3, t0.Add(20*time.Millisecond))
	if !a.Overridden(t0.Add(30 * time.Millisecond)) {
		t.Error("user moves split by a snap were not counted")
	}
}

func TestSingleLineScrollOverridesWithZeroThreshold(t *testing.T) {
	cfg := DefaultAnchorConfig()
	cfg.NearBottom = 10
	cfg.UserScrollDelta = 0
	s := &fakeSurface{offset: 75, content: 100, viewport: 25}
	a := NewAnchor(s, cfg)

	a.ScrollBy(-1, t0)
	if !a.Overridden(t0) {
		t.Fatal("one line scroll not treated as user scroll")
	}
	if a.StreamTick(t0.Add(50 * time.Millisecond)) {
		t.Error("stream tick snapped back after a one line scroll")
	}
}

func TestStreamTickProgrammaticSnapsAreNotUserScrolls(t *testing.T) {
	s := &fakeSurface{offset: 2200, content: 3000, viewport: 800}
	a := NewAnchor(s, DefaultAnchorConfig())

	for i := 0; i < 5; i++ {
		now := t0.Add(time.Duration(i) * 200 * time.Millisecond)
		s.content += 100
		if !a.StreamTick(now) {
			t.Fatalf("tick %d did not snap", i)
		}
		a.ObserveScroll(now.Add(time.Millisecond))
		if a.Overridden(now.Add(2 * time.Millisecond)) {
			t.Fatalf("tick %d: own snap treated as user scroll", i)
		}
	}
}

func TestPagerPrimingIgnoresTriggers(t *testing.T) {
	p := NewPager("c1", 86, true, DefaultPagerConfig())
	if d := p.SentinelVisible(); d.Load || d.RecheckAfter != 0 {
		t.Errorf("priming pager acted: %+v", d)
	}
	if _, ok := p.Begin(); ok {
		t.Error("Begin succeeded while priming")
	}
	if got := p.Positioned(); got != 500*time.Millisecond {
		t.Errorf("settle delay = %v", got)
	}
	p.Settle()
	if p.State() != Ready {
		t.Fatalf("state = %v", p.State())
	}
	if d := p.Scrolled(1500); !d.Load {
		t.Error("offset on threshold did not trigger")
	}
	if d := p.Scrolled(1501); d.Load {
		t.Error("offset beyond threshold triggered")
	}
}

func TestPagerContinuationAndCompletion(t *testing.T) {
	p := NewPager("c1", 86, true, DefaultPagerConfig())
	p.Settle()

	req, ok := p.Begin()
	if !ok {
		t.Fatal("Begin failed")
	}
	if req != (thread.PageRequest{ConversationID: "c1", Cursor: 86, PageSize: 15}) {
		t.Errorf("request = %+v", req)
	}

	// A trigger while in flight schedules a recheck instead of being dropped.
	d := p.Scrolled(100)
	if d.Load || d.RecheckAfter != 100*time.Millisecond {
		t.Errorf("in-flight decision = %+v", d)
	}
	if _, ok := p.Begin(); ok {
		t.Error("second Begin while in flight")
	}

	var page thread.Page
	for i := 71; i <= 85; i++ {
		page.Messages = append(page.Messages, thread.Message{ID: "m", Sequence: int64(i)})
	}
	page.HasMore = true
	if delay := p.Complete(page); delay != 50*time.Millisecond {
		t.Errorf("recheck delay = %v", delay)
	}
	if p.Cursor() != 71 {
		t.Errorf("cursor = %d, want 71", p.Cursor())
	}
	if d := p.Recheck(0); !d.Load {
		t.Error("recheck near top did not continue")
	}
	if d := p.Recheck(4000); d.Load {
		t.Error("recheck far from top continued")
	}

	p.Begin()
	if delay := p.Complete(thread.Page{}); delay != 0 {
		t.Errorf("empty page delay = %v", delay)
	}
	if p.HasMore() {
		t.Error("hasMore still true after empty page")
	}
	if d := p.SentinelVisible(); d.Load || d.RecheckAfter != 0 {
		t.Errorf("trigger without more pages acted: %+v", d)
	}
}

func TestPagerFailureKeepsCursor(t *testing.T) {
	p := NewPager("c1", 86, true, DefaultPagerConfig())
	p.Settle()
	p.Begin()
	p.Fail(errors.New("connection reset"))

	if p.Cursor() != 86 || !p.HasMore() || p.InFlight() {
		t.Errorf("after failure cursor=%d hasMore=%v inFlight=%v", p.Cursor(), p.HasMore(), p.InFlight())
	}
	req, ok := p.Begin()
	if !ok || req.Cursor != 86 {
		t.Errorf("retry request = %+v, %v", req, ok)
	}
}
