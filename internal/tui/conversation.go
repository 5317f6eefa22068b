package tui

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"

	"github.com/wethinkt/go-threadview/internal/config"
	"github.com/wethinkt/go-threadview/internal/mediaindex"
	"github.com/wethinkt/go-threadview/internal/mediaurl"
	"github.com/wethinkt/go-threadview/internal/selection"
	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
	scroll "github.com/wethinkt/go-threadview/internal/viewport"
)

// streamIdle is how long after the last live update the view keeps
// re-snapping to the bottom.
const streamIdle = 2 * time.Second

const requestTimeout = 30 * time.Second

// Messages produced by the conversation view's commands. Every message
// carries the generation it was issued for; a message from an older
// generation belongs to a conversation that is no longer open and is dropped.
type (
	initialPageMsg struct {
		gen  int
		page thread.Page
		err  error
	}
	olderPageMsg struct {
		gen  int
		page thread.Page
		err  error
	}
	tailPageMsg struct {
		gen  int
		page thread.Page
		err  error
	}
	settleMsg       struct{ gen int }
	recheckMsg      struct{ gen int }
	keepBottomMsg   struct{ gen int }
	deleteResultMsg struct {
		gen int
		ids []string
		err error
	}
	bookmarksMsg struct {
		gen   int
		marks map[string]bool
		err   error
	}
	bookmarkToggledMsg struct {
		gen int
		id  string
		on  bool
		err error
	}
	urlsRefreshedMsg struct {
		gen  int
		urls map[string]string
	}
)

// conversationView shows one conversation and keeps its reading position
// stable while pages are prepended and live messages are appended.
type conversationView struct {
	deps Deps
	keys keyMap
	cfg  config.ViewConfig

	convID string
	title  string
	gen    int

	log     *thread.Log
	builder *mediaindex.Builder
	index   *mediaindex.Index
	pager   *scroll.Pager
	anchor  *scroll.Anchor
	sel     *selection.Overlay

	vp       *viewport.Model
	render   *renderer
	marks    map[string]bool
	fresh    map[string]string
	starts   []int // first rendered line of each message
	cursor   int
	indexLen int

	width, height int
	loading       bool
	lastLive      time.Time
	streaming     bool
	status        string

	now   func() time.Time
	after func(d time.Duration, msg tea.Msg) tea.Cmd
}

func newConversationView(deps Deps, cfg config.ViewConfig) *conversationView {
	vp := viewport.New()
	c := &conversationView{
		deps:   deps,
		keys:   defaultKeyMap(),
		cfg:    cfg,
		vp:     &vp,
		render: newRenderer(cfg.Markdown, cfg.MarkdownStyle, cfg.ImagesAsURL),
		sel:    selection.New(),
		now:    time.Now,
		after: func(d time.Duration, msg tea.Msg) tea.Cmd {
			return tea.Tick(d, func(time.Time) tea.Msg { return msg })
		},
	}
	c.anchor = scroll.NewAnchor(surface{c.vp}, cfg.AnchorConfig())
	return c
}

// ConversationID returns the open conversation, or "".
func (c *conversationView) ConversationID() string { return c.convID }

// applyConfig installs reloaded view settings. Thresholds apply to the next
// conversation opened; rendering options apply immediately.
func (c *conversationView) applyConfig(cfg config.ViewConfig) {
	c.cfg = cfg
	c.render = newRenderer(cfg.Markdown, cfg.MarkdownStyle, cfg.ImagesAsURL)
	c.render.setWidth(c.width)
	c.anchor = scroll.NewAnchor(surface{c.vp}, cfg.AnchorConfig())
	c.rerender()
}

func (c *conversationView) setSize(width, height int) {
	c.width, c.height = width, height
	c.vp.SetWidth(width)
	c.vp.SetHeight(max(1, height))
	c.render.setWidth(width)
	c.rerender()
}

// open switches to a conversation and requests its newest page.
func (c *conversationView) open(id, title string) tea.Cmd {
	c.gen++
	c.convID, c.title = id, title
	c.log = thread.NewLog(id)
	c.builder = mediaindex.NewBuilder()
	c.index = c.builder.Index()
	c.pager = nil
	c.sel.Reset()
	c.anchor.Reset()
	c.marks = make(map[string]bool)
	c.fresh = make(map[string]string)
	c.cursor = 0
	c.indexLen = 0
	c.loading = true
	c.streaming = false
	c.status = ""
	c.render.forget(func(string) bool { return false })
	c.vp.SetContent("")
	tuilog.Log.Info("conversationView.open", "conversation", id, "gen", c.gen)

	gen, pages := c.gen, c.deps.Pages
	req := thread.PageRequest{ConversationID: id, PageSize: c.cfg.PagerConfig().PageSize}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		page, err := pages.FetchPage(ctx, req)
		return initialPageMsg{gen: gen, page: page, err: err}
	}
}

// Update handles the view's own messages and input. It returns nil for
// messages it does not own.
func (c *conversationView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case initialPageMsg:
		if msg.gen != c.gen {
			return nil
		}
		return c.handleInitial(msg)
	case olderPageMsg:
		if msg.gen != c.gen {
			return nil
		}
		return c.handleOlder(msg)
	case tailPageMsg:
		if msg.gen != c.gen {
			return nil
		}
		return c.handleTail(msg)
	case settleMsg:
		if msg.gen != c.gen || c.pager == nil {
			return nil
		}
		c.pager.Settle()
		return c.checkTop()
	case recheckMsg:
		if msg.gen != c.gen || c.pager == nil {
			return nil
		}
		return c.decide(c.pager.Recheck(c.vp.YOffset()))
	case keepBottomMsg:
		if msg.gen != c.gen {
			return nil
		}
		return c.handleKeepBottom()
	case deleteResultMsg:
		if msg.gen != c.gen {
			return nil
		}
		c.sel.FinishDelete(msg.ids, msg.err, c.log)
		if msg.err != nil {
			c.status = "Delete failed, selection kept"
		} else {
			c.status = fmt.Sprintf("Deleted %d messages", len(msg.ids))
			c.cursor = min(c.cursor, max(0, c.log.Len()-1))
		}
		c.rerender()
		return nil
	case bookmarksMsg:
		if msg.gen != c.gen {
			return nil
		}
		if msg.err != nil {
			tuilog.Log.Warn("conversationView: bookmark lookup failed", "error", msg.err)
			return nil
		}
		maps.Copy(c.marks, msg.marks)
		c.rerender()
		return nil
	case bookmarkToggledMsg:
		if msg.gen != c.gen {
			return nil
		}
		if msg.err != nil {
			c.marks[msg.id] = !msg.on
			c.status = "Bookmark failed"
			c.rerender()
		}
		return nil
	case urlsRefreshedMsg:
		if msg.gen != c.gen {
			return nil
		}
		maps.Copy(c.fresh, msg.urls)
		c.render.invalidate()
		c.rerender()
		return nil
	case tea.KeyMsg:
		return c.handleKey(msg)
	case tea.MouseWheelMsg:
		switch msg.Mouse().Button {
		case tea.MouseWheelUp:
			return c.scrollBy(-3)
		case tea.MouseWheelDown:
			return c.scrollBy(3)
		}
	}
	return nil
}

func (c *conversationView) handleInitial(msg initialPageMsg) tea.Cmd {
	c.loading = false
	if msg.err != nil {
		tuilog.Log.Warn("conversationView: initial page failed", "conversation", c.convID, "error", msg.err)
		c.status = "Could not load conversation"
		c.rerender()
		return nil
	}

	c.log.PrependPage(msg.page.Messages)
	c.pager = scroll.NewPager(c.convID, c.log.OldestSequence(), msg.page.HasMore, c.cfg.PagerConfig())
	c.cursor = max(0, c.log.Len()-1)
	c.rerender()
	c.anchor.SnapInitial()

	gen := c.gen
	return tea.Batch(
		c.after(c.pager.Positioned(), settleMsg{gen: gen}),
		c.fetchBookmarks(msg.page.Messages),
		c.refreshURLs(),
	)
}

func (c *conversationView) handleOlder(msg olderPageMsg) tea.Cmd {
	if msg.err != nil {
		c.pager.Fail(msg.err)
		c.status = "Could not load older messages"
		return nil
	}

	// Layout is synchronous in a terminal, so the correction runs right
	// after the new content is set instead of waiting for a frame.
	c.anchor.CapturePrepend()
	added := c.log.PrependPage(msg.page.Messages)
	recheck := c.pager.Complete(msg.page)
	c.cursor += added
	c.status = ""
	c.rerender()
	c.anchor.RestorePrepend()

	cmds := []tea.Cmd{c.fetchBookmarks(msg.page.Messages), c.refreshURLs()}
	if recheck > 0 {
		cmds = append(cmds, c.after(recheck, recheckMsg{gen: c.gen}))
	}
	return tea.Batch(cmds...)
}

// refreshTail fetches the newest page to pick up messages and edits made
// elsewhere.
func (c *conversationView) refreshTail() tea.Cmd {
	if c.convID == "" || c.loading {
		return nil
	}
	gen, pages := c.gen, c.deps.Pages
	req := thread.PageRequest{ConversationID: c.convID, PageSize: c.cfg.PagerConfig().PageSize}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		page, err := pages.FetchPage(ctx, req)
		return tailPageMsg{gen: gen, page: page, err: err}
	}
}

func (c *conversationView) handleTail(msg tailPageMsg) tea.Cmd {
	if msg.err != nil {
		tuilog.Log.Warn("conversationView: tail refresh failed", "error", msg.err)
		return nil
	}

	var latest int64
	if m, ok := c.log.Latest(); ok {
		latest = m.Sequence
	}

	c.anchor.BeforeAppend()
	atEnd := c.cursor >= c.log.Len()-1
	var appended []thread.Message
	changed := false
	for _, m := range msg.page.Messages {
		if old, ok := c.log.Get(m.ID); ok {
			if m.Version > old.Version {
				changed = c.log.Mutate(m.ID, thread.Patch{Parts: m.Parts, Annotations: m.Annotations, Attachments: m.Attachments}) || changed
			}
			continue
		}
		if m.Sequence > latest && c.log.Append(m) {
			appended = append(appended, m)
		}
	}
	if len(appended) == 0 && !changed {
		return nil
	}
	if atEnd {
		c.cursor = c.log.Len() - 1
	}
	c.rerender()
	c.anchor.AfterAppend(c.now())

	c.lastLive = c.now()
	cmds := []tea.Cmd{c.fetchBookmarks(appended), c.refreshURLs()}
	if !c.streaming {
		c.streaming = true
		cmds = append(cmds, c.after(c.anchor.Config().KeepBottomInterval, keepBottomMsg{gen: c.gen}))
	}
	return tea.Batch(cmds...)
}

func (c *conversationView) handleKeepBottom() tea.Cmd {
	now := c.now()
	if now.Sub(c.lastLive) > streamIdle {
		c.streaming = false
		return nil
	}
	c.anchor.StreamTick(now)
	return c.after(c.anchor.Config().KeepBottomInterval, keepBottomMsg{gen: c.gen})
}

// checkTop fires the sentinel trigger when the top of the content is in view.
func (c *conversationView) checkTop() tea.Cmd {
	if c.pager == nil {
		return nil
	}
	if c.vp.YOffset() == 0 {
		return c.decide(c.pager.SentinelVisible())
	}
	return c.decide(c.pager.Scrolled(c.vp.YOffset()))
}

func (c *conversationView) decide(d scroll.Decision) tea.Cmd {
	switch {
	case d.Load:
		req, ok := c.pager.Begin()
		if !ok {
			return nil
		}
		gen, pages := c.gen, c.deps.Pages
		c.status = "Loading older messages…"
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			page, err := pages.FetchPage(ctx, req)
			return olderPageMsg{gen: gen, page: page, err: err}
		}
	case d.RecheckAfter > 0:
		return c.after(d.RecheckAfter, recheckMsg{gen: c.gen})
	}
	return nil
}

func (c *conversationView) scrollBy(delta int) tea.Cmd {
	c.anchor.ScrollBy(delta, c.now())
	return c.checkTop()
}

func (c *conversationView) handleKey(msg tea.KeyMsg) tea.Cmd {
	if c.log == nil {
		return nil
	}
	switch {
	case key.Matches(msg, c.keys.Up):
		return c.scrollBy(-1)
	case key.Matches(msg, c.keys.Down):
		return c.scrollBy(1)
	case key.Matches(msg, c.keys.PgUp):
		return c.scrollBy(-c.vp.Height())
	case key.Matches(msg, c.keys.PgDown):
		return c.scrollBy(c.vp.Height())
	case key.Matches(msg, c.keys.Home):
		return c.scrollBy(-c.vp.YOffset())
	case key.Matches(msg, c.keys.End):
		c.cursor = max(0, c.log.Len()-1)
		c.rerender()
		return c.scrollBy(c.vp.TotalLineCount())
	case key.Matches(msg, c.keys.PrevMsg):
		return c.moveCursor(-1)
	case key.Matches(msg, c.keys.NextMsg):
		return c.moveCursor(1)
	case key.Matches(msg, c.keys.Select):
		if !c.sel.Active() {
			c.sel.Enter()
			c.rerender()
		}
	case key.Matches(msg, c.keys.Toggle):
		if c.sel.Active() && c.log.Len() > 0 {
			c.sel.Toggle(c.log.At(c.cursor).ID)
			c.rerender()
		}
	case key.Matches(msg, c.keys.Delete):
		return c.deleteSelected()
	case key.Matches(msg, c.keys.Back):
		if c.sel.Active() && !c.sel.Deleting() {
			c.sel.Exit()
			c.rerender()
		}
	case key.Matches(msg, c.keys.Bookmark):
		return c.toggleBookmark()
	}
	return nil
}

func (c *conversationView) moveCursor(step int) tea.Cmd {
	if c.log.Len() == 0 {
		return nil
	}
	next := min(max(c.cursor+step, 0), c.log.Len()-1)
	if next == c.cursor {
		return nil
	}
	c.cursor = next
	c.rerender()
	if c.cursor >= len(c.starts) {
		return nil
	}

	// Bring the focused message into view.
	top := c.starts[c.cursor]
	off := c.vp.YOffset()
	switch {
	case top < off:
		return c.scrollBy(top - off)
	case top >= off+c.vp.Height():
		return c.scrollBy(top - off - c.vp.Height() + 2)
	}
	return nil
}

func (c *conversationView) deleteSelected() tea.Cmd {
	if !c.sel.CanDelete() {
		return nil
	}
	ids, err := c.sel.BeginDelete()
	if err != nil {
		return nil
	}
	c.status = fmt.Sprintf("Deleting %d messages…", len(ids))
	gen, convID, deleter := c.gen, c.convID, c.deps.Deleter
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return deleteResultMsg{gen: gen, ids: ids, err: deleter.DeleteMessages(ctx, convID, ids)}
	}
}

func (c *conversationView) toggleBookmark() tea.Cmd {
	if c.deps.Bookmarks == nil || c.log.Len() == 0 {
		return nil
	}
	id := c.log.At(c.cursor).ID
	on := !c.marks[id]
	c.marks[id] = on
	c.rerender()

	gen, convID, store := c.gen, c.convID, c.deps.Bookmarks
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return bookmarkToggledMsg{gen: gen, id: id, on: on, err: store.SetBookmark(ctx, convID, id, on)}
	}
}

func (c *conversationView) fetchBookmarks(msgs []thread.Message) tea.Cmd {
	if c.deps.Bookmarks == nil || len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	gen, convID, store := c.gen, c.convID, c.deps.Bookmarks
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		marks, err := store.Bookmarks(ctx, convID, ids)
		return bookmarksMsg{gen: gen, marks: marks, err: err}
	}
}

// refreshURLs re-signs expired media URLs found in the index.
func (c *conversationView) refreshURLs() tea.Cmd {
	if c.deps.Refresher == nil {
		return nil
	}
	now := c.now()
	expired := make(map[string]string)
	for _, u := range c.index.Images {
		if _, done := c.fresh[u]; !done && mediaurl.IsExpired(u, now) {
			expired[u] = u
		}
	}
	for _, v := range c.index.Videos {
		if _, done := c.fresh[v.URL]; !done && mediaurl.IsExpired(v.URL, now) {
			expired[v.URL] = v.URL
		}
	}
	if len(expired) == 0 {
		return nil
	}
	gen, r := c.gen, c.deps.Refresher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		r.ResolveAll(ctx, expired)
		return urlsRefreshedMsg{gen: gen, urls: expired}
	}
}

// rerender syncs the derived index and rebuilds the viewport content. It
// does not move the offset; the anchor does that.
func (c *conversationView) rerender() {
	if c.log == nil || c.width == 0 {
		return
	}
	c.index = c.builder.Sync(c.log)
	if n := c.index.Len(); n != c.indexLen {
		c.indexLen = n
		c.render.invalidate()
	}
	c.render.forget(c.log.Has)

	var b strings.Builder
	c.starts = c.starts[:0]
	line := 0
	if c.pager != nil && c.pager.HasMore() {
		b.WriteString(infoStyle.Render("  ↑ older messages") + "\n\n")
		line += 2
	}
	for i := range c.log.Len() {
		m := c.log.At(i)
		c.starts = append(c.starts, line)
		head := c.render.header(m, marks{
			cursor:     i == c.cursor,
			selecting:  c.sel.Active(),
			selected:   c.sel.Has(m.ID),
			bookmarked: c.marks[m.ID],
		})
		body := c.render.body(m, c.index, c.fresh)
		b.WriteString(head)
		b.WriteString("\n")
		line++
		if body != "" {
			b.WriteString(body)
			b.WriteString("\n")
			line += strings.Count(body, "\n") + 1
		}
		b.WriteString("\n")
		line++
	}
	c.vp.SetContent(strings.TrimSuffix(b.String(), "\n"))
}

// statusLine describes the view state for the header.
func (c *conversationView) statusLine() string {
	switch {
	case c.convID == "":
		return "No conversation"
	case c.loading:
		return "Loading…"
	case c.sel.Active():
		s := fmt.Sprintf("Selecting: %d selected", c.sel.Len())
		if c.sel.Deleting() {
			s += " (deleting…)"
		}
		return s
	case c.status != "":
		return c.status
	}
	return fmt.Sprintf("%d messages", c.log.Len())
}

// View renders the viewport.
func (c *conversationView) View() string {
	if c.convID == "" {
		return infoStyle.Render("Select a conversation")
	}
	if c.loading {
		return infoStyle.Render("Loading…")
	}
	if c.log.Len() == 0 {
		return infoStyle.Render("No messages yet")
	}
	return c.vp.View()
}
