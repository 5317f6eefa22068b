package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/wethinkt/go-threadview/internal/convlist"
	"github.com/wethinkt/go-threadview/internal/thread"
)

// openConversationMsg asks the app to open a conversation.
type openConversationMsg struct {
	id    string
	title string
}

// sidebar lists conversations from the reconciler. The cursor follows the
// highlighted conversation by id, so re-sorting does not move the highlight
// to another row.
type sidebar struct {
	keys   keyMap
	list   *convlist.Reconciler
	items  []thread.ConversationSummary
	cursor string
	open   string
	offset int

	width, height int
}

func newSidebar(list *convlist.Reconciler) *sidebar {
	return &sidebar{keys: defaultKeyMap(), list: list}
}

// refresh copies the reconciler's rows. Call after every list change.
func (s *sidebar) refresh() {
	s.items = s.list.Items()
	if s.index(s.cursor) < 0 && len(s.items) > 0 {
		s.cursor = s.items[0].ID
	}
	s.clamp()
}

func (s *sidebar) index(id string) int {
	for i, c := range s.items {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *sidebar) move(step int) {
	if len(s.items) == 0 {
		return
	}
	i := min(max(s.index(s.cursor)+step, 0), len(s.items)-1)
	s.cursor = s.items[i].ID
	s.clamp()
}

// clamp keeps the cursor row on screen.
func (s *sidebar) clamp() {
	i := max(0, s.index(s.cursor))
	rows := max(1, s.height)
	if i < s.offset {
		s.offset = i
	}
	if i >= s.offset+rows {
		s.offset = i - rows + 1
	}
	s.offset = max(0, min(s.offset, len(s.items)-rows))
}

func (s *sidebar) Update(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, s.keys.Up):
		s.move(-1)
	case key.Matches(msg, s.keys.Down):
		s.move(1)
	case key.Matches(msg, s.keys.PgUp):
		s.move(-s.height)
	case key.Matches(msg, s.keys.PgDown):
		s.move(s.height)
	case key.Matches(msg, s.keys.Home):
		s.move(-len(s.items))
	case key.Matches(msg, s.keys.End):
		s.move(len(s.items))
	case key.Matches(msg, s.keys.Open):
		i := s.index(s.cursor)
		if i < 0 {
			return nil
		}
		c := s.items[i]
		return func() tea.Msg { return openConversationMsg{id: c.ID, title: c.Title} }
	}
	return nil
}

func (s *sidebar) View(focused bool) string {
	if len(s.items) == 0 {
		return infoStyle.Render(" No conversations")
	}
	var b strings.Builder
	end := min(len(s.items), s.offset+max(1, s.height))
	for i := s.offset; i < end; i++ {
		c := s.items[i]
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		line := ansi.Truncate(" "+title, s.width-1, "…")
		switch {
		case c.ID == s.cursor && focused:
			line = sidebarSelectedStyle.Render(line)
		case c.ID == s.open:
			line = sidebarOpenStyle.Render(line)
		default:
			line = sidebarItemStyle.Render(line)
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
