package tui

import (
	"context"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/wethinkt/go-threadview/internal/client"
	"github.com/wethinkt/go-threadview/internal/config"
	"github.com/wethinkt/go-threadview/internal/convlist"
	"github.com/wethinkt/go-threadview/internal/mediaurl"
	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// Deps are the backends the terminal view talks to. Bookmarks, Events and
// Refresher are optional.
type Deps struct {
	Pages     thread.PageFetcher
	Lister    thread.ConversationLister
	Deleter   thread.MessageDeleter
	Bookmarks thread.BookmarkStore
	Events    <-chan client.Event
	Refresher *mediaurl.Refresher
}

type (
	listMsg struct {
		page thread.ConversationPage
		err  error
	}
	eventMsg struct {
		ev client.Event
		ok bool
	}
	configMsg struct{ cfg config.ViewConfig }
)

type pane int

const (
	paneSidebar pane = iota
	paneConversation
)

// App is the root model: a conversation list beside the open conversation.
type App struct {
	deps    Deps
	keys    keyMap
	list    *convlist.Reconciler
	side    *sidebar
	conv    *conversationView
	focus   pane
	initial string
	status  string

	width, height int
}

// NewApp creates the root model. A non-empty initial id is opened on start.
func NewApp(deps Deps, cfg config.ViewConfig, initial string) *App {
	list := convlist.NewReconciler(deps.Lister, convlist.DefaultLimit)
	return &App{
		deps:    deps,
		keys:    defaultKeyMap(),
		list:    list,
		side:    newSidebar(list),
		conv:    newConversationView(deps, cfg),
		initial: initial,
	}
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.refetch(), a.waitEvent()}
	if a.initial != "" {
		a.focus = paneConversation
		a.side.open = a.initial
		cmds = append(cmds, a.conv.open(a.initial, ""))
	}
	return tea.Batch(cmds...)
}

func (a *App) refetch() tea.Cmd {
	if !a.list.BeginRefetch() {
		return nil
	}
	list := a.list
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		page, err := list.Fetch(ctx)
		return listMsg{page: page, err: err}
	}
}

func (a *App) waitEvent() tea.Cmd {
	events := a.deps.Events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		return eventMsg{ev: ev, ok: ok}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.layout()
		return a, nil

	case listMsg:
		again := a.list.CompleteRefetch(msg.page, msg.err)
		if msg.err != nil {
			a.status = "Could not load conversations"
		} else {
			a.status = ""
		}
		a.side.refresh()
		a.fillTitle()
		if again {
			return a, a.refetch()
		}
		return a, nil

	case eventMsg:
		if !msg.ok {
			tuilog.Log.Info("App.Update: event stream closed")
			return a, nil
		}
		return a, tea.Batch(a.handleEvent(msg.ev), a.waitEvent())

	case configMsg:
		tuilog.Log.Info("App.Update: view config reloaded")
		a.conv.applyConfig(msg.cfg)
		return a, nil

	case openConversationMsg:
		a.side.open = msg.id
		a.focus = paneConversation
		return a, a.conv.open(msg.id, msg.title)

	case tea.KeyMsg:
		return a, a.handleKey(msg)
	}
	return a, a.conv.Update(msg)
}

func (a *App) handleEvent(ev client.Event) tea.Cmd {
	if ev.Reconnected {
		// Changes made while disconnected were never seen.
		return tea.Batch(a.refetch(), a.conv.refreshTail())
	}

	var cmds []tea.Cmd
	var refetch bool
	switch ev.Kind {
	case thread.EventCreated:
		refetch = a.list.Created(convlist.CreatedNotice{
			ID:             ev.Conversation.ID,
			Title:          ev.Conversation.Title,
			InitialMessage: ev.InitialMessage,
			CreatedAt:      ev.Conversation.CreatedAt,
		})
	case thread.EventTitle:
		a.list.TitleUpdated(ev.Conversation.ID, ev.Conversation.Title)
	default:
		refetch = a.list.Apply(ev.ConversationEvent)
	}
	if refetch {
		cmds = append(cmds, a.refetch())
	}
	a.side.refresh()

	if ev.Conversation.ID == a.conv.ConversationID() {
		switch ev.Kind {
		case thread.EventTitle:
			a.conv.title = ev.Conversation.Title
		case thread.EventUpdate:
			if ev.Conversation.Title != "" {
				a.conv.title = ev.Conversation.Title
			}
			cmds = append(cmds, a.conv.refreshTail())
		case thread.EventDelete:
			a.status = "This conversation was deleted"
		}
	}
	return tea.Batch(cmds...)
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	selecting := a.focus == paneConversation && a.conv.sel.Active()
	switch {
	case key.Matches(msg, a.keys.Quit) && !(selecting && msg.String() == "q"):
		return tea.Quit
	case key.Matches(msg, a.keys.Focus):
		a.toggleFocus()
		return nil
	case key.Matches(msg, a.keys.Back) && a.focus == paneConversation && !selecting:
		a.focus = paneSidebar
		return nil
	}
	if a.focus == paneSidebar {
		return a.side.Update(msg)
	}
	return a.conv.Update(msg)
}

func (a *App) toggleFocus() {
	if a.focus == paneSidebar && a.conv.ConversationID() != "" {
		a.focus = paneConversation
	} else {
		a.focus = paneSidebar
	}
}

// fillTitle names a conversation opened by id once the list knows it.
func (a *App) fillTitle() {
	if a.conv.title != "" {
		return
	}
	for _, c := range a.list.Items() {
		if c.ID == a.conv.ConversationID() {
			a.conv.title = c.Title
			return
		}
	}
}

func (a *App) sidebarWidth() int {
	return min(max(a.width*25/100, 24), 40)
}

func (a *App) layout() {
	body := max(3, a.height-2) // header and footer
	sw := a.sidebarWidth()
	a.side.width, a.side.height = sw-2, body-2
	a.side.clamp()
	a.conv.setSize(max(10, a.width-sw-2), body-2)
}

func (a *App) View() tea.View {
	if a.width == 0 || a.height == 0 {
		v := tea.NewView("Loading...")
		v.AltScreen = true
		return v
	}

	title := a.conv.title
	if title == "" && a.conv.ConversationID() != "" {
		title = "Untitled"
	}
	header := titleStyle.Render("threadview")
	if title != "" {
		header += "  " + title
	}
	status := a.conv.statusLine()
	if a.status != "" {
		status = a.status
	}
	header += "  " + statusStyle.Render(status)

	body := max(3, a.height-2)
	sw := a.sidebarWidth()
	columns := lipgloss.JoinHorizontal(lipgloss.Top,
		renderPane(a.side.View(a.focus == paneSidebar), sw, body, a.focus == paneSidebar),
		renderPane(a.conv.View(), a.width-sw, body, a.focus == paneConversation),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		ansi.Truncate(header, a.width, "…"),
		columns,
		helpStyle.Render(ansi.Truncate(a.help(), a.width, "…")),
	)
	v := tea.NewView(content)
	v.AltScreen = true
	v.MouseMode = tea.MouseModeCellMotion
	return v
}

func (a *App) help() string {
	var bindings []key.Binding
	switch {
	case a.focus == paneSidebar:
		bindings = []key.Binding{a.keys.Up, a.keys.Down, a.keys.Open, a.keys.Focus, a.keys.Quit}
	case a.conv.sel.Active():
		bindings = []key.Binding{a.keys.PrevMsg, a.keys.NextMsg, a.keys.Toggle, a.keys.Delete, a.keys.Back}
	default:
		bindings = []key.Binding{a.keys.Up, a.keys.Down, a.keys.PrevMsg, a.keys.NextMsg, a.keys.Select, a.keys.Bookmark, a.keys.Back, a.keys.Quit}
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, " | ")
}

// renderPane draws content in a bordered box of the given outer size.
func renderPane(content string, width, height int, active bool) string {
	style := inactiveBorder
	if active {
		style = activeBorder
	}
	return style.Width(max(1, width-2)).Height(max(1, height-2)).Render(content)
}
