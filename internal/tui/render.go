package tui

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"

	"github.com/wethinkt/go-threadview/internal/mediaindex"
	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// blockKey identifies a rendered message body. Headers are cheap and
// rendered every time; bodies are cached.
type blockKey struct {
	version int
	width   int
	stamp   int
}

type block struct {
	key  blockKey
	text string
}

// renderer turns messages into terminal text.
type renderer struct {
	markdown bool
	style    string
	resolve  mediaindex.ResolveOptions

	width int
	glam  *glamour.TermRenderer
	cache map[string]block
	stamp int
}

func newRenderer(markdown bool, style string, imagesAsURL bool) *renderer {
	if style == "" {
		style = "dark"
	}
	return &renderer{
		markdown: markdown,
		style:    style,
		resolve:  mediaindex.ResolveOptions{ImagesAsURL: imagesAsURL},
		cache:    make(map[string]block),
	}
}

// invalidate drops every cached body, for example after the index or the
// refreshed URL set changed.
func (r *renderer) invalidate() {
	r.stamp++
}

// forget drops the cached body of ids that left the log.
func (r *renderer) forget(keep func(id string) bool) {
	for id := range r.cache {
		if !keep(id) {
			delete(r.cache, id)
		}
	}
}

func (r *renderer) setWidth(width int) {
	width = max(20, width)
	if width == r.width {
		return
	}
	r.width = width
	r.glam = nil
	if r.markdown {
		g, err := glamour.NewTermRenderer(
			glamour.WithStylePath(r.style),
			glamour.WithWordWrap(width-2),
		)
		if err != nil {
			tuilog.Log.Warn("renderer.setWidth: glamour unavailable, using plain text", "error", err)
		} else {
			r.glam = g
		}
	}
}

// marks are the per-message decorations drawn in the header.
type marks struct {
	cursor     bool
	selecting  bool
	selected   bool
	bookmarked bool
}

// header renders the one-line message header, truncated to the width.
func (r *renderer) header(m thread.Message, mk marks) string {
	var b strings.Builder
	if mk.cursor {
		b.WriteString(cursorStyle.Render("▌"))
	} else {
		b.WriteString(" ")
	}
	if mk.selecting {
		if mk.selected {
			b.WriteString(selectedStyle.Render("[x] "))
		} else {
			b.WriteString("[ ] ")
		}
	}
	switch m.Role {
	case thread.RoleUser:
		b.WriteString(userLabelStyle.Render("You"))
	default:
		b.WriteString(assistantLabelStyle.Render("Assistant"))
	}
	if mk.bookmarked {
		b.WriteString(bookmarkStyle.Render(" ★"))
	}
	meta := []string{}
	if !m.CreatedAt.IsZero() {
		meta = append(meta, m.CreatedAt.Local().Format("Jan 2 15:04"))
	}
	if m.Model != "" {
		meta = append(meta, m.Model)
	}
	if len(meta) > 0 {
		b.WriteString(infoStyle.Render("  " + strings.Join(meta, " · ")))
	}
	return ansi.Truncate(b.String(), r.width, "…")
}

// body renders the message content, reusing the cached text when the
// message version, width and index stamp are unchanged.
func (r *renderer) body(m thread.Message, x *mediaindex.Index, fresh map[string]string) string {
	k := blockKey{version: m.Version, width: r.width, stamp: r.stamp}
	if b, ok := r.cache[m.ID]; ok && b.key == k {
		return b.text
	}

	var parts []string
	if text := strings.TrimSpace(m.Text()); text != "" {
		text = mediaindex.Resolve(text, x, r.resolve)
		for old, u := range fresh {
			if old != u {
				text = strings.ReplaceAll(text, old, u)
			}
		}
		parts = append(parts, r.text(text))
	}
	for _, p := range m.Parts {
		if line := toolLine(p); line != "" {
			parts = append(parts, toolStyle.Render(ansi.Truncate("  "+line, r.width, "…")))
		}
	}
	for _, a := range m.Attachments {
		parts = append(parts, mediaStyle.Render(ansi.Truncate("  "+attachmentLine(a), r.width, "…")))
	}

	out := strings.Join(parts, "\n")
	r.cache[m.ID] = block{key: k, text: out}
	return out
}

func (r *renderer) text(s string) string {
	if r.glam != nil {
		out, err := r.glam.Render(s)
		if err == nil {
			return strings.Trim(out, "\n")
		}
		tuilog.Log.Debug("renderer.text: glamour render failed", "error", err)
	}
	return lipgloss.NewStyle().Width(r.width - 2).PaddingLeft(2).Render(s)
}

// toolLine summarizes a tool part, or returns "" for non-tool parts.
func toolLine(p thread.ContentPart) string {
	name := p.ToolFamily()
	if name == "" {
		return ""
	}
	out := p.Result()
	switch {
	case out == nil:
		return fmt.Sprintf("⚙ %s: running", name)
	case !out.Succeeded():
		return fmt.Sprintf("⚙ %s: failed", name)
	case len(out.Items) == 1:
		return fmt.Sprintf("⚙ %s: 1 result", name)
	default:
		return fmt.Sprintf("⚙ %s: %d results", name, len(out.Items))
	}
}

func attachmentLine(a thread.Attachment) string {
	name := a.Name
	if name == "" {
		name = a.URL
	}
	line := "📎 " + name
	if a.ContentType != "" {
		line += " (" + a.ContentType
		if a.Metadata.Width > 0 && a.Metadata.Height > 0 {
			line += fmt.Sprintf(", %dx%d", a.Metadata.Width, a.Metadata.Height)
		}
		line += ")"
	}
	return line
}
