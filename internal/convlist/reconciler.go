// Package convlist keeps the sidebar's conversation list consistent with
// out-of-band changes to sibling conversations.
package convlist

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// DefaultLimit is the size of the first page fetched on refetch.
const DefaultLimit = 50

// CreatedNotice announces a conversation created elsewhere, for example by
// another client of the same user.
type CreatedNotice struct {
	ID             string
	Title          string
	InitialMessage string
	CreatedAt      time.Time
}

// Reconciler owns the sorted conversation list. It is driven from a single
// event loop and is not safe for concurrent use; Fetch is the only method
// meant to run off the loop.
type Reconciler struct {
	lister thread.ConversationLister
	limit  int

	items []thread.ConversationSummary

	refetching bool
	pending    bool
}

// NewReconciler creates a reconciler that refetches up to limit rows.
func NewReconciler(lister thread.ConversationLister, limit int) *Reconciler {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Reconciler{lister: lister, limit: limit}
}

// Items returns a snapshot of the list, last activity descending.
func (r *Reconciler) Items() []thread.ConversationSummary {
	return slices.Clone(r.items)
}

// Len returns the number of rows.
func (r *Reconciler) Len() int { return len(r.items) }

// Replace installs a freshly fetched first page.
func (r *Reconciler) Replace(items []thread.ConversationSummary) {
	r.items = slices.Clone(items)
	sortList(r.items)
}

// Apply merges one change event. It returns true when the caller should start
// a refetch with BeginRefetch.
func (r *Reconciler) Apply(ev thread.ConversationEvent) bool {
	switch ev.Kind {
	case thread.EventUpdate:
		r.update(ev.Conversation)
		return false
	case thread.EventInsert, thread.EventDelete:
		return r.requestRefetch()
	default:
		tuilog.Log.Warn("Reconciler.Apply: unknown event kind", "kind", ev.Kind)
		return false
	}
}

// Created handles an externally created conversation. Creation shifts the
// list like an insert does.
func (r *Reconciler) Created(n CreatedNotice) bool {
	tuilog.Log.Debug("Reconciler.Created", "id", n.ID)
	return r.Apply(thread.ConversationEvent{
		Kind: thread.EventInsert,
		Conversation: thread.ConversationSummary{
			ID:           n.ID,
			Title:        n.Title,
			CreatedAt:    n.CreatedAt,
			LastActivity: n.CreatedAt,
		},
	})
}

// TitleUpdated patches the title of one conversation only.
func (r *Reconciler) TitleUpdated(id, title string) {
	if i := r.find(id); i >= 0 {
		r.items[i].Title = title
	}
}

func (r *Reconciler) update(c thread.ConversationSummary) {
	i := r.find(c.ID)
	if i < 0 {
		tuilog.Log.Debug("Reconciler.update: conversation not loaded", "id", c.ID)
		return
	}
	row := &r.items[i]
	if c.Title != "" {
		row.Title = c.Title
	}
	if c.Model != "" {
		row.Model = c.Model
	}
	if !c.LastActivity.IsZero() && !c.LastActivity.Equal(row.LastActivity) {
		row.LastActivity = c.LastActivity
		sortList(r.items)
	}
}

func (r *Reconciler) find(id string) int {
	return slices.IndexFunc(r.items, func(c thread.ConversationSummary) bool { return c.ID == id })
}

func (r *Reconciler) requestRefetch() bool {
	if r.refetching {
		r.pending = true
		return false
	}
	return true
}

// BeginRefetch marks a refetch in flight. It returns false if one already is;
// the request is then coalesced into a single follow-up.
func (r *Reconciler) BeginRefetch() bool {
	if r.refetching {
		r.pending = true
		return false
	}
	r.refetching = true
	return true
}

// Fetch loads the first page. It may run off the event loop.
func (r *Reconciler) Fetch(ctx context.Context) (thread.ConversationPage, error) {
	page, err := r.lister.ListConversations(ctx, "", r.limit)
	if err != nil {
		return thread.ConversationPage{}, fmt.Errorf("list conversations: %w", err)
	}
	return page, nil
}

// CompleteRefetch installs the result of Fetch. On error the current list is
// kept. It returns true when another refetch was requested meanwhile.
func (r *Reconciler) CompleteRefetch(page thread.ConversationPage, err error) bool {
	r.refetching = false
	if err != nil {
		tuilog.Log.Warn("Reconciler.CompleteRefetch: keeping current list", "error", err)
	} else {
		r.Replace(page.Conversations)
	}
	again := r.pending
	r.pending = false
	return again
}

// sortList orders by last activity descending; ties keep creation order.
func sortList(items []thread.ConversationSummary) {
	slices.SortStableFunc(items, func(a, b thread.ConversationSummary) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
