// Package selection implements the multi-select mode used to bulk delete messages.
package selection

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

var (
	ErrNotSelecting    = errors.New("selection mode is not active")
	ErrNothingSelected = errors.New("no messages selected")
	ErrDeleteInFlight  = errors.New("delete already in progress")
)

// Mode is the overlay state.
type Mode int

const (
	Browsing Mode = iota
	Selecting
)

func (m Mode) String() string {
	if m == Selecting {
		return "selecting"
	}
	return "browsing"
}

// Overlay holds the selection state of one conversation view.
type Overlay struct {
	mode     Mode
	selected map[string]struct{}
	deleting bool
}

// New returns an overlay in browsing mode.
func New() *Overlay {
	return &Overlay{selected: make(map[string]struct{})}
}

func (o *Overlay) Mode() Mode     { return o.mode }
func (o *Overlay) Active() bool   { return o.mode == Selecting }
func (o *Overlay) Len() int       { return len(o.selected) }
func (o *Overlay) Deleting() bool { return o.deleting }

// Has reports whether id is selected.
func (o *Overlay) Has(id string) bool {
	_, ok := o.selected[id]
	return ok
}

// Selected returns the selected ids, sorted.
func (o *Overlay) Selected() []string {
	ids := make([]string, 0, len(o.selected))
	for id := range o.selected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Enter switches to selecting mode.
func (o *Overlay) Enter() {
	o.mode = Selecting
}

// Toggle flips membership of id. It is a no-op outside selecting mode.
func (o *Overlay) Toggle(id string) bool {
	if o.mode != Selecting || id == "" {
		return false
	}
	if _, ok := o.selected[id]; ok {
		delete(o.selected, id)
		return false
	}
	o.selected[id] = struct{}{}
	return true
}

// Exit returns to browsing and clears the selection.
func (o *Overlay) Exit() {
	o.mode = Browsing
	clear(o.selected)
}

// Reset exits selection mode and forgets a delete in flight. Use it when the
// overlay is reused for another conversation and the pending result will be
// dropped.
func (o *Overlay) Reset() {
	o.Exit()
	o.deleting = false
}

// CanDelete reports whether a bulk delete may start.
func (o *Overlay) CanDelete() bool {
	return o.mode == Selecting && len(o.selected) > 0 && !o.deleting
}

// BeginDelete marks a delete in flight and returns the ids to delete.
func (o *Overlay) BeginDelete() ([]string, error) {
	switch {
	case o.mode != Selecting:
		return nil, ErrNotSelecting
	case o.deleting:
		return nil, ErrDeleteInFlight
	case len(o.selected) == 0:
		return nil, ErrNothingSelected
	}
	o.deleting = true
	return o.Selected(), nil
}

// FinishDelete applies the outcome of a delete started with BeginDelete. On
// success the ids are removed from the log and selection mode is exited. On
// failure the selection is kept so the user can retry.
func (o *Overlay) FinishDelete(ids []string, err error, log *thread.Log) {
	o.deleting = false
	if err != nil {
		tuilog.Log.Warn("Overlay.FinishDelete: delete failed", "count", len(ids), "error", err)
		return
	}
	removed := log.Remove(ids...)
	tuilog.Log.Info("Overlay.FinishDelete: deleted messages", "requested", len(ids), "removed", removed)
	o.Exit()
}

// DeleteSelected runs a bulk delete synchronously: BeginDelete, the delete
// call, then FinishDelete.
func (o *Overlay) DeleteSelected(ctx context.Context, d thread.MessageDeleter, log *thread.Log) error {
	ids, err := o.BeginDelete()
	if err != nil {
		return err
	}
	err = d.DeleteMessages(ctx, log.ConversationID(), ids)
	if err != nil {
		err = fmt.Errorf("delete %d messages: %w", len(ids), err)
	}
	o.FinishDelete(ids, err, log)
	return err
}
