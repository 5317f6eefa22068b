package thread

import (
	"slices"

	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// Log is the ordered, id-keyed store of message records for one open
// conversation. It is owned by a single view and is not safe for concurrent use.
//
// Records occupy contiguous slots [head, head+len). Prepending moves head
// down, so only the merged region needs its slot updated.
//
// records is buf[front:]. The free room below front takes prepended pages
// without moving the loaded records; it is regrown to at least the log's
// length, so prepends copy the log only after as many records were added.
type Log struct {
	conversationID string

	buf     []Message
	front   int
	records []Message
	slot    map[string]int
	head    int

	dirty   map[string]struct{}
	rebuild bool
}

// NewLog creates an empty log for a conversation.
func NewLog(conversationID string) *Log {
	return &Log{
		conversationID: conversationID,
		slot:           make(map[string]int),
		dirty:          make(map[string]struct{}),
	}
}

// ConversationID returns the conversation this log belongs to.
func (l *Log) ConversationID() string { return l.conversationID }

// Len returns the number of records.
func (l *Log) Len() int { return len(l.records) }

// Has reports whether a record with the id is present.
func (l *Log) Has(id string) bool {
	_, ok := l.slot[id]
	return ok
}

// Position returns the current index of a record.
func (l *Log) Position(id string) (int, bool) {
	s, ok := l.slot[id]
	if !ok {
		return 0, false
	}
	return s - l.head, true
}

// At returns the record at index i. It panics when i is out of range.
func (l *Log) At(i int) Message { return l.records[i] }

// Get returns the record with the id.
func (l *Log) Get(id string) (Message, bool) {
	i, ok := l.Position(id)
	if !ok {
		return Message{}, false
	}
	return l.records[i], true
}

// Records returns an ordered snapshot of all records.
func (l *Log) Records() []Message {
	return slices.Clone(l.records)
}

// Head returns the oldest loaded record.
func (l *Log) Head() (Message, bool) {
	if len(l.records) == 0 {
		return Message{}, false
	}
	return l.records[0], true
}

// Latest returns the newest record.
func (l *Log) Latest() (Message, bool) {
	if len(l.records) == 0 {
		return Message{}, false
	}
	return l.records[len(l.records)-1], true
}

// OldestSequence returns the sequence of the head record, the cursor for the
// next older page. It returns 0 for an empty log.
func (l *Log) OldestSequence() int64 {
	if len(l.records) == 0 {
		return 0
	}
	return l.records[0].Sequence
}

// Append adds a record at the tail. It is a no-op returning false when a
// record with the same id is already present.
func (l *Log) Append(m Message) bool {
	if m.ID == "" {
		return false
	}
	if _, ok := l.slot[m.ID]; ok {
		tuilog.Log.Debug("Log.Append: duplicate id ignored", "id", m.ID)
		return false
	}
	l.slot[m.ID] = l.head + len(l.records)
	l.buf = append(l.buf, m)
	l.records = l.buf[l.front:]
	l.dirty[m.ID] = struct{}{}
	return true
}

// PrependPage merges an older page ahead of the current head. Records whose
// id is already present are dropped, the existing record wins. The page is
// sorted by conversation order first, so out-of-order delivery is tolerated.
// Only the head region overlapping the page is walked. It returns the
// number of records added.
func (l *Log) PrependPage(page []Message) int {
	fresh := make([]Message, 0, len(page))
	seen := make(map[string]struct{}, len(page))
	for _, m := range page {
		if m.ID == "" {
			continue
		}
		if _, ok := l.slot[m.ID]; ok {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}
	slices.SortStableFunc(fresh, compare)

	// Head records that sort before the newest page record must be merged.
	newest := fresh[len(fresh)-1]
	overlap := 0
	for overlap < len(l.records) && l.records[overlap].Before(newest) {
		overlap++
	}
	if overlap > 0 {
		tuilog.Log.Warn("Log.PrependPage: page overlaps loaded head", "page", len(fresh), "overlap", overlap)
	}

	merged := make([]Message, 0, len(fresh)+overlap)
	i, j := 0, 0
	for i < len(fresh) || j < overlap {
		switch {
		case j >= overlap:
			merged = append(merged, fresh[i])
			i++
		case i >= len(fresh):
			merged = append(merged, l.records[j])
			j++
		case l.records[j].Before(fresh[i]):
			merged = append(merged, l.records[j])
			j++
		default:
			merged = append(merged, fresh[i])
			i++
		}
	}

	l.reserveFront(len(fresh))
	l.front -= len(fresh)
	copy(l.buf[l.front:], merged)
	l.records = l.buf[l.front:]
	l.head -= len(fresh)
	for k, m := range merged {
		l.slot[m.ID] = l.head + k
	}
	l.rebuild = true
	return len(fresh)
}

// reserveFront makes room for n records below front.
func (l *Log) reserveFront(n int) {
	if l.front >= n {
		return
	}
	room := max(n, len(l.records))
	buf := make([]Message, room+len(l.records), room+2*len(l.records)+n)
	copy(buf[room:], l.records)
	l.buf, l.front = buf, room
	l.records = l.buf[l.front:]
}

// Mutate replaces streamed content of one record in place and bumps its
// version. It returns false for an unknown id.
func (l *Log) Mutate(id string, p Patch) bool {
	i, ok := l.Position(id)
	if !ok {
		return false
	}
	m := &l.records[i]
	if p.Parts != nil {
		m.Parts = p.Parts
	}
	if p.Annotations != nil {
		m.Annotations = p.Annotations
	}
	if p.Attachments != nil {
		m.Attachments = p.Attachments
	}
	m.Version++
	l.dirty[id] = struct{}{}
	return true
}

// Remove deletes the records with the given ids. Unknown ids are ignored.
// It returns the number of records removed.
func (l *Log) Remove(ids ...string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := l.slot[id]; ok {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	kept := l.records[:0]
	for _, m := range l.records {
		if _, ok := drop[m.ID]; ok {
			delete(l.slot, m.ID)
			delete(l.dirty, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	clear(l.records[len(kept):])
	l.buf = l.buf[:l.front+len(kept)]
	l.records = kept
	for k, m := range l.records {
		l.slot[m.ID] = l.head + k
	}
	l.rebuild = true
	return len(drop)
}

// TakeDirty returns the ids changed by Append or Mutate since the last call,
// in log order, and whether a structural change requires a full rebuild of
// derived state. The dirty set is reset.
func (l *Log) TakeDirty() (ids []string, full bool) {
	full = l.rebuild
	if !full && len(l.dirty) > 0 {
		ids = make([]string, 0, len(l.dirty))
		for id := range l.dirty {
			ids = append(ids, id)
		}
		slices.SortFunc(ids, func(a, b string) int {
			return l.slot[a] - l.slot[b]
		})
	}
	clear(l.dirty)
	l.rebuild = false
	return ids, full
}

func compare(a, b Message) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	}
	return 0
}
