package thread

import (
	"fmt"
	"testing"
	"time"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(seq int) Message {
	return Message{
		ID:        fmt.Sprintf("msg_%d", seq),
		Role:      RoleUser,
		Sequence:  int64(seq),
		CreatedAt: epoch.Add(time.Duration(seq) * time.Second),
	}
}

func msgRange(from, to int) []Message {
	var out []Message
	for i := from; i <= to; i++ {
		out = append(out, msg(i))
	}
	return out
}

func assertOrdered(t *testing.T, l *Log) {
	t.Helper()
	seen := make(map[string]bool)
	for i := 0; i < l.Len(); i++ {
		m := l.At(i)
		if seen[m.ID] {
			t.Fatalf("duplicate id %s at %d", m.ID, i)
		}
		seen[m.ID] = true
		if i > 0 && l.At(i-1).Sequence >= m.Sequence {
			t.Fatalf("not strictly ascending at %d: %d then %d", i, l.At(i-1).Sequence, m.Sequence)
		}
		if pos, ok := l.Position(m.ID); !ok || pos != i {
			t.Fatalf("Position(%s) = %d, %v; want %d", m.ID, pos, ok, i)
		}
	}
}

func TestAppendIdempotent(t *testing.T) {
	l := NewLog("c1")
	if !l.Append(msg(1)) {
		t.Fatal("first append rejected")
	}
	if l.Append(msg(1)) {
		t.Error("duplicate append accepted")
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	// Existing record wins on a duplicate insert.
	dup := msg(1)
	dup.Parts = []ContentPart{{Type: PartText, Text: "replacement"}}
	l.Append(dup)
	got, _ := l.Get("msg_1")
	if got.Text() != "" {
		t.Errorf("duplicate append replaced content: %q", got.Text())
	}
}

func TestAppendMarksOnlyItsID(t *testing.T) {
	l := NewLog("c1")
	l.PrependPage(msgRange(1, 5))
	l.TakeDirty()

	l.Append(msg(6))
	ids, full := l.TakeDirty()
	if full {
		t.Error("append requested a full rebuild")
	}
	if len(ids) != 1 || ids[0] != "msg_6" {
		t.Errorf("dirty = %v, want [msg_6]", ids)
	}
	if latest, _ := l.Latest(); latest.ID != "msg_6" {
		t.Errorf("Latest() = %s, want msg_6", latest.ID)
	}

	ids, full = l.TakeDirty()
	if full || len(ids) != 0 {
		t.Errorf("dirty not reset: %v, %v", ids, full)
	}
}

func TestPrependPageCompleteness(t *testing.T) {
	l := NewLog("c1")
	if n := l.PrependPage(msgRange(86, 100)); n != 15 {
		t.Fatalf("initial page added %d, want 15", n)
	}
	if n := l.PrependPage(msgRange(71, 85)); n != 15 {
		t.Fatalf("older page added %d, want 15", n)
	}

	if l.Len() != 30 {
		t.Fatalf("Len() = %d, want 30", l.Len())
	}
	assertOrdered(t, l)
	if head, _ := l.Head(); head.ID != "msg_71" {
		t.Errorf("Head() = %s, want msg_71", head.ID)
	}
	if latest, _ := l.Latest(); latest.ID != "msg_100" {
		t.Errorf("Latest() = %s, want msg_100", latest.ID)
	}
	if l.OldestSequence() != 71 {
		t.Errorf("OldestSequence() = %d, want 71", l.OldestSequence())
	}
	if _, full := l.TakeDirty(); !full {
		t.Error("prepend did not request a full rebuild")
	}
}

func TestPrependPageOutOfOrderAndDuplicates(t *testing.T) {
	l := NewLog("c1")
	l.PrependPage(msgRange(10, 20))

	page := []Message{msg(7), msg(9), msg(12), msg(8), msg(9), msg(6)}
	existing := msg(12)
	existing.Parts = []ContentPart{{Type: PartText, Text: "late copy"}}
	page[2] = existing

	if n := l.PrependPage(page); n != 4 {
		t.Fatalf("added %d, want 4", n)
	}
	assertOrdered(t, l)
	if l.Len() != 15 {
		t.Errorf("Len() = %d, want 15", l.Len())
	}
	if got, _ := l.Get("msg_12"); got.Text() != "" {
		t.Error("late duplicate overwrote existing record")
	}
}

func TestPrependPageOverlappingHead(t *testing.T) {
	l := NewLog("c1")
	l.PrependPage([]Message{msg(10), msg(12), msg(14)})

	// A page straddling the head must interleave, not stack.
	l.PrependPage([]Message{msg(9), msg(11), msg(13)})
	assertOrdered(t, l)

	var ids []string
	for _, m := range l.Records() {
		ids = append(ids, m.ID)
	}
	want := []string{"msg_9", "msg_10", "msg_11", "msg_12", "msg_13", "msg_14"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestPrependPageReusesFrontRoom(t *testing.T) {
	l := NewLog("c1")
	l.PrependPage(msgRange(991, 1000))
	l.Append(msg(1001))

	moves := 0
	tail := &l.records[len(l.records)-1]
	for top := 990; top > 0; top -= 10 {
		l.PrependPage(msgRange(top-9, top))
		if p := &l.records[len(l.records)-1]; p != tail {
			moves++
			tail = p
		}
	}

	if l.Len() != 1001 {
		t.Fatalf("len = %d, want 1001", l.Len())
	}
	assertOrdered(t, l)
	if m, _ := l.Latest(); m.ID != "msg_1001" {
		t.Errorf("latest = %s", m.ID)
	}
	// Front room doubles with the log, so 99 pages regrow it only a few times.
	if moves > 10 {
		t.Errorf("records moved %d times over 99 prepends", moves)
	}
	if i, _ := l.Position("msg_500"); i != 499 {
		t.Errorf("msg_500 at %d, want 499", i)
	}
}

func TestMutate(t *testing.T) {
	l := NewLog("c1")
	l.PrependPage(msgRange(1, 3))
	l.TakeDirty()

	ok := l.Mutate("msg_2", Patch{Parts: []ContentPart{{Type: PartText, Text: "hello"}}})
	if !ok {
		t.Fatal("Mutate returned false for a known id")
	}
	got, _ := l.Get("msg_2")
	if got.Text() != "hello" || got.Version != 1 {
		t.Errorf("got text %q version %d", got.Text(), got.Version)
	}

	l.Mutate("msg_2", Patch{Annotations: []Annotation{{Type: "progress"}}})
	got, _ = l.Get("msg_2")
	if got.Text() != "hello" {
		t.Error("nil Parts in patch cleared existing parts")
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}

	ids, full := l.TakeDirty()
	if full || len(ids) != 1 || ids[0] != "msg_2" {
		t.Errorf("dirty = %v full=%v, want [msg_2]", ids, full)
	}

	if l.Mutate("missing", Patch{}) {
		t.Error("Mutate on unknown id returned true")
	}
	assertOrdered(t, l)
}

func TestRemove(t *testing.T) {
	l := NewLog("c1")
	l.PrependPage(msgRange(1, 6))
	l.TakeDirty()

	if n := l.Remove("msg_2", "msg_5", "nope"); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if l.Len() != 4 {
		t.Errorf("Len() = %d, want 4", l.Len())
	}
	if l.Has("msg_2") || l.Has("msg_5") {
		t.Error("removed ids still present")
	}
	assertOrdered(t, l)
	if _, full := l.TakeDirty(); !full {
		t.Error("remove did not request a full rebuild")
	}

	if n := l.Remove("nope"); n != 0 {
		t.Errorf("removing unknown id returned %d", n)
	}
	if _, full := l.TakeDirty(); full {
		t.Error("no-op remove requested a rebuild")
	}

	// Positions stay consistent for later appends and prepends.
	l.Append(msg(7))
	l.PrependPage([]Message{msg(0)})
	assertOrdered(t, l)
}

func TestEmptyLog(t *testing.T) {
	l := NewLog("c1")
	if _, ok := l.Head(); ok {
		t.Error("Head() on empty log returned ok")
	}
	if _, ok := l.Latest(); ok {
		t.Error("Latest() on empty log returned ok")
	}
	if l.OldestSequence() != 0 {
		t.Error("OldestSequence() on empty log is not 0")
	}
	if l.PrependPage(nil) != 0 {
		t.Error("empty page added records")
	}
	if l.Append(Message{}) {
		t.Error("record without id accepted")
	}
}

func TestToolFamily(t *testing.T) {
	tests := []struct {
		part ContentPart
		want string
	}{
		{ContentPart{Type: "tool-gemini_image_tool"}, "gemini_image_tool"},
		{ContentPart{Type: PartToolResult, ToolName: "web_search"}, "web_search"},
		{ContentPart{Type: "data-wan25_video_complete"}, "wan25_video"},
		{ContentPart{Type: "data-progress"}, ""},
		{ContentPart{Type: PartText}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.part.Type, func(t *testing.T) {
			if got := tt.part.ToolFamily(); got != tt.want {
				t.Errorf("ToolFamily() = %q, want %q", got, tt.want)
			}
		})
	}
}
