package mediaindex

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/wethinkt/go-threadview/internal/thread"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ok() *bool  { v := true; return &v }
func bad() *bool { v := false; return &v }

func record(seq int, parts ...thread.ContentPart) thread.Message {
	return thread.Message{
		ID:        fmt.Sprintf("msg_%d", seq),
		Role:      thread.RoleAssistant,
		Sequence:  int64(seq),
		CreatedAt: epoch.Add(time.Duration(seq) * time.Second),
		Parts:     parts,
	}
}

func imagePart(items ...thread.MediaItem) thread.ContentPart {
	return thread.ContentPart{Type: "tool-gemini_image_tool", Output: &thread.ToolOutput{Success: ok(), Items: items}}
}

func videoPart(items ...thread.MediaItem) thread.ContentPart {
	return thread.ContentPart{Type: "data-wan25_video_complete", Data: &thread.ToolOutput{Success: ok(), Items: items}}
}

func mustJSON(t *testing.T, x *Index) string {
	t.Helper()
	b, err := json.Marshal(x)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestDedupByPath(t *testing.T) {
	const p = "generated/images/abc123.png"
	recs := []thread.Message{
		record(1, imagePart(thread.MediaItem{URL: "https://cdn/abc123.png?sig=one", Path: p})),
		record(2, imagePart(thread.MediaItem{URL: "https://cdn/abc123.png?sig=two", Path: p})),
	}
	x := NewBuilder().Build(recs)

	if got := x.Images["generated_image_1"]; got != "https://cdn/abc123.png?sig=one" {
		t.Errorf("generated_image_1 = %q", got)
	}
	if got := x.Images["abc123"]; got != "https://cdn/abc123.png?sig=one" {
		t.Errorf("stem abc123 = %q", got)
	}
	if _, exists := x.Images["generated_image_2"]; exists {
		t.Error("duplicate path produced generated_image_2")
	}
	if len(x.Images) != 2 {
		t.Errorf("len(Images) = %d, want 2: %v", len(x.Images), x.Images)
	}
}

func TestDeterminism(t *testing.T) {
	recs := []thread.Message{
		record(1, imagePart(
			thread.MediaItem{URL: "u1", Path: "a/one.png", Prompt: "a cat", Width: 512, Height: 512},
			thread.MediaItem{URL: "u2", SizeLabel: "1024x768", SourceURL: "src"},
		)),
		record(2, videoPart(thread.MediaItem{URL: "v1", Path: "v/clip.mp4", SizeLabel: "1280*720", AspectRatio: "16:9"})),
		record(3, thread.ContentPart{Type: "tool-web_search", Output: &thread.ToolOutput{Success: ok(), Items: []thread.MediaItem{
			{ID: "link_1", URL: "https://example.com", Title: "Example", Thumbnail: "https://example.com/t.png"},
			{ID: "img_1", Type: "image", URL: "https://example.com/i.png"},
		}}}),
	}

	a := mustJSON(t, NewBuilder().Build(recs))
	b := mustJSON(t, NewBuilder().Build(recs))
	if a != b {
		t.Fatalf("rebuild differs:\n%s\n%s", a, b)
	}

	// Same builder, second build, must match too.
	bl := NewBuilder()
	bl.Build(recs)
	if c := mustJSON(t, bl.Build(recs)); c != a {
		t.Fatalf("second build on same builder differs:\n%s\n%s", a, c)
	}
}

func TestExtractionRules(t *testing.T) {
	recs := []thread.Message{
		record(1, imagePart(
			thread.MediaItem{URL: "u1", Path: "a/one.png", Prompt: "a cat", SourceURL: "orig", Width: 512, Height: 256},
			thread.MediaItem{URL: "u2", SizeLabel: "1024×768"},
			thread.MediaItem{Path: "no/url.png"},
		)),
		record(2, videoPart(thread.MediaItem{URL: "v1", Path: "v/clip.mp4", SizeLabel: "720p", AspectRatio: "9/16"})),
		record(3, thread.ContentPart{Type: "tool-seedream_image_tool", Output: &thread.ToolOutput{Success: bad(), Items: []thread.MediaItem{{URL: "failed"}}}}),
		record(4, thread.ContentPart{Type: "tool-qwen_image_edit", Output: &thread.ToolOutput{Items: []thread.MediaItem{{URL: "missing-success"}}}}),
		record(5, thread.ContentPart{Type: thread.PartToolResult, ToolName: "link_reader", Output: &thread.ToolOutput{Success: ok(), Items: []thread.MediaItem{
			{ID: "L1", URL: "https://go.dev", Title: "Go"},
		}}}),
		record(6, thread.ContentPart{Type: "tool-video_upscaler", Output: &thread.ToolOutput{Success: ok(), Items: []thread.MediaItem{{URL: "v2"}}}}),
	}
	x := NewBuilder().Build(recs)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"generated_image_1", x.Images["generated_image_1"], "u1"},
		{"generated_image_2", x.Images["generated_image_2"], "u2"},
		{"stem one", x.Images["one"], "u1"},
		{"prompt", x.Prompts["u1"], "a cat"},
		{"source", x.SourceImages["u1"], "orig"},
		{"dims explicit", x.Dimensions["u1"], Dimensions{512, 256}},
		{"dims size label", x.Dimensions["u2"], Dimensions{1024, 768}},
		{"dims aspect ratio", x.Dimensions["v1"], Dimensions{9, 16}},
		{"generated_video_1", x.Videos["generated_video_1"], Video{URL: "v1", Size: "720p"}},
		{"video stem", x.Videos["clip"], Video{URL: "v1", Size: "720p"}},
		{"upscaled video", x.Videos["generated_video_2"], Video{URL: "v2"}},
		{"link", x.Links["L1"], "https://go.dev"},
		{"title", x.Titles["https://go.dev"], "Go"},
		{"image count", len(x.Images), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestUploadsLongerRepresentationWins(t *testing.T) {
	m1 := record(1, thread.ContentPart{Type: thread.PartFile, MediaType: "image/png", URL: "p1", Filename: "cat.png"})
	m1.Role = thread.RoleUser
	m1.Attachments = []thread.Attachment{
		{URL: "a1", ContentType: "image/png", Name: "one.png", Metadata: thread.AttachmentMeta{Width: 640, Height: 480}},
		{URL: "a2", ContentType: "image/jpeg"},
	}
	m2 := record(2, thread.ContentPart{Type: thread.PartImage, URL: "p2"})
	m2.Role = thread.RoleUser
	m2.Attachments = []thread.Attachment{{URL: "a3", ContentType: "image/png"}}
	m3 := record(3, thread.ContentPart{Type: thread.PartFile, MediaType: "video/mp4", URL: "vid"})

	x := NewBuilder().Build([]thread.Message{m1, m2, m3})

	want := map[string]string{"uploaded_image_1": "a1", "uploaded_image_2": "a2", "uploaded_image_3": "p2"}
	for k, v := range want {
		if x.Images[k] != v {
			t.Errorf("Images[%s] = %q, want %q", k, x.Images[k], v)
		}
	}
	if got := x.Uploads["uploaded_image_1"]; got != (Upload{URL: "a1", Filename: "one.png"}) {
		t.Errorf("upload meta = %+v", got)
	}
	if got := x.Uploads["uploaded_image_2"].Filename; got != "image.jpg" {
		t.Errorf("default filename = %q", got)
	}
	if got := x.Dimensions["a1"]; got != (Dimensions{640, 480}) {
		t.Errorf("attachment dims = %+v", got)
	}
	if got := x.Videos["uploaded_video_1"].URL; got != "vid" {
		t.Errorf("uploaded_video_1 = %q", got)
	}
}

func TestSyncMatchesFullRebuild(t *testing.T) {
	l := thread.NewLog("c1")
	b := NewBuilder()

	check := func(step string) {
		t.Helper()
		got := mustJSON(t, b.Sync(l))
		want := mustJSON(t, NewBuilder().Build(l.Records()))
		if got != want {
			t.Fatalf("%s: incremental differs from rebuild:\n got %s\nwant %s", step, got, want)
		}
	}

	l.PrependPage([]thread.Message{
		record(10, imagePart(thread.MediaItem{URL: "u10", Path: "x/ten.png"})),
		record(11, videoPart(thread.MediaItem{URL: "v11"})),
	})
	check("initial page")

	l.Append(record(12))
	check("append empty")

	// Streaming: the tail grows a tool result.
	l.Mutate("msg_12", thread.Patch{Parts: []thread.ContentPart{
		{Type: thread.PartText, Text: "here you go"},
		imagePart(thread.MediaItem{URL: "u12", Prompt: "dog"}),
	}})
	check("stream tool result")

	l.Mutate("msg_12", thread.Patch{Parts: []thread.ContentPart{
		{Type: thread.PartText, Text: "here you go, updated"},
		imagePart(thread.MediaItem{URL: "u12", Prompt: "dog"}),
	}})
	check("stream text only")

	// A middle record changes its key count, shifting later numbering.
	l.Append(record(13, imagePart(thread.MediaItem{URL: "u13"})))
	check("append with media")
	l.Mutate("msg_11", thread.Patch{Parts: []thread.ContentPart{
		imagePart(thread.MediaItem{URL: "u11a"}, thread.MediaItem{URL: "u11b", Path: "x/ten.png"}),
	}})
	check("middle record grows")

	// A middle record now claims a path a later record owned.
	l.Mutate("msg_11", thread.Patch{Parts: []thread.ContentPart{
		imagePart(thread.MediaItem{URL: "u13"}),
	}})
	check("middle record takes later key")

	l.PrependPage([]thread.Message{record(9, imagePart(thread.MediaItem{URL: "u9"}))})
	check("older page")

	l.Remove("msg_10")
	check("remove")

	l.Append(record(14, imagePart(thread.MediaItem{URL: "u14"})))
	l.Append(record(15, imagePart(thread.MediaItem{URL: "u15"})))
	check("two appends")
}

func TestSyncIncrementalKeepsEarlierKeys(t *testing.T) {
	l := thread.NewLog("c1")
	l.PrependPage([]thread.Message{
		record(1, imagePart(thread.MediaItem{URL: "u1"})),
		record(2, imagePart(thread.MediaItem{URL: "u2"})),
	})
	b := NewBuilder()
	b.Sync(l)

	l.Append(record(3))
	l.Mutate("msg_3", thread.Patch{Parts: []thread.ContentPart{imagePart(thread.MediaItem{URL: "u3"})}})
	x := b.Sync(l)

	for i, want := range []string{"u1", "u2", "u3"} {
		key := fmt.Sprintf("generated_image_%d", i+1)
		if x.Images[key] != want {
			t.Errorf("%s = %q, want %q", key, x.Images[key], want)
		}
	}
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		item thread.MediaItem
		want Dimensions
		ok   bool
	}{
		{thread.MediaItem{Width: 10, Height: 20}, Dimensions{10, 20}, true},
		{thread.MediaItem{Width: 10}, Dimensions{}, false},
		{thread.MediaItem{SizeLabel: "1024x1024"}, Dimensions{1024, 1024}, true},
		{thread.MediaItem{SizeLabel: "1280*720"}, Dimensions{1280, 720}, true},
		{thread.MediaItem{SizeLabel: " 800 × 600 "}, Dimensions{800, 600}, true},
		{thread.MediaItem{SizeLabel: "large", AspectRatio: "4:3"}, Dimensions{4, 3}, true},
		{thread.MediaItem{AspectRatio: "16/9"}, Dimensions{16, 9}, true},
		{thread.MediaItem{AspectRatio: "x:9"}, Dimensions{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDimensions(tt.item)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseDimensions(%+v) = %v, %v; want %v, %v", tt.item, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"generated/images/abc123.png": "abc123",
		"clip.tar.gz":                 "clip.tar",
		"noext":                       "noext",
		"":                            "",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}
