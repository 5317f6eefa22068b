// Package mediaindex derives synthetic-key lookup maps (uploaded and generated
// media, links, prompts, provenance, layout hints) from the tool output and
// attachments embedded in a conversation's message records.
package mediaindex

import (
	"strings"

	"github.com/wethinkt/go-threadview/internal/thread"
)

// Kind classifies one extracted entry.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
	KindLink
	KindSearchImage
	KindUploadImage
	KindUploadVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindLink:
		return "link"
	case KindSearchImage:
		return "search_image"
	case KindUploadImage:
		return "upload_image"
	case KindUploadVideo:
		return "upload_video"
	}
	return "unknown"
}

// Extracted is one media entry produced by a part, in document order.
type Extracted struct {
	Kind     Kind
	Item     thread.MediaItem
	Filename string
}

// MediaProducingTool is one tool family whose output can contribute media.
type MediaProducingTool interface {
	Name() string
	Handles(p thread.ContentPart) bool
	ExtractItems(p thread.ContentPart) []Extracted
}

// family matches parts whose tool family starts with any of the prefixes.
type family []string

func (f family) handles(p thread.ContentPart) bool {
	name := p.ToolFamily()
	if name == "" {
		return false
	}
	for _, prefix := range f {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// generated returns the items of a successful payload that carry a URL.
func generated(p thread.ContentPart, kind Kind) []Extracted {
	out := p.Result()
	if !out.Succeeded() {
		return nil
	}
	var items []Extracted
	for _, it := range out.Items {
		if it.URL == "" {
			continue
		}
		items = append(items, Extracted{Kind: kind, Item: it})
	}
	return items
}

// ImageTool covers image generation and editing tools.
type ImageTool struct{ Prefixes []string }

func (t ImageTool) Name() string                      { return "image" }
func (t ImageTool) Handles(p thread.ContentPart) bool { return family(t.Prefixes).handles(p) }
func (t ImageTool) ExtractItems(p thread.ContentPart) []Extracted {
	return generated(p, KindImage)
}

// VideoTool covers video generation tools.
type VideoTool struct{ Prefixes []string }

func (t VideoTool) Name() string                      { return "video" }
func (t VideoTool) Handles(p thread.ContentPart) bool { return family(t.Prefixes).handles(p) }
func (t VideoTool) ExtractItems(p thread.ContentPart) []Extracted {
	return generated(p, KindVideo)
}

// UpscalerTool covers upscalers. Its output kind depends on the family it
// is configured for.
type UpscalerTool struct {
	Prefixes []string
	Video    bool
}

func (t UpscalerTool) Name() string {
	if t.Video {
		return "video_upscaler"
	}
	return "image_upscaler"
}

func (t UpscalerTool) Handles(p thread.ContentPart) bool { return family(t.Prefixes).handles(p) }

func (t UpscalerTool) ExtractItems(p thread.ContentPart) []Extracted {
	if t.Video {
		return generated(p, KindVideo)
	}
	return generated(p, KindImage)
}

// SearchTool covers web, news and social search. Results are links keyed by
// their result id; items of type "image" are image results keyed the same way.
type SearchTool struct{ Prefixes []string }

func (t SearchTool) Name() string                      { return "search" }
func (t SearchTool) Handles(p thread.ContentPart) bool { return family(t.Prefixes).handles(p) }

func (t SearchTool) ExtractItems(p thread.ContentPart) []Extracted {
	out := p.Result()
	if !out.Succeeded() {
		return nil
	}
	var items []Extracted
	for _, it := range out.Items {
		if it.ID == "" || it.URL == "" {
			continue
		}
		kind := KindLink
		if it.Type == "image" {
			kind = KindSearchImage
		}
		items = append(items, Extracted{Kind: kind, Item: it})
	}
	return items
}

// LinkReaderTool covers tools that fetch a page and hand back a link id for it.
type LinkReaderTool struct{ Prefixes []string }

func (t LinkReaderTool) Name() string                      { return "link_reader" }
func (t LinkReaderTool) Handles(p thread.ContentPart) bool { return family(t.Prefixes).handles(p) }

func (t LinkReaderTool) ExtractItems(p thread.ContentPart) []Extracted {
	out := p.Result()
	if !out.Succeeded() {
		return nil
	}
	var items []Extracted
	for _, it := range out.Items {
		if it.ID == "" || it.URL == "" {
			continue
		}
		items = append(items, Extracted{Kind: KindLink, Item: it})
	}
	return items
}

// DefaultTools returns the capability set for the assistant's built-in tools.
// Order matters: the first tool that handles a part extracts it.
func DefaultTools() []MediaProducingTool {
	return []MediaProducingTool{
		UpscalerTool{Prefixes: []string{"image_upscaler"}},
		UpscalerTool{Prefixes: []string{"video_upscaler"}, Video: true},
		ImageTool{Prefixes: []string{"gemini_image", "seedream_image", "qwen_image"}},
		VideoTool{Prefixes: []string{"wan25_", "grok_"}},
		SearchTool{Prefixes: []string{"web_search", "google_search", "twitter_search"}},
		LinkReaderTool{Prefixes: []string{"link_reader"}},
	}
}

// uploads extracts user uploads. When a record carries both the part-based
// and the attachment-list representation, the longer list per kind is used;
// ties go to the parts.
func uploads(m thread.Message) []Extracted {
	var partImages, partVideos, attImages, attVideos []Extracted
	for _, p := range m.Parts {
		switch {
		case p.Type == thread.PartImage && p.URL != "":
			partImages = append(partImages, Extracted{Kind: KindUploadImage, Item: thread.MediaItem{URL: p.URL}, Filename: p.Filename})
		case p.Type == thread.PartFile && p.URL != "" && strings.HasPrefix(p.MediaType, "image/"):
			partImages = append(partImages, Extracted{Kind: KindUploadImage, Item: thread.MediaItem{URL: p.URL}, Filename: p.Filename})
		case p.Type == thread.PartFile && p.URL != "" && strings.HasPrefix(p.MediaType, "video/"):
			partVideos = append(partVideos, Extracted{Kind: KindUploadVideo, Item: thread.MediaItem{URL: p.URL}, Filename: p.Filename})
		}
	}
	for _, a := range m.Attachments {
		if a.URL == "" {
			continue
		}
		item := thread.MediaItem{URL: a.URL, Width: a.Metadata.Width, Height: a.Metadata.Height}
		switch {
		case strings.HasPrefix(a.ContentType, "image/"):
			attImages = append(attImages, Extracted{Kind: KindUploadImage, Item: item, Filename: a.Name})
		case strings.HasPrefix(a.ContentType, "video/"):
			attVideos = append(attVideos, Extracted{Kind: KindUploadVideo, Item: item, Filename: a.Name})
		}
	}
	images := partImages
	if len(attImages) > len(partImages) {
		images = attImages
	}
	videos := partVideos
	if len(attVideos) > len(partVideos) {
		videos = attVideos
	}
	return append(images, videos...)
}
