package mediaindex

import (
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wethinkt/go-threadview/internal/thread"
)

// Video is a video map entry.
type Video struct {
	URL  string `json:"url"`
	Size string `json:"size,omitempty"`
}

// Upload is the metadata kept for a user upload.
type Upload struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Dimensions is a layout hint. For aspect-ratio hints only the ratio is meaningful.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Index is the set of derived lookup maps. The render layer treats it as
// read-only.
type Index struct {
	Images       map[string]string     `json:"images"`
	Uploads      map[string]Upload     `json:"uploads"`
	Videos       map[string]Video      `json:"videos"`
	Links        map[string]string     `json:"links"`
	Thumbnails   map[string]string     `json:"thumbnails"`
	Titles       map[string]string     `json:"titles"`
	Prompts      map[string]string     `json:"prompts"`
	SourceImages map[string]string     `json:"source_images"`
	Dimensions   map[string]Dimensions `json:"dimensions"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		Images:       make(map[string]string),
		Uploads:      make(map[string]Upload),
		Videos:       make(map[string]Video),
		Links:        make(map[string]string),
		Thumbnails:   make(map[string]string),
		Titles:       make(map[string]string),
		Prompts:      make(map[string]string),
		SourceImages: make(map[string]string),
		Dimensions:   make(map[string]Dimensions),
	}
}

// Len returns the total number of entries across all maps.
func (x *Index) Len() int {
	return len(x.Images) + len(x.Uploads) + len(x.Videos) + len(x.Links) +
		len(x.Thumbnails) + len(x.Titles) + len(x.Prompts) + len(x.SourceImages) + len(x.Dimensions)
}

// table names one map of the index; used for key ownership.
type table uint8

const (
	tImages table = iota
	tUploads
	tVideos
	tLinks
	tThumbnails
	tTitles
	tPrompts
	tSources
	tDimensions
	tSeen // dedup keys, not exported
)

type ref struct {
	t   table
	key string
}

func (x *Index) has(r ref) bool {
	var ok bool
	switch r.t {
	case tImages:
		_, ok = x.Images[r.key]
	case tUploads:
		_, ok = x.Uploads[r.key]
	case tVideos:
		_, ok = x.Videos[r.key]
	case tLinks:
		_, ok = x.Links[r.key]
	case tThumbnails:
		_, ok = x.Thumbnails[r.key]
	case tTitles:
		_, ok = x.Titles[r.key]
	case tPrompts:
		_, ok = x.Prompts[r.key]
	case tSources:
		_, ok = x.SourceImages[r.key]
	case tDimensions:
		_, ok = x.Dimensions[r.key]
	}
	return ok
}

func (x *Index) delete(r ref) {
	switch r.t {
	case tImages:
		delete(x.Images, r.key)
	case tUploads:
		delete(x.Uploads, r.key)
	case tVideos:
		delete(x.Videos, r.key)
	case tLinks:
		delete(x.Links, r.key)
	case tThumbnails:
		delete(x.Thumbnails, r.key)
	case tTitles:
		delete(x.Titles, r.key)
	case tPrompts:
		delete(x.Prompts, r.key)
	case tSources:
		delete(x.SourceImages, r.key)
	case tDimensions:
		delete(x.Dimensions, r.key)
	}
}

// Stem returns the basename of p with its extension stripped, or "".
func Stem(p string) string {
	if p == "" {
		return ""
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// ParseDimensions returns the layout hint carried by an item: explicit width
// and height first, then a size label such as "1024x768", then an aspect
// ratio such as "16:9".
func ParseDimensions(it thread.MediaItem) (Dimensions, bool) {
	if it.Width > 0 && it.Height > 0 {
		return Dimensions{Width: it.Width, Height: it.Height}, true
	}
	if d, ok := parsePair(it.SizeLabel, "x*×"); ok {
		return d, true
	}
	return parsePair(it.AspectRatio, ":/")
}

func parsePair(s, seps string) (Dimensions, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Dimensions{}, false
	}
	i := strings.IndexAny(s, seps)
	if i <= 0 {
		return Dimensions{}, false
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	w, err := strconv.Atoi(strings.TrimSpace(s[:i]))
	if err != nil || w <= 0 {
		return Dimensions{}, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(s[i+size:]))
	if err != nil || h <= 0 {
		return Dimensions{}, false
	}
	return Dimensions{Width: w, Height: h}, true
}
