package mediaindex

import (
	"fmt"
	"maps"
	"slices"

	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// counters holds the number of synthetic keys issued so far per sequence.
type counters struct {
	uploadedImage  int
	uploadedVideo  int
	generatedImage int
	generatedVideo int
}

type cacheKey struct {
	id      string
	version int
}

// contribution records what one record wrote into the index.
type contribution struct {
	version int
	start   counters
	end     counters
	owned   []ref
}

// Builder maintains a DerivedIndex for a MessageLog. Per-record extraction is
// cached by (message id, content version); per-record contributions remember
// the counter checkpoint at the record's start and the keys the record owns,
// so a streaming update recomputes only that record.
//
// A Builder is owned by one view and is not safe for concurrent use.
type Builder struct {
	tools []MediaProducingTool

	index    *Index
	owners   map[ref]string
	contribs map[string]*contribution
	extract  map[cacheKey][]Extracted
}

// NewBuilder creates a builder for the given capability set. With no tools it
// uses DefaultTools.
func NewBuilder(tools ...MediaProducingTool) *Builder {
	if len(tools) == 0 {
		tools = DefaultTools()
	}
	b := &Builder{
		tools:   tools,
		extract: make(map[cacheKey][]Extracted),
	}
	b.reset()
	return b
}

func (b *Builder) reset() {
	b.index = NewIndex()
	b.owners = make(map[ref]string)
	b.contribs = make(map[string]*contribution)
}

// Index returns the current index.
func (b *Builder) Index() *Index { return b.index }

// Build computes the index for an ordered record list from scratch. The
// result depends only on the records and their order.
func (b *Builder) Build(records []thread.Message) *Index {
	b.reset()
	var c counters
	for _, m := range records {
		c = b.apply(m, c, nil).end
	}
	b.evict()
	return b.index
}

// Sync brings the index up to date with the log's pending changes.
// Structural changes (prepend, remove) rebuild from scratch; appends and
// streaming mutations recompute only the affected records.
func (b *Builder) Sync(l *thread.Log) *Index {
	ids, full := l.TakeDirty()
	if full {
		defer tuilog.Log.Timed("Builder.Sync: full rebuild")()
		return b.Build(l.Records())
	}

	// Records at or after done have already been recomputed by a suffix pass.
	done := l.Len()
	for _, id := range ids {
		pos, ok := l.Position(id)
		if !ok || pos >= done {
			continue
		}
		if !b.recompute(l, pos) {
			tuilog.Log.Debug("Builder.Sync: recomputing suffix", "id", id, "from", pos, "len", l.Len())
			b.recomputeFrom(l, pos)
			done = pos
		}
	}
	return b.index
}

// recompute replaces one record's contribution in place. It returns false
// when later records may be affected and the suffix must be recomputed.
func (b *Builder) recompute(l *thread.Log, pos int) bool {
	m := l.At(pos)
	old := b.contribs[m.ID]

	var start counters
	if old != nil {
		start = old.start
		b.release(m.ID, old)
	} else if pos > 0 {
		prev, ok := b.contribs[l.At(pos-1).ID]
		if !ok {
			return false
		}
		start = prev.end
	}

	conflict := false
	later := func(owner string) {
		if p, ok := l.Position(owner); ok && p > pos {
			conflict = true
		}
	}
	c := b.apply(m, start, later)
	if conflict {
		return false
	}
	if old == nil {
		return pos == l.Len()-1
	}
	return c.end == old.end && sameRefs(c.owned, old.owned)
}

// recomputeFrom discards the contributions of the record at pos and every
// later record, then reapplies them in order.
func (b *Builder) recomputeFrom(l *thread.Log, pos int) {
	var start counters
	if pos > 0 {
		if prev, ok := b.contribs[l.At(pos-1).ID]; ok {
			start = prev.end
		} else {
			b.Build(l.Records())
			return
		}
	}
	for i := pos; i < l.Len(); i++ {
		id := l.At(i).ID
		if c, ok := b.contribs[id]; ok {
			b.release(id, c)
		}
	}
	for i := pos; i < l.Len(); i++ {
		start = b.apply(l.At(i), start, nil).end
	}
}

func (b *Builder) release(id string, c *contribution) {
	for _, r := range c.owned {
		if b.owners[r] == id {
			delete(b.owners, r)
			b.index.delete(r)
		}
	}
	delete(b.contribs, id)
}

// evict drops cached extractions for records or versions no longer in the index.
func (b *Builder) evict() {
	maps.DeleteFunc(b.extract, func(k cacheKey, _ []Extracted) bool {
		c, ok := b.contribs[k.id]
		return !ok || c.version != k.version
	})
}

// extraction returns the cached entries for a record version.
func (b *Builder) extraction(m thread.Message) []Extracted {
	k := cacheKey{id: m.ID, version: m.Version}
	if items, ok := b.extract[k]; ok {
		return items
	}
	if m.Version > 0 {
		delete(b.extract, cacheKey{id: m.ID, version: m.Version - 1})
	}
	items := Extract(m, b.tools)
	b.extract[k] = items
	return items
}

// Extract returns the media entries of one record in document order:
// uploads first, then tool output part by part.
func Extract(m thread.Message, tools []MediaProducingTool) []Extracted {
	items := uploads(m)
	for _, p := range m.Parts {
		for _, t := range tools {
			if t.Handles(p) {
				items = append(items, t.ExtractItems(p)...)
				break
			}
		}
	}
	return items
}

// writer applies one record's entries with first-writer-wins semantics.
type writer struct {
	b     *Builder
	id    string
	c     *contribution
	later func(owner string)
}

// claim takes ownership of a key if it is free.
func (w *writer) claim(r ref) bool {
	if owner, ok := w.b.owners[r]; ok {
		if owner != w.id && w.later != nil {
			w.later(owner)
		}
		return false
	}
	w.b.owners[r] = w.id
	w.c.owned = append(w.c.owned, r)
	return true
}

func (w *writer) dims(url string, it thread.MediaItem) {
	if d, ok := ParseDimensions(it); ok && w.claim(ref{tDimensions, url}) {
		w.b.index.Dimensions[url] = d
	}
}

func (w *writer) provenance(it thread.MediaItem) {
	if it.Prompt != "" && w.claim(ref{tPrompts, it.URL}) {
		w.b.index.Prompts[it.URL] = it.Prompt
	}
	if it.SourceURL != "" && w.claim(ref{tSources, it.URL}) {
		w.b.index.SourceImages[it.URL] = it.SourceURL
	}
	w.dims(it.URL, it)
}

// apply writes one record's entries starting from the given counters.
func (b *Builder) apply(m thread.Message, start counters, later func(owner string)) *contribution {
	c := &contribution{version: m.Version, start: start}
	w := &writer{b: b, id: m.ID, c: c, later: later}
	n := start
	idx := b.index

	for _, e := range b.extraction(m) {
		it := e.Item
		switch e.Kind {
		case KindUploadImage:
			n.uploadedImage++
			key := fmt.Sprintf("uploaded_image_%d", n.uploadedImage)
			if w.claim(ref{tImages, key}) {
				idx.Images[key] = it.URL
			}
			if w.claim(ref{tUploads, key}) {
				idx.Uploads[key] = Upload{URL: it.URL, Filename: orDefault(e.Filename, "image.jpg")}
			}
			w.dims(it.URL, it)

		case KindUploadVideo:
			n.uploadedVideo++
			key := fmt.Sprintf("uploaded_video_%d", n.uploadedVideo)
			if w.claim(ref{tVideos, key}) {
				idx.Videos[key] = Video{URL: it.URL}
			}
			if w.claim(ref{tUploads, key}) {
				idx.Uploads[key] = Upload{URL: it.URL, Filename: orDefault(e.Filename, "video.mp4")}
			}
			w.dims(it.URL, it)

		case KindImage:
			if !w.claim(ref{tSeen, dedupKey(it)}) {
				continue
			}
			n.generatedImage++
			key := fmt.Sprintf("generated_image_%d", n.generatedImage)
			if w.claim(ref{tImages, key}) {
				idx.Images[key] = it.URL
			}
			if stem := Stem(it.Path); stem != "" && w.claim(ref{tImages, stem}) {
				idx.Images[stem] = it.URL
			}
			w.provenance(it)

		case KindVideo:
			if !w.claim(ref{tSeen, dedupKey(it)}) {
				continue
			}
			n.generatedVideo++
			key := fmt.Sprintf("generated_video_%d", n.generatedVideo)
			v := Video{URL: it.URL, Size: it.SizeLabel}
			if w.claim(ref{tVideos, key}) {
				idx.Videos[key] = v
			}
			if stem := Stem(it.Path); stem != "" && w.claim(ref{tVideos, stem}) {
				idx.Videos[stem] = v
			}
			w.provenance(it)

		case KindLink:
			if w.claim(ref{tLinks, it.ID}) {
				idx.Links[it.ID] = it.URL
			}
			if it.Thumbnail != "" && w.claim(ref{tThumbnails, it.ID}) {
				idx.Thumbnails[it.ID] = it.Thumbnail
			}
			if it.Title != "" && w.claim(ref{tTitles, it.URL}) {
				idx.Titles[it.URL] = it.Title
			}

		case KindSearchImage:
			if w.claim(ref{tImages, it.ID}) {
				idx.Images[it.ID] = it.URL
			}
			w.dims(it.URL, it)
		}
	}

	c.end = n
	b.contribs[m.ID] = c
	return c
}

func dedupKey(it thread.MediaItem) string {
	if it.Path != "" {
		return it.Path
	}
	return it.URL
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func sameRefs(a, b []ref) bool {
	return slices.Equal(a, b)
}
