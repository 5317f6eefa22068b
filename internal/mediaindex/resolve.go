package mediaindex

import (
	"regexp"
	"strings"
)

// Unresolved controls what Resolve does with tokens missing from the index.
type Unresolved int

const (
	RemoveUnresolved Unresolved = iota
	KeepUnresolved
)

// ResolveOptions configures placeholder resolution.
type ResolveOptions struct {
	// ImagesAsURL renders images as bare URLs instead of markdown images.
	ImagesAsURL bool
	Unresolved  Unresolved
}

var (
	bracketedToken = regexp.MustCompile(`\[(LINK_ID|IMAGE_ID|VIDEO_ID):([^\]]+)\]`)
	// The plain form needs a non-word prefix so it never matches inside other words.
	plainToken = regexp.MustCompile(`(^|[^\w\[])(LINK_ID|IMAGE_ID|VIDEO_ID):([A-Za-z0-9_.:-]+)`)
	fenceLine  = regexp.MustCompile("^\\s*```")
)

// Resolve rewrites [IMAGE_ID:k], [VIDEO_ID:k], [LINK_ID:k] and their bare
// forms in model text to the resources they name. Fenced code blocks are left
// untouched.
func Resolve(text string, x *Index, opts ResolveOptions) string {
	if x == nil || !strings.Contains(text, "_ID:") {
		return text
	}

	lines := strings.SplitAfter(text, "\n")
	inFence := false
	var b strings.Builder
	b.Grow(len(text))
	for _, line := range lines {
		if fenceLine.MatchString(line) {
			inFence = !inFence
			b.WriteString(line)
			continue
		}
		if inFence {
			b.WriteString(line)
			continue
		}
		b.WriteString(resolveLine(line, x, opts))
	}
	return b.String()
}

func resolveLine(line string, x *Index, opts ResolveOptions) string {
	line = bracketedToken.ReplaceAllStringFunc(line, func(match string) string {
		sub := bracketedToken.FindStringSubmatch(match)
		if r, ok := lookup(x, sub[1], sub[2], opts); ok {
			return r
		}
		if opts.Unresolved == KeepUnresolved {
			return match
		}
		return ""
	})
	return plainToken.ReplaceAllStringFunc(line, func(match string) string {
		sub := plainToken.FindStringSubmatch(match)
		prefix := sub[1]
		if r, ok := lookup(x, sub[2], sub[3], opts); ok {
			return prefix + r
		}
		if opts.Unresolved == KeepUnresolved {
			return match
		}
		return prefix
	})
}

func lookup(x *Index, kind, id string, opts ResolveOptions) (string, bool) {
	switch kind {
	case "LINK_ID":
		u, ok := x.Links[id]
		return u, ok && u != ""
	case "IMAGE_ID":
		u, ok := x.Images[id]
		if !ok || u == "" {
			return "", false
		}
		if opts.ImagesAsURL {
			return u, true
		}
		return "![](" + u + ")", true
	case "VIDEO_ID":
		v, ok := x.Videos[id]
		return v.URL, ok && v.URL != ""
	}
	return "", false
}
