package tui

import "charm.land/bubbles/v2/viewport"

// surface exposes a bubbles viewport to the scroll anchor. Offsets and
// heights are in rendered lines; the viewport clamps offsets itself.
type surface struct {
	vp *viewport.Model
}

func (s surface) Offset() int          { return s.vp.YOffset() }
func (s surface) SetOffset(offset int) { s.vp.SetYOffset(offset) }
func (s surface) ContentHeight() int   { return s.vp.TotalLineCount() }
func (s surface) ViewportHeight() int  { return s.vp.Height() }
