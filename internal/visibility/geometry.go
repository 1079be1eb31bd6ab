package visibility

import "slices"

// Rect is an axis-aligned rectangle in page pixels.
type Rect struct {
	X, Y, Width, Height int
}

func (r Rect) right() int  { return r.X + r.Width }
func (r Rect) bottom() int { return r.Y + r.Height }

// Expand grows r by margin on every side.
func (r Rect) Expand(margin int) Rect {
	return Rect{X: r.X - margin, Y: r.Y - margin, Width: r.Width + 2*margin, Height: r.Height + 2*margin}
}

// Intersects reports whether card overlaps viewport grown by margin.
// Rectangles that only share an edge do not intersect.
func Intersects(card, viewport Rect, margin int) bool {
	root := viewport.Expand(margin)
	return card.X < root.right() && root.X < card.right() &&
		card.Y < root.bottom() && root.Y < card.bottom()
}

// Observer reproduces the browser's intersection callbacks for a fixed
// layout: each Scroll reports the cards whose intersection changed. The
// first Scroll reports every tracked card.
type Observer struct {
	margin int
	rects  map[int]Rect
	last   map[int]bool
}

// NewObserver returns an observer using the given root margin.
func NewObserver(margin int) *Observer {
	return &Observer{
		margin: margin,
		rects:  make(map[int]Rect),
		last:   make(map[int]bool),
	}
}

// Track adds or moves the card at index.
func (o *Observer) Track(index int, r Rect) {
	o.rects[index] = r
}

// Scroll returns intersection changes for viewport, ordered by index.
func (o *Observer) Scroll(viewport Rect) []Entry {
	indexes := make([]int, 0, len(o.rects))
	for index := range o.rects {
		indexes = append(indexes, index)
	}
	slices.Sort(indexes)

	var entries []Entry
	for _, index := range indexes {
		now := Intersects(o.rects[index], viewport, o.margin)
		prev, seen := o.last[index]
		if seen && prev == now {
			continue
		}
		o.last[index] = now
		entries = append(entries, Entry{Index: index, Intersecting: now})
	}
	return entries
}

// ColumnLayout stacks count cards of the given height and gap in one column,
// returning their rects keyed by position (0 is the top card).
func ColumnLayout(count, width, height, gap int) []Rect {
	rects := make([]Rect, count)
	for i := range rects {
		rects[i] = Rect{X: 0, Y: i * (height + gap), Width: width, Height: height}
	}
	return rects
}
