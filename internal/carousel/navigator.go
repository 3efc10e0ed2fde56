// Package carousel holds the circular card-stack position and its visual mapping.
package carousel

import "sync"

// SwipeThreshold is the horizontal drag distance that commits a card change.
const SwipeThreshold = 100.0

// Position is a card's placement relative to the centred card.
type Position string

const (
	PositionCenter Position = "center"
	PositionRight  Position = "right"
	PositionLeft   Position = "left"
	PositionHidden Position = "hidden"
)

// CardStyle is the visual treatment of one card.
type CardStyle struct {
	Position    Position `json:"position"`
	Distance    int      `json:"distance"`
	OffsetXPct  float64  `json:"offset_x_pct"`
	Scale       float64  `json:"scale"`
	Opacity     float64  `json:"opacity"`
	Blur        float64  `json:"blur"`
	RotateY     float64  `json:"rotate_y"`
	ZIndex      int      `json:"z_index"`
	Visible     bool     `json:"visible"`
	Interactive bool     `json:"interactive"`
}

var (
	centerStyle = CardStyle{Position: PositionCenter, Scale: 1, Opacity: 1, ZIndex: 30, Visible: true, Interactive: true}
	rightStyle  = CardStyle{Position: PositionRight, Distance: 1, OffsetXPct: 60, Scale: 0.85, Opacity: 0.4, Blur: 4, RotateY: -25, ZIndex: 20, Visible: true}
	leftStyle   = CardStyle{Position: PositionLeft, Distance: -1, OffsetXPct: -60, Scale: 0.85, Opacity: 0.4, Blur: 4, RotateY: 25, ZIndex: 20, Visible: true}
	hiddenStyle = CardStyle{Position: PositionHidden, Scale: 0.5}
)

// ReleaseAction reports what a drag release did.
type ReleaseAction string

const (
	ReleaseNext ReleaseAction = "next"
	ReleasePrev ReleaseAction = "prev"
	ReleaseSnap ReleaseAction = "snap"
)

// Navigator tracks the index of the centred card. The list length is supplied
// per call since the filtered list changes underneath it.
type Navigator struct {
	mu    sync.Mutex
	index int
}

// Index returns the current index.
func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// Reset returns to the first card.
func (n *Navigator) Reset() {
	n.mu.Lock()
	n.index = 0
	n.mu.Unlock()
}

// Next advances circularly. It does nothing when length is zero.
func (n *Navigator) Next(length int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if length <= 0 {
		return n.index
	}
	n.index = (n.index + 1) % length
	return n.index
}

// Prev steps back circularly. It does nothing when length is zero.
func (n *Navigator) Prev(length int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if length <= 0 {
		return n.index
	}
	n.index = (n.index - 1 + length) % length
	return n.index
}

// Current returns the index clamped into [0, length) or -1 for an empty list.
func (n *Navigator) Current(length int) int {
	if length <= 0 {
		return -1
	}
	return positiveMod(n.Index(), length)
}

// Release applies the outcome of a horizontal drag ending at offsetX.
func (n *Navigator) Release(offsetX float64, length int) ReleaseAction {
	switch {
	case offsetX < -SwipeThreshold:
		n.Next(length)
		return ReleaseNext
	case offsetX > SwipeThreshold:
		n.Prev(length)
		return ReleasePrev
	default:
		return ReleaseSnap
	}
}

// Style maps card i to its treatment relative to the current index.
func (n *Navigator) Style(i, length int) CardStyle {
	return StyleFor(i, n.Index(), length)
}

// Distance returns the nearest signed circular distance from index to i.
func Distance(i, index, length int) int {
	if length <= 0 {
		return 0
	}
	dist := positiveMod(i-index, length)
	if float64(dist) > float64(length)/2 {
		dist -= length
	}
	return dist
}

// StyleFor is Style without a Navigator.
func StyleFor(i, index, length int) CardStyle {
	if length <= 0 {
		return hiddenStyle
	}
	dist := Distance(i, index, length)
	var style CardStyle
	switch dist {
	case 0:
		style = centerStyle
	case 1:
		style = rightStyle
	case -1:
		style = leftStyle
	default:
		style = hiddenStyle
	}
	style.Distance = dist
	return style
}

func positiveMod(value, length int) int {
	return ((value % length) + length) % length
}
