// Package layout parses tmux window layout descriptors.
//
// tmux reports the geometry of a window as a compact descriptor, and accepts
// the same descriptor back through select-layout:
//
//	41e9,279x71,0,0[279x40,0,0,71,279x30,0,41{147x30,0,41,72,131x30,148,41,73}]
//
// The leading hex number is a checksum of the remainder. Each container is
// WIDTHxHEIGHT,X,Y followed by either ",PANE" for a leaf, "{...}" for a
// left-to-right split or "[...]" for a top-to-bottom split.
package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tells what an Element holds.
type Kind uint8

const (
	// PaneKind is a leaf holding a single pane.
	PaneKind Kind = iota
	// HorizontalKind is a split whose children sit side by side ("{...}").
	HorizontalKind
	// VerticalKind is a split whose children are stacked ("[...]").
	VerticalKind
)

func (k Kind) String() string {
	switch k {
	case PaneKind:
		return "pane"
	case HorizontalKind:
		return "horizontal"
	case VerticalKind:
		return "vertical"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Layout is a parsed window layout.
type Layout struct {
	// ID is the checksum tmux prints in front of the descriptor.
	ID   uint16
	Root Container
}

// Container is a rectangle of the window holding a pane or a split.
type Container struct {
	Width   uint16
	Height  uint16
	X       uint16
	Y       uint16
	Element Element
}

// Element is the content of a Container. PaneID is set for PaneKind,
// Children for the two split kinds.
type Element struct {
	Kind     Kind
	PaneID   uint16
	Children []Container
}

// PaneIDs returns the pane ids in pre-order: left to right, top to bottom.
// This is the order in which panes must be created for select-layout to
// map the descriptor back onto the same panes.
func (l Layout) PaneIDs() []uint16 {
	acc := make([]uint16, 0, 1)
	return l.Root.walk(acc)
}

func (c Container) walk(acc []uint16) []uint16 {
	if c.Element.Kind == PaneKind {
		return append(acc, c.Element.PaneID)
	}
	for _, child := range c.Element.Children {
		acc = child.walk(acc)
	}
	return acc
}

// String encodes the layout back into a descriptor. The checksum is
// recomputed from the body, so the result is always accepted by tmux.
func (l Layout) String() string {
	var b strings.Builder
	l.Root.encode(&b)
	body := b.String()
	return fmt.Sprintf("%04x,%s", Checksum(body), body)
}

func (c Container) encode(b *strings.Builder) {
	b.WriteString(strconv.Itoa(int(c.Width)))
	b.WriteByte('x')
	b.WriteString(strconv.Itoa(int(c.Height)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(int(c.X)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(int(c.Y)))

	switch c.Element.Kind {
	case PaneKind:
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(int(c.Element.PaneID)))
	case HorizontalKind, VerticalKind:
		open, closing := byte('{'), byte('}')
		if c.Element.Kind == VerticalKind {
			open, closing = '[', ']'
		}
		b.WriteByte(open)
		for i, child := range c.Element.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			child.encode(b)
		}
		b.WriteByte(closing)
	}
}

// Checksum computes the 16-bit checksum tmux puts in front of a layout body.
func Checksum(body string) uint16 {
	var csum uint16
	for i := 0; i < len(body); i++ {
		csum = (csum >> 1) + ((csum & 1) << 15)
		csum += uint16(body[i])
	}
	return csum
}
