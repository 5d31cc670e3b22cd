// tree.go - The visual tree handed to the renderer.
package template

import "image"

// RootID is the stable identifier of the poster's root node.
const RootID = "template"

// NodeKind selects how a node's content is drawn.
type NodeKind uint8

const (
	KindBox   NodeKind = iota // background, border and children only
	KindText                  // Text drawn inside the padded rect
	KindImage                 // Image fitted into the rect and clipped to Style.Shape
)

// Node is one element of a visual tree. Rect is absolute within the
// template canvas; rendering a subtree translates it to the origin.
type Node struct {
	ID       string
	Kind     NodeKind
	Rect     image.Rectangle
	Padding  int
	Style    ComponentStyle
	Text     string
	Image    image.Image
	Children []*Node
}

// Find returns the node with the given ID in n's subtree, or nil.
func (n *Node) Find(id string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if c.ID == id {
			found = c
			return false
		}
		return true
	})
	return found
}

// Walk visits n and its descendants depth-first until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Texts returns the text of every text node in n's subtree, in draw order.
func (n *Node) Texts() []string {
	var out []string
	n.Walk(func(c *Node) bool {
		if c.Kind == KindText {
			out = append(out, c.Text)
		}
		return true
	})
	return out
}
