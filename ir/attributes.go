package ir

import (
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// AttributeKind enumerates the supported attribute value types.
type AttributeKind int

const (
	AttrInt AttributeKind = iota
	AttrFloat
	AttrInts
	AttrFloats
	AttrString
	AttrTensor
	AttrGraph
)

// String returns the name of the attribute kind.
func (k AttributeKind) String() string {
	switch k {
	case AttrInt:
		return "int"
	case AttrFloat:
		return "float"
	case AttrInts:
		return "ints"
	case AttrFloats:
		return "floats"
	case AttrString:
		return "string"
	case AttrTensor:
		return "tensor"
	case AttrGraph:
		return "graph"
	default:
		return "invalid"
	}
}

// Attribute is a named static value attached to a Node. Only the field matching Kind is set.
type Attribute struct {
	Kind   AttributeKind
	I      int64
	F      float64
	Ints   []int64
	Floats []float64
	S      string
	T      *tensors.Tensor
	G      *Graph
}

// Attribute returns the attribute with the given name, or nil if not set.
func (n *Node) Attribute(name string) *Attribute {
	return n.attributes[name]
}

// HasAttribute returns whether an attribute with the given name is set.
func (n *Node) HasAttribute(name string) bool {
	_, found := n.attributes[name]
	return found
}

// AttributeNames returns the names of the attributes set in the node, sorted.
func (n *Node) AttributeNames() []string {
	return slices.Sorted(maps.Keys(n.attributes))
}

// RemoveAttribute removes the attribute, if set.
func (n *Node) RemoveAttribute(name string) {
	delete(n.attributes, name)
}

func (n *Node) setAttribute(name string, attr *Attribute) *Node {
	if n.attributes == nil {
		n.attributes = make(map[string]*Attribute)
	}
	n.attributes[name] = attr
	return n
}

// attributeOfKind returns the attribute with the given name, panicking if it is not set or of a different kind.
func (n *Node) attributeOfKind(name string, kind AttributeKind) *Attribute {
	attr := n.attributes[name]
	if attr == nil {
		exceptions.Panicf("%s has no attribute %q", n.kind, name)
	}
	if attr.Kind != kind {
		exceptions.Panicf("%s attribute %q is of kind %s, not %s", n.kind, name, attr.Kind, kind)
	}
	return attr
}

// SetI sets an integer attribute.
func (n *Node) SetI(name string, value int64) *Node {
	return n.setAttribute(name, &Attribute{Kind: AttrInt, I: value})
}

// I returns an integer attribute. It panics if not set or of a different kind.
func (n *Node) I(name string) int64 { return n.attributeOfKind(name, AttrInt).I }

// SetF sets a float attribute.
func (n *Node) SetF(name string, value float64) *Node {
	return n.setAttribute(name, &Attribute{Kind: AttrFloat, F: value})
}

// F returns a float attribute. It panics if not set or of a different kind.
func (n *Node) F(name string) float64 { return n.attributeOfKind(name, AttrFloat).F }

// SetIs sets an integer list attribute.
func (n *Node) SetIs(name string, values []int64) *Node {
	return n.setAttribute(name, &Attribute{Kind: AttrInts, Ints: values})
}

// Is returns an integer list attribute. It panics if not set or of a different kind.
func (n *Node) Is(name string) []int64 { return n.attributeOfKind(name, AttrInts).Ints }

// SetFs sets a float list attribute.
func (n *Node) SetFs(name string, values []float64) *Node {
	return n.setAttribute(name, &Attribute{Kind: AttrFloats, Floats: values})
}

// Fs returns a float list attribute. It panics if not set or of a different kind.
func (n *Node) Fs(name string) []float64 { return n.attributeOfKind(name, AttrFloats).Floats }

// SetS sets a string attribute.
func (n *Node) SetS(name string, value string) *Node {
	return n.setAttribute(name, &Attribute{Kind: AttrString, S: value})
}

// S returns a string attribute. It panics if not set or of a different kind.
func (n *Node) S(name string) string { return n.attributeOfKind(name, AttrString).S }

// SetT sets a tensor attribute.
func (n *Node) SetT(name string, value *tensors.Tensor) *Node {
	return n.setAttribute(name, &Attribute{Kind: AttrTensor, T: value})
}

// T returns a tensor attribute. It panics if not set or of a different kind.
func (n *Node) T(name string) *tensors.Tensor { return n.attributeOfKind(name, AttrTensor).T }

// SetG sets a subgraph attribute.
func (n *Node) SetG(name string, value *Graph) *Node {
	return n.setAttribute(name, &Attribute{Kind: AttrGraph, G: value})
}

// G returns a subgraph attribute. It panics if not set or of a different kind.
func (n *Node) G(name string) *Graph { return n.attributeOfKind(name, AttrGraph).G }
