// Package ir implements a mutable SSA graph representation of tensor programs, as consumed by
// the ONNX preprocessing passes.
//
//   - Graph: owns the root Block, all nodes and all values.
//   - Block: ordered list of Nodes, with inputs (outputs of its prim::Param node) and outputs (inputs of its
//     prim::Return node). Nodes may hold nested blocks for structured control flow (prim::If, prim::Loop).
//   - Node: kind (Symbol), inputs, outputs, attributes.
//   - Value: typed SSA value with exactly one producer and a list of uses.
//
// The graph is not safe for concurrent use.
//
// Violations of the graph invariants (e.g. destroying a node whose outputs are still used) are bugs in the
// code calling the IR, and they panic with an exception (see github.com/gomlx/exceptions). Graph.Lint checks
// all the invariants and returns an error instead.
package ir

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/support/sets"
)

// Graph owns a root block and all nodes and values of a program.
type Graph struct {
	block       *Block
	nodes       sets.Set[*Node]
	names       map[string]*Value
	nextValueID int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	g := &Graph{
		nodes: sets.Make[*Node](),
		names: make(map[string]*Value),
	}
	g.block = newBlock(g, nil)
	return g
}

// Block returns the root block.
func (g *Graph) Block() *Block { return g.block }

// Inputs returns the graph inputs.
func (g *Graph) Inputs() []*Value { return g.block.Inputs() }

// Outputs returns the graph outputs.
func (g *Graph) Outputs() []*Value { return g.block.Outputs() }

// AddInput adds a graph input with the given (optional) debug name.
func (g *Graph) AddInput(name string) *Value { return g.block.AddInput(name) }

// RegisterOutput appends v to the graph outputs, and returns its position.
func (g *Graph) RegisterOutput(v *Value) int { return g.block.RegisterOutput(v) }

// Create returns a new node of the given kind with numOutputs outputs (typed as unknown Tensor).
//
// The node is owned by the graph, but it is not part of the program until it is inserted in a block.
func (g *Graph) Create(kind Symbol, numOutputs int) *Node {
	if !kind.IsValid() {
		exceptions.Panicf("Graph.Create(%q): kinds must be of the form namespace::name", kind)
	}
	n := g.newNode(kind)
	for range numOutputs {
		n.AddOutput()
	}
	return n
}

// NumNodes returns the number of live nodes in the graph (in any block, or not yet inserted),
// excluding the param and return nodes of blocks.
func (g *Graph) NumNodes() int {
	count := 0
	for n := range g.nodes {
		if n.kind != PrimParam && n.kind != PrimReturn {
			count++
		}
	}
	return count
}

// Owns returns whether n is a live node of the graph.
func (g *Graph) Owns(n *Node) bool { return g.nodes.Has(n) }

// ValueByName returns the value with the given debug name, or nil.
func (g *Graph) ValueByName(name string) *Value { return g.names[name] }

// FindNodes returns all nodes of the given kind in the root block and nested blocks, in program order.
func (g *Graph) FindNodes(kind Symbol) []*Node {
	var found []*Node
	var visit func(b *Block)
	visit = func(b *Block) {
		for _, n := range b.Nodes() {
			if n.kind == kind {
				found = append(found, n)
			}
			for _, child := range n.blocks {
				visit(child)
			}
		}
	}
	visit(g.block)
	return found
}

func (g *Graph) newNode(kind Symbol) *Node {
	n := &Node{kind: kind, graph: g}
	g.nodes.Insert(n)
	return n
}

func (g *Graph) newValue(n *Node, offset int) *Value {
	v := &Value{id: g.nextValueID, typ: Tensor(), node: n, offset: offset}
	g.nextValueID++
	return v
}

func (g *Graph) releaseValue(v *Value) {
	if v.debugName != "" && g.names[v.debugName] == v {
		delete(g.names, v.debugName)
	}
}
