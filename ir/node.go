package ir

import (
	"slices"

	"github.com/gomlx/exceptions"
)

// Node is an operation in a Block: it has a kind, ordered inputs and outputs, attributes and
// optionally nested blocks (for structured control flow).
//
// Nodes are created with Graph.Create, and only become part of the program once inserted in a block
// (Node.InsertBefore, Node.InsertAfter or Block.AppendNode).
type Node struct {
	kind       Symbol
	graph      *Graph
	inputs     []*Value
	outputs    []*Value
	attributes map[string]*Attribute
	blocks     []*Block

	owningBlock *Block
	prev, next  *Node
	destroyed   bool
}

// Kind returns the kind of the node.
func (n *Node) Kind() Symbol { return n.kind }

// Graph returns the graph that owns the node.
func (n *Node) Graph() *Graph { return n.graph }

// OwningBlock returns the block the node is inserted in, or nil if it is not inserted.
func (n *Node) OwningBlock() *Block { return n.owningBlock }

// Next returns the following node in the owning block, or nil.
func (n *Node) Next() *Node { return n.next }

// Prev returns the preceding node in the owning block, or nil.
func (n *Node) Prev() *Node { return n.prev }

// IsDestroyed returns whether Destroy was called on the node.
func (n *Node) IsDestroyed() bool { return n.destroyed }

// Inputs returns the input values. The returned slice must not be modified.
func (n *Node) Inputs() []*Value { return n.inputs }

// Input returns the i-th input.
func (n *Node) Input(i int) *Value {
	if i < 0 || i >= len(n.inputs) {
		exceptions.Panicf("%s.Input(%d) out of range: node has %d inputs", n.kind, i, len(n.inputs))
	}
	return n.inputs[i]
}

// Outputs returns the output values. The returned slice must not be modified.
func (n *Node) Outputs() []*Value { return n.outputs }

// Output returns the only output of the node. It panics if the node doesn't have exactly one output.
func (n *Node) Output() *Value {
	if len(n.outputs) != 1 {
		exceptions.Panicf("%s.Output() called on node with %d outputs", n.kind, len(n.outputs))
	}
	return n.outputs[0]
}

// OutputAt returns the i-th output.
func (n *Node) OutputAt(i int) *Value {
	if i < 0 || i >= len(n.outputs) {
		exceptions.Panicf("%s.OutputAt(%d) out of range: node has %d outputs", n.kind, i, len(n.outputs))
	}
	return n.outputs[i]
}

// Blocks returns the nested blocks of the node.
func (n *Node) Blocks() []*Block { return n.blocks }

// AddBlock appends a new empty nested block to the node.
func (n *Node) AddBlock() *Block {
	b := newBlock(n.graph, n)
	n.blocks = append(n.blocks, b)
	return b
}

// AddInput appends v to the inputs of the node, and returns v.
func (n *Node) AddInput(v *Value) *Value {
	n.assertAlive("AddInput")
	if v.node.graph != n.graph {
		exceptions.Panicf("%s.AddInput(%%%s): value belongs to a different graph", n.kind, v.Name())
	}
	v.addUse(n, len(n.inputs))
	n.inputs = append(n.inputs, v)
	return v
}

// ReplaceInput replaces the i-th input with v, and returns the previous input.
func (n *Node) ReplaceInput(i int, v *Value) *Value {
	old := n.Input(i)
	old.removeUse(n, i)
	n.inputs[i] = v
	v.addUse(n, i)
	return old
}

// RemoveInput removes the i-th input, shifting the following inputs.
func (n *Node) RemoveInput(i int) {
	n.Input(i).removeUse(n, i)
	for j := i + 1; j < len(n.inputs); j++ {
		n.inputs[j].shiftUse(n, j, j-1)
	}
	n.inputs = slices.Delete(n.inputs, i, i+1)
}

// RemoveAllInputs drops all input edges of the node, updating the uses of the inputs.
func (n *Node) RemoveAllInputs() {
	for i, input := range n.inputs {
		input.removeUse(n, i)
	}
	n.inputs = nil
}

// AddOutput appends a new output to the node, typed as an unknown Tensor.
func (n *Node) AddOutput() *Value {
	n.assertAlive("AddOutput")
	v := n.graph.newValue(n, len(n.outputs))
	n.outputs = append(n.outputs, v)
	return v
}

// EraseOutput removes the i-th output. The output must not have any uses.
func (n *Node) EraseOutput(i int) {
	v := n.OutputAt(i)
	if v.HasUses() {
		exceptions.Panicf("%s.EraseOutput(%d): output %%%s still has %d uses", n.kind, i, v.Name(), len(v.uses))
	}
	n.graph.releaseValue(v)
	n.outputs = slices.Delete(n.outputs, i, i+1)
	for j := i; j < len(n.outputs); j++ {
		n.outputs[j].offset = j
	}
}

// ReplaceAllUsesWith replaces the uses of each output of n with the corresponding (by position)
// output of other. Both nodes must have the same number of outputs.
func (n *Node) ReplaceAllUsesWith(other *Node) {
	if len(n.outputs) != len(other.outputs) {
		exceptions.Panicf("%s.ReplaceAllUsesWith(%s): number of outputs differ (%d != %d)",
			n.kind, other.kind, len(n.outputs), len(other.outputs))
	}
	for i, output := range n.outputs {
		output.ReplaceAllUsesWith(other.outputs[i])
	}
}

// InsertBefore inserts n (which must not be in any block yet) right before other.
// It returns n.
func (n *Node) InsertBefore(other *Node) *Node {
	if other.prev == nil {
		exceptions.Panicf("cannot insert %s before %s: not in a block or a block input node", n.kind, other.kind)
	}
	n.insertAfter(other.prev)
	return n
}

// InsertAfter inserts n (which must not be in any block yet) right after other.
// It returns n.
func (n *Node) InsertAfter(other *Node) *Node {
	if other.next == nil {
		exceptions.Panicf("cannot insert %s after %s: not in a block or a block return node", n.kind, other.kind)
	}
	n.insertAfter(other)
	return n
}

func (n *Node) insertAfter(prev *Node) {
	n.assertAlive("insert")
	if n.owningBlock != nil {
		exceptions.Panicf("node %s is already inserted in a block", n.kind)
	}
	if prev.graph != n.graph {
		exceptions.Panicf("node %s cannot be inserted in a block of a different graph", n.kind)
	}
	next := prev.next
	n.prev, n.next = prev, next
	prev.next = n
	next.prev = n
	n.owningBlock = prev.owningBlock
}

// unlink removes the node from its owning block, if any.
func (n *Node) unlink() {
	if n.owningBlock == nil {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
	n.owningBlock = nil
}

// Destroy removes the node from its block and from the graph.
//
// Its outputs must not have any uses. Its input edges (and the ones of nodes in nested blocks)
// are removed first, so the uses of the producers are updated.
func (n *Node) Destroy() {
	n.assertAlive("Destroy")
	if n.kind == PrimParam || n.kind == PrimReturn {
		exceptions.Panicf("cannot destroy the %s node of a block", n.kind)
	}
	for _, output := range n.outputs {
		if output.HasUses() {
			exceptions.Panicf("cannot destroy %s: output %%%s still has %d uses", n.kind, output.Name(), len(output.uses))
		}
	}
	n.RemoveAllInputs()
	for ii := len(n.blocks) - 1; ii >= 0; ii-- {
		n.blocks[ii].destroy()
	}
	n.blocks = nil
	n.unlink()
	n.release()
}

// release frees the outputs and removes the node from the graph.
func (n *Node) release() {
	for _, output := range n.outputs {
		n.graph.releaseValue(output)
	}
	n.outputs = nil
	delete(n.graph.nodes, n)
	n.destroyed = true
}

func (n *Node) assertAlive(op string) {
	if n.destroyed {
		exceptions.Panicf("%s: node %s was already destroyed", op, n.kind)
	}
}
