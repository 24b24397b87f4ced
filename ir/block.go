package ir

import "github.com/gomlx/exceptions"

// Block is an ordered sequence of nodes, delimited by an input node (prim::Param, whose outputs
// are the block inputs) and a return node (prim::Return, whose inputs are the block outputs).
type Block struct {
	graph      *Graph
	owningNode *Node
	param, ret *Node
}

func newBlock(g *Graph, owningNode *Node) *Block {
	b := &Block{graph: g, owningNode: owningNode}
	b.param = g.newNode(PrimParam)
	b.ret = g.newNode(PrimReturn)
	b.param.owningBlock = b
	b.ret.owningBlock = b
	b.param.next = b.ret
	b.ret.prev = b.param
	return b
}

// OwningGraph returns the graph the block belongs to.
func (b *Block) OwningGraph() *Graph { return b.graph }

// OwningNode returns the node that holds the block, or nil for the graph's root block.
func (b *Block) OwningNode() *Node { return b.owningNode }

// ParamNode returns the prim::Param node, whose outputs are the block inputs.
func (b *Block) ParamNode() *Node { return b.param }

// ReturnNode returns the prim::Return node, whose inputs are the block outputs.
func (b *Block) ReturnNode() *Node { return b.ret }

// Inputs returns the block inputs.
func (b *Block) Inputs() []*Value { return b.param.outputs }

// Outputs returns the block outputs.
func (b *Block) Outputs() []*Value { return b.ret.inputs }

// AddInput adds a block input with the given (optional) debug name. It is typed as an unknown Tensor.
func (b *Block) AddInput(name string) *Value {
	v := b.param.AddOutput()
	if name != "" {
		v.SetDebugName(name)
	}
	return v
}

// RegisterOutput appends v to the block outputs, and returns its position.
func (b *Block) RegisterOutput(v *Value) int {
	b.ret.AddInput(v)
	return len(b.ret.inputs) - 1
}

// AppendNode inserts n at the end of the block (before the return node), and returns it.
func (b *Block) AppendNode(n *Node) *Node {
	return n.InsertBefore(b.ret)
}

// PrependNode inserts n at the start of the block (after the param node), and returns it.
func (b *Block) PrependNode(n *Node) *Node {
	return n.InsertAfter(b.param)
}

// Nodes returns a snapshot of the nodes of the block, in program order, excluding the param and return nodes.
//
// Changes to the block after the call are not reflected in the returned slice: use Cursor to mutate
// the block while traversing it.
func (b *Block) Nodes() []*Node {
	var nodes []*Node
	for n := b.param.next; n != b.ret; n = n.next {
		nodes = append(nodes, n)
	}
	return nodes
}

// IsEmpty returns whether the block has no nodes (other than the param and return nodes).
func (b *Block) IsEmpty() bool { return b.param.next == b.ret }

// Cursor returns a forward cursor over the nodes of the block. Call Cursor.Next before Cursor.Node.
func (b *Block) Cursor() *Cursor {
	return &Cursor{block: b, current: b.param}
}

// destroy releases all the nodes of the block, in reverse order, and the block's param and return nodes.
func (b *Block) destroy() {
	b.ret.RemoveAllInputs()
	for n := b.ret.prev; n != b.param; {
		prev := n.prev
		n.Destroy()
		n = prev
	}
	for _, input := range b.param.outputs {
		if input.HasUses() {
			exceptions.Panicf("cannot destroy block: input %%%s still has %d uses", input.Name(), len(input.uses))
		}
	}
	b.param.release()
	b.ret.release()
}

// Cursor iterates forward over the nodes of a block, allowing the current node to be destroyed
// and new nodes to be inserted before it.
//
// Nodes inserted before the current node are not visited. Nodes inserted after it are.
type Cursor struct {
	block   *Block
	current *Node
}

// Next advances the cursor and returns whether there is a current node.
func (c *Cursor) Next() bool {
	next := c.current.next
	if next == nil || next == c.block.ret {
		c.current = c.block.ret
		return false
	}
	c.current = next
	return true
}

// Node returns the current node.
func (c *Cursor) Node() *Node {
	if c.current == c.block.param || c.current == c.block.ret {
		exceptions.Panicf("Cursor.Node() called outside of the block nodes: call Cursor.Next() first")
	}
	return c.current
}

// DestroyCurrent destroys the current node. The cursor is moved back to the preceding node, so the
// following Next returns the node that came after the destroyed one.
func (c *Cursor) DestroyCurrent() {
	n := c.Node()
	c.current = n.prev
	n.Destroy()
}
