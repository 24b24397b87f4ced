package ir

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// Lint checks the graph invariants and returns an error describing the first violation found:
//
//   - Every input edge (n, i) is recorded exactly once in the uses of n.Input(i), and every use
//     recorded in a value corresponds to an input edge.
//   - Every value used as input has a producer that is a live node of the graph.
//   - Values are defined before they are used: by a preceding node of the same block, an input of the
//     block, or a value visible in an enclosing block.
//   - The node list of each block is consistently linked, and nodes point back to their owning block.
func (g *Graph) Lint() error {
	l := &linter{g: g}
	return l.block(g.block, sets.Make[*Value]())
}

type linter struct {
	g *Graph
}

// block checks the block with the values in scope visible. The scope is extended with
// the values defined in the block, and restored on return.
func (l *linter) block(b *Block, scope sets.Set[*Value]) error {
	var defined []*Value
	defer func() {
		for _, v := range defined {
			delete(scope, v)
		}
	}()

	if err := l.outputs(b.param); err != nil {
		return err
	}
	for _, v := range b.param.outputs {
		scope.Insert(v)
		defined = append(defined, v)
	}

	prev := b.param
	for n := b.param.next; ; n = n.next {
		if n == nil {
			return errors.Errorf("block owned by %s is not terminated by a %s node", ownerKind(b), PrimReturn)
		}
		if n.prev != prev {
			return errors.Errorf("node %s in block owned by %s has an inconsistent back link", n.kind, ownerKind(b))
		}
		if n.owningBlock != b {
			return errors.Errorf("node %s is linked in block owned by %s, but it points to a different block", n.kind, ownerKind(b))
		}
		if !l.g.nodes.Has(n) {
			return errors.Errorf("node %s in block owned by %s is not a live node of the graph", n.kind, ownerKind(b))
		}
		if err := l.inputs(n, scope); err != nil {
			return err
		}
		if n == b.ret {
			break
		}
		for _, child := range n.blocks {
			if child.owningNode != n {
				return errors.Errorf("nested block of %s points to a different owning node", n.kind)
			}
			if err := l.block(child, scope); err != nil {
				return errors.WithMessagef(err, "in nested block of %s", n.kind)
			}
		}
		if err := l.outputs(n); err != nil {
			return err
		}
		for _, v := range n.outputs {
			scope.Insert(v)
			defined = append(defined, v)
		}
		prev = n
	}
	return nil
}

// inputs checks the input edges of n.
func (l *linter) inputs(n *Node, scope sets.Set[*Value]) error {
	for i, input := range n.inputs {
		if input == nil {
			return errors.Errorf("%s input #%d is nil", n.kind, i)
		}
		if input.node == nil || !l.g.nodes.Has(input.node) {
			return errors.Errorf("%s input #%d (%%%s) has a dangling producer", n.kind, i, input.Name())
		}
		if !scope.Has(input) {
			return errors.Errorf("%s input #%d (%%%s) is used before it is defined", n.kind, i, input.Name())
		}
		count := 0
		for _, use := range input.uses {
			if use.User == n && use.Offset == i {
				count++
			}
		}
		if count != 1 {
			return errors.Errorf("%s input #%d (%%%s) is recorded %d times in its use-list, expected once", n.kind, i, input.Name(), count)
		}
	}
	return nil
}

// outputs checks the output values of n and their use-lists.
func (l *linter) outputs(n *Node) error {
	for i, v := range n.outputs {
		if v.node != n || v.offset != i {
			return errors.Errorf("%s output #%d (%%%s) points to a different producer or offset", n.kind, i, v.Name())
		}
		if v.typ == nil {
			return errors.Errorf("%s output #%d (%%%s) has no type", n.kind, i, v.Name())
		}
		for _, use := range v.uses {
			if use.User == nil || !l.g.nodes.Has(use.User) {
				return errors.Errorf("%%%s is used by a node that is not live in the graph", v.Name())
			}
			if use.Offset < 0 || use.Offset >= len(use.User.inputs) || use.User.inputs[use.Offset] != v {
				return errors.Errorf("%%%s use-list records (%s, %d), but that input edge doesn't exist", v.Name(), use.User.kind, use.Offset)
			}
		}
	}
	return nil
}

func ownerKind(b *Block) string {
	if b.owningNode == nil {
		return "graph"
	}
	return string(b.owningNode.kind)
}
