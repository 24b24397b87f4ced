package ir

import (
	"slices"
	"strconv"

	"github.com/gomlx/exceptions"
)

// Use is an edge from a consumer node's input slot to a Value.
type Use struct {
	// User is the consumer node.
	User *Node
	// Offset is the position of the value in User.Inputs().
	Offset int
}

// Value is an SSA value: it has exactly one producer Node (its Node()) and any number of uses.
type Value struct {
	id        int
	debugName string
	typ       Type
	node      *Node
	offset    int
	uses      []Use
}

// ID returns the unique (within the owning graph) id of the value.
func (v *Value) ID() int { return v.id }

// DebugName returns the name given to the value, or "" if none was given.
func (v *Value) DebugName() string { return v.debugName }

// SetDebugName sets the name used when printing the value.
// If the name is already taken by another value in the graph, that value is renamed with a ".<n>" suffix.
func (v *Value) SetDebugName(name string) *Value {
	g := v.node.graph
	if v.debugName != "" {
		delete(g.names, v.debugName)
	}
	if name == "" {
		v.debugName = ""
		return v
	}
	if numeric, err := strconv.Atoi(name); err == nil && numeric >= g.nextValueID {
		// Numeric names could otherwise clash with the unique ids used to print unnamed values.
		g.nextValueID = numeric + 1
	}
	if previous := g.names[name]; previous != nil && previous != v {
		// The previous holder of the name is renamed, so the most recent value gets the name.
		renamed := name
		for suffix := 1; g.names[renamed] != nil; suffix++ {
			renamed = name + "." + strconv.Itoa(suffix)
		}
		previous.debugName = renamed
		g.names[renamed] = previous
	}
	g.names[name] = v
	v.debugName = name
	return v
}

// Name returns the name used when printing the value (without the "%" prefix):
// the debug name if one was set, or the unique id otherwise.
func (v *Value) Name() string {
	if v.debugName != "" {
		return v.debugName
	}
	return strconv.Itoa(v.id)
}

// Type returns the type of the value.
func (v *Value) Type() Type { return v.typ }

// SetType sets the type of the value.
func (v *Value) SetType(t Type) *Value {
	if t == nil {
		exceptions.Panicf("Value.SetType(nil) for %%%s", v.Name())
	}
	v.typ = t
	return v
}

// Node returns the producer of the value.
func (v *Value) Node() *Node { return v.node }

// Offset returns the position of the value in its producer's outputs.
func (v *Value) Offset() int { return v.offset }

// Uses returns the uses of the value. The returned slice must not be modified.
func (v *Value) Uses() []Use { return v.uses }

// HasUses returns whether the value is used by any node.
func (v *Value) HasUses() bool { return len(v.uses) > 0 }

// CopyMetadata copies the type (and the debug name, if v has none) from another value.
func (v *Value) CopyMetadata(from *Value) *Value {
	v.SetType(from.typ)
	if v.debugName == "" && from.debugName != "" {
		v.SetDebugName(from.debugName)
	}
	return v
}

// ReplaceAllUsesWith makes every user of v use newValue instead.
// After it returns, v has no uses.
func (v *Value) ReplaceAllUsesWith(newValue *Value) {
	if v == newValue {
		exceptions.Panicf("Value.ReplaceAllUsesWith(): %%%s replaced with itself", v.Name())
	}
	if v.node.graph != newValue.node.graph {
		exceptions.Panicf("Value.ReplaceAllUsesWith(): %%%s and %%%s belong to different graphs", v.Name(), newValue.Name())
	}
	for _, use := range v.uses {
		use.User.inputs[use.Offset] = newValue
		newValue.uses = append(newValue.uses, use)
	}
	v.uses = nil
}

// addUse records that user consumes v at the given input position.
func (v *Value) addUse(user *Node, offset int) {
	v.uses = append(v.uses, Use{User: user, Offset: offset})
}

// removeUse removes the use (user, offset): it panics if the use is not found, since it
// indicates the use-lists are out of sync with the input edges.
func (v *Value) removeUse(user *Node, offset int) {
	idx := slices.Index(v.uses, Use{User: user, Offset: offset})
	if idx < 0 {
		exceptions.Panicf("use-list of %%%s is inconsistent: missing use by %s at input %d", v.Name(), user.kind, offset)
	}
	v.uses = slices.Delete(v.uses, idx, idx+1)
}

// shiftUse updates the offset of the use by user from oldOffset to newOffset.
func (v *Value) shiftUse(user *Node, oldOffset, newOffset int) {
	idx := slices.Index(v.uses, Use{User: user, Offset: oldOffset})
	if idx < 0 {
		exceptions.Panicf("use-list of %%%s is inconsistent: missing use by %s at input %d", v.Name(), user.kind, oldOffset)
	}
	v.uses[idx].Offset = newOffset
}
