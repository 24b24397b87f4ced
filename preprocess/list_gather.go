package preprocess

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/onnxprep/ir"
	"k8s.io/klog/v2"
)

// ExpandListUnpackToGather replaces the elements of a prim::ListUnpack of an int list, that is not built by a
// prim::ListConstruct (e.g. the result of aten::size or a slice), by onnx::Gather of the list:
//
//	%sz : int[] = aten::size(%x)
//	%a : int, %b : int = prim::ListUnpack(%sz)
//
// becomes
//
//	%sz : int[] = aten::size(%x)
//	%1 : Long() = onnx::Constant[value={0}]()
//	%a : int = onnx::Gather(%sz, %1)
//	%3 : Long() = onnx::Constant[value={1}]()
//	%b : int = onnx::Gather(%sz, %3)
//	%a.1 : int, %b.1 : int = prim::ListUnpack(%sz)
//
// Once any element is used, every element is gathered; unpacks with no used element are skipped, so a second run
// over the result is a no-op. The prim::ListUnpack is left in place, with its outputs unused,
// for a later dead-code elimination (see EliminateDeadListUnpacks).
//
// Unpacks of a prim::ListConstruct are not matched: their elements are the list constructor inputs.
//
// It returns the number of prim::ListUnpack nodes whose elements were replaced.
func ExpandListUnpackToGather(b *ir.Block) int {
	return rewriteBlock(b, func(c *ir.Cursor) bool {
		n := c.Node()
		if n.Kind() != ir.PrimListUnpack || len(n.Inputs()) != 1 {
			return false
		}
		list := n.Input(0)
		if list.Node().Kind() == ir.PrimListConstruct || !ir.IsIntList(list.Type()) {
			return false
		}
		used := false
		for _, element := range n.Outputs() {
			used = used || element.HasUses()
		}
		if !used {
			return false
		}
		g := n.Graph()
		for ii, element := range n.Outputs() {
			index := g.Create(ir.OnnxConstant, 1)
			index.SetT(ir.ValueAttr, tensors.FromScalar(int64(ii)))
			index.InsertBefore(n)
			index.Output().SetType(ir.TensorOf(dtypes.Int64))

			gather := g.Create(ir.OnnxGather, 1)
			gather.InsertBefore(n)
			gather.AddInput(list)
			gather.AddInput(index.Output())
			gather.Output().CopyMetadata(element)
			element.ReplaceAllUsesWith(gather.Output())
		}
		klog.V(2).Infof("ExpandListUnpackToGather: expanded %s of %d elements", n.Kind(), len(n.Outputs()))
		return true
	})
}

// EliminateDeadListUnpacks destroys prim::ListUnpack nodes whose outputs are all unused, like the ones left by
// FuseListUnpack and ExpandListUnpackToGather. Their list input, if any, loses one use.
//
// It returns the number of destroyed nodes.
func EliminateDeadListUnpacks(b *ir.Block) int {
	return rewriteBlock(b, func(c *ir.Cursor) bool {
		n := c.Node()
		if n.Kind() != ir.PrimListUnpack {
			return false
		}
		for _, output := range n.Outputs() {
			if output.HasUses() {
				return false
			}
		}
		c.DestroyCurrent()
		return true
	})
}
