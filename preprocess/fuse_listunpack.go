package preprocess

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnxprep/ir"
	"k8s.io/klog/v2"
)

// FusibleListProducers is the set of kinds producing a list of tensors whose length is statically
// known from its prim::ListUnpack consumer. Use RegisterFusibleListProducer to extend it.
var FusibleListProducers sets.Set[ir.Symbol]

func init() {
	FusibleListProducers = sets.Make[ir.Symbol]()
	FusibleListProducers.Insert(ir.AtenSplit)
	FusibleListProducers.Insert(ir.AtenSplitWithSizes)
	FusibleListProducers.Insert(ir.AtenUnsafeSplit)
	FusibleListProducers.Insert(ir.AtenUnsafeSplitWithSizes)
	FusibleListProducers.Insert(ir.AtenUnbind)
	FusibleListProducers.Insert(ir.AtenUnsafeChunk)
	FusibleListProducers.Insert(ir.AtenWhere) // Single input form: where(condition) returns a list of index tensors.
}

// RegisterFusibleListProducer adds a kind to FusibleListProducers.
func RegisterFusibleListProducer(kind ir.Symbol) {
	FusibleListProducers.Insert(kind)
}

// findFusibleListUnpack returns the prim::ListUnpack that is the only consumer of the only output of n, or nil.
func findFusibleListUnpack(n *ir.Node) *ir.Node {
	if len(n.Outputs()) != 1 {
		return nil
	}
	use, found := soleUse(n.Output())
	if !found || use.User.Kind() != ir.PrimListUnpack {
		return nil
	}
	return use.User
}

// FuseListUnpack fuses list producers (FusibleListProducers) with their sole prim::ListUnpack consumer:
//
//	%l : Tensor[] = aten::split_with_sizes(%x, %sizes, %dim)
//	%a : Float(2, 4), %b : Float(1, 4) = prim::ListUnpack(%l)
//
// becomes
//
//	%a : Float(2, 4), %b : Float(1, 4) = aten::split_with_sizes[_outputs=2](%x, %sizes, %dim)
//
// The "_outputs" attribute tells the ONNX symbolic function the number of outputs. The prim::ListUnpack
// is left in the block without inputs and with unused outputs, for a later dead-code elimination.
//
// It returns the number of fused nodes.
func FuseListUnpack(b *ir.Block) int {
	return rewriteBlock(b, func(c *ir.Cursor) bool {
		n := c.Node()
		if !FusibleListProducers.Has(n.Kind()) {
			return false
		}
		unpack := findFusibleListUnpack(n)
		if unpack == nil {
			return false
		}
		fuseWithListUnpack(n, unpack)
		return true
	})
}

func fuseWithListUnpack(n, unpack *ir.Node) {
	numOutputs := len(unpack.Outputs())
	n.SetI(ir.OutputsAttr, int64(numOutputs))
	for _, unpacked := range unpack.Outputs() {
		n.AddOutput().CopyMetadata(unpacked)
	}
	unpack.RemoveAllInputs()
	// The original list output is now unused.
	n.EraseOutput(0)
	unpack.ReplaceAllUsesWith(n)
	klog.V(2).Infof("FuseListUnpack: fused %s with %s into %d outputs", n.Kind(), unpack.Kind(), numOutputs)
}
