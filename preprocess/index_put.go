package preprocess

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnxprep/ir"
	"k8s.io/klog/v2"
)

// ReplaceIndexPutWithMasked replaces aten::index_put_(dest, indices, value, accumulate) indexed by a single
// boolean mask with aten::masked_fill(dest, mask, value), if value is a scalar (rank 0) tensor, or
// aten::masked_scatter(dest, mask, value) otherwise:
//
//	%idx : Tensor?[] = prim::ListConstruct(%mask)
//	%out : Float(2, 2) = aten::index_put_(%dest, %idx, %v, %false)
//
// becomes, if %v is a rank-0 tensor,
//
//	%out : Float(2, 2) = aten::masked_fill(%dest, %mask, %v)
//
// The node is left unchanged if the indices list doesn't hold exactly one index, if the index scalar kind
// is not known to be Bool, or if the rank of value is unknown. In particular puts indexed by several tensors
// (e.g. "x[m1, m2] = v") are never lowered, even when the first index is a boolean mask: masking with only
// the first index would write to the wrong elements.
//
// The accumulate flag is discarded: the exporter must treat the rewritten puts as non-accumulating.
// Use Run with Options.StrictAccumulate to only rewrite puts whose flag is a constant false.
//
// It returns the number of replaced nodes.
func ReplaceIndexPutWithMasked(b *ir.Block) int {
	return replaceIndexPut(b, Options{})
}

func replaceIndexPut(b *ir.Block, opts Options) int {
	return rewriteBlock(b, func(c *ir.Cursor) bool {
		n := c.Node()
		if n.Kind() != ir.AtenIndexPut || len(n.Inputs()) < 3 || len(n.Outputs()) != 1 {
			return false
		}
		mask := booleanMask(n.Input(1))
		if mask == nil {
			return false
		}
		valueType, ok := ir.AsTensor(n.Input(2).Type())
		if !ok {
			return false
		}
		rank, known := valueType.Rank()
		if !known {
			return false
		}
		if len(n.Inputs()) > 3 {
			accumulate := n.Input(3)
			switch constantBool(accumulate) {
			case boolTrue:
				if opts.StrictAccumulate {
					return false
				}
				klog.Warningf("ReplaceIndexPutWithMasked: %s with accumulate=true lowered as non-accumulating", ir.AtenIndexPut)
			case boolUnknown:
				if opts.StrictAccumulate {
					return false
				}
			}
		}

		kind := ir.AtenMaskedScatter
		if rank == 0 {
			kind = ir.AtenMaskedFill
		}
		masked := n.Graph().Create(kind, 1)
		masked.InsertBefore(n)
		masked.AddInput(n.Input(0))
		masked.AddInput(mask)
		masked.AddInput(n.Input(2))
		masked.Output().CopyMetadata(n.Output())
		n.ReplaceAllUsesWith(masked)
		n.RemoveAllInputs()
		c.DestroyCurrent()
		klog.V(2).Infof("ReplaceIndexPutWithMasked: replaced %s with %s", ir.AtenIndexPut, kind)
		return true
	})
}

// booleanMask returns the only index of the indices list if it is a tensor known to be of Bool scalar kind,
// or nil otherwise. The indices list is the output of its producer, whose inputs are the list elements.
func booleanMask(indices *ir.Value) *ir.Value {
	listNode := indices.Node()
	if len(listNode.Inputs()) != 1 {
		return nil
	}
	mask := listNode.Input(0)
	maskType, ok := ir.AsTensor(mask.Type())
	if !ok {
		return nil
	}
	dtype, known := maskType.ScalarKind()
	if !known || dtype != dtypes.Bool {
		return nil
	}
	return mask
}

type constantBoolValue int

const (
	boolUnknown constantBoolValue = iota
	boolFalse
	boolTrue
)

// constantBool returns the value of v if it is produced by a prim::Constant with an integer "value" attribute.
func constantBool(v *ir.Value) constantBoolValue {
	producer := v.Node()
	if producer.Kind() != ir.PrimConstant {
		return boolUnknown
	}
	attr := producer.Attribute(ir.ValueAttr)
	if attr == nil || attr.Kind != ir.AttrInt {
		return boolUnknown
	}
	if attr.I != 0 {
		return boolTrue
	}
	return boolFalse
}
