package preprocess

import (
	"github.com/gomlx/onnxprep/ir"
	"k8s.io/klog/v2"
)

// ReplaceAddWithConcat replaces aten::add of two int lists (list concatenation) with onnx::Concat[axis=0]:
//
//	%s1 : int[] = aten::size(%x)
//	%s2 : int[] = aten::size(%y)
//	%r : int[] = aten::add(%s1, %s2)
//
// becomes
//
//	%r : Long(?) = onnx::Concat[axis=0](%s1, %s2)
//
// Adds of lists of any other element type, or of non-lists, are left unchanged.
//
// It returns the number of replaced nodes.
func ReplaceAddWithConcat(b *ir.Block) int {
	return rewriteBlock(b, func(c *ir.Cursor) bool {
		n := c.Node()
		if n.Kind() != ir.AtenAdd || len(n.Inputs()) < 2 || len(n.Outputs()) != 1 {
			return false
		}
		if !ir.IsIntList(n.Input(0).Type()) || !ir.IsIntList(n.Input(1).Type()) {
			return false
		}
		concat := n.Graph().Create(ir.OnnxConcat, 1)
		concat.SetI(ir.AxisAttr, 0)
		concat.InsertBefore(n)
		concat.AddInput(n.Input(0))
		concat.AddInput(n.Input(1))
		concat.Output().CopyMetadata(n.Output()).SetType(ir.TensorFromNumberType(ir.IntType{}))
		n.ReplaceAllUsesWith(concat)
		n.RemoveAllInputs()
		c.DestroyCurrent()
		klog.V(2).Infof("ReplaceAddWithConcat: replaced %s of int lists with %s", ir.AtenAdd, ir.OnnxConcat)
		return true
	})
}
