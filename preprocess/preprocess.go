// Package preprocess rewrites a tensor-program graph (see package ir) so that it can be exported to ONNX.
//
// The front-end operator set returns dynamic-length lists of tensors, performs list arithmetic,
// uses boolean-mask in-place indexing and destructures lists. ONNX expects statically-shaped
// multi-output nodes, tensor concatenation, explicit masked-fill/scatter and indexed gather.
// PreprocessForONNX runs, in this order:
//
//  1. FuseListUnpack: list producers (split, unbind, ...) consumed only by a prim::ListUnpack become
//     multi-output nodes, annotated with the number of outputs in the "_outputs" attribute.
//  2. ReplaceAddWithConcat: aten::add of two int[] becomes onnx::Concat[axis=0].
//  3. ReplaceIndexPutWithMasked: aten::index_put_ with a single boolean mask becomes aten::masked_fill
//     (scalar value) or aten::masked_scatter (tensor value). Puts with more than one index are not lowered.
//  4. ExpandListUnpackToGather: prim::ListUnpack of an int[] not built by prim::ListConstruct becomes one
//     onnx::Gather per element, once any element is used.
//
// The order is part of the contract: e.g., a split fused by the first pass leaves a dead prim::ListUnpack
// that the fourth pass no longer matches.
//
// Patterns that don't match (including the ones with missing type information) are silently skipped.
// The passes are single-threaded and mutate the graph in place.
package preprocess

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnxprep/ir"
	"k8s.io/klog/v2"
)

// Options configures Run. The zero value is what PreprocessForONNX uses.
type Options struct {
	// StrictAccumulate only lowers aten::index_put_ when its accumulate flag is a constant false.
	// By default the flag is discarded, and the exporter must treat the put as non-accumulating.
	StrictAccumulate bool `yaml:"strict_accumulate"`

	// EliminateDeadUnpacks removes prim::ListUnpack nodes left without used outputs by the passes.
	// By default they are left for a later dead-code elimination pass.
	EliminateDeadUnpacks bool `yaml:"eliminate_dead_unpacks"`

	// Lint checks the graph invariants (see ir.Graph.Lint) after every pass, and panics if they are violated.
	Lint bool `yaml:"lint"`
}

// Pass is one rewrite over a block and, recursively, its nested blocks.
type Pass struct {
	// Name of the pass, used in logs and Stats.
	Name string

	// Apply rewrites the block in place, and returns the number of rewrites.
	Apply func(b *ir.Block, opts Options) int
}

// passes in the order they must run.
var passes = []Pass{
	{Name: "FuseListUnpack", Apply: func(b *ir.Block, _ Options) int { return FuseListUnpack(b) }},
	{Name: "ReplaceAddWithConcat", Apply: func(b *ir.Block, _ Options) int { return ReplaceAddWithConcat(b) }},
	{Name: "ReplaceIndexPutWithMasked", Apply: replaceIndexPut},
	{Name: "ExpandListUnpackToGather", Apply: func(b *ir.Block, _ Options) int { return ExpandListUnpackToGather(b) }},
}

// Passes returns the passes run by PreprocessForONNX, in order.
func Passes() []Pass {
	return append([]Pass(nil), passes...)
}

// PassStat reports the number of rewrites of one pass.
type PassStat struct {
	Name     string
	Rewrites int
}

// Stats reports the rewrites of each pass run, in order.
type Stats []PassStat

// Total returns the total number of rewrites.
func (s Stats) Total() int {
	total := 0
	for _, stat := range s {
		total += stat.Rewrites
	}
	return total
}

// PreprocessForONNX rewrites g in place for ONNX export. See package documentation.
func PreprocessForONNX(g *ir.Graph) {
	Run(g, Options{})
}

// Run is PreprocessForONNX with options. It returns the number of rewrites of each pass.
func Run(g *ir.Graph, opts Options) Stats {
	runPasses := Passes()
	if opts.EliminateDeadUnpacks {
		runPasses = append(runPasses, Pass{
			Name:  "EliminateDeadListUnpacks",
			Apply: func(b *ir.Block, _ Options) int { return EliminateDeadListUnpacks(b) },
		})
	}
	stats := make(Stats, 0, len(runPasses))
	for _, pass := range runPasses {
		count := pass.Apply(g.Block(), opts)
		stats = append(stats, PassStat{Name: pass.Name, Rewrites: count})
		klog.V(1).Infof("preprocess: %s rewrote %d nodes", pass.Name, count)
		if opts.Lint {
			if err := g.Lint(); err != nil {
				exceptions.Panicf("preprocess: graph invariants violated after %s: %+v", pass.Name, err)
			}
		}
	}
	return stats
}

// rewriteBlock walks the block in program order. For each node it first recurses into the node's nested
// blocks, then calls rewrite with the cursor pointing to the node. rewrite returns whether it rewrote the node.
//
// rewrite may insert nodes before the current one (they are not visited) and destroy the current node
// with Cursor.DestroyCurrent.
func rewriteBlock(b *ir.Block, rewrite func(c *ir.Cursor) bool) int {
	count := 0
	for c := b.Cursor(); c.Next(); {
		for _, child := range c.Node().Blocks() {
			count += rewriteBlock(child, rewrite)
		}
		if rewrite(c) {
			count++
		}
	}
	return count
}

// soleUse returns the only use of v, or false if there are 0 or 2+ uses.
func soleUse(v *ir.Value) (ir.Use, bool) {
	uses := v.Uses()
	if len(uses) == 1 {
		return uses[0], true
	}
	return ir.Use{}, false
}
