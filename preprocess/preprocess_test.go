package preprocess

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/onnxprep/ir"
	"github.com/gomlx/onnxprep/ir/irtext"
	"github.com/janpfeifer/must"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestGraph(t *testing.T, name string) *ir.Graph {
	t.Helper()
	return must.M1(irtext.ParseFile(filepath.Join("testdata", name+".ir")))
}

func TestGolden(t *testing.T) {
	testCases := []struct {
		golden, input string
		opts          Options
	}{
		{"split_fusion", "split_fusion", Options{}},
		{"split_fusion_dce", "split_fusion", Options{EliminateDeadUnpacks: true}},
		{"list_add_nested", "list_add_nested", Options{}},
		{"list_gather", "list_gather", Options{}},
		{"list_gather_dce", "list_gather", Options{EliminateDeadUnpacks: true}},
		{"index_put", "index_put", Options{}},
	}
	for _, tc := range testCases {
		t.Run(tc.golden, func(t *testing.T) {
			g := loadTestGraph(t, tc.input)
			tc.opts.Lint = true
			Run(g, tc.opts)
			require.NoError(t, g.Lint())
			gold := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			gold.Assert(t, tc.golden, []byte(g.String()))

			// The preprocessed graph parses back to the same text.
			reparsed := must.M1(irtext.Parse(g.String()))
			assert.Equal(t, g.String(), reparsed.String())
		})
	}
}

func TestPassesOrder(t *testing.T) {
	var names []string
	for _, pass := range Passes() {
		names = append(names, pass.Name)
	}
	assert.Equal(t, []string{"FuseListUnpack", "ReplaceAddWithConcat", "ReplaceIndexPutWithMasked", "ExpandListUnpackToGather"}, names)
}

func TestRunStats(t *testing.T) {
	g := loadTestGraph(t, "mixed")
	stats := Run(g, Options{Lint: true})
	assert.Equal(t, Stats{
		{Name: "FuseListUnpack", Rewrites: 1},
		{Name: "ReplaceAddWithConcat", Rewrites: 1},
		{Name: "ReplaceIndexPutWithMasked", Rewrites: 1},
		{Name: "ExpandListUnpackToGather", Rewrites: 1},
	}, stats)
	assert.Equal(t, 4, stats.Total())
	require.NoError(t, g.Lint())

	assert.Len(t, g.FindNodes(ir.AtenUnbind), 1)
	assert.Len(t, g.FindNodes(ir.AtenUnbind)[0].Outputs(), 6)
	assert.Len(t, g.FindNodes(ir.AtenSplit), 1, "split with two consumers is not fused")
	assert.Len(t, g.FindNodes(ir.AtenSplit)[0].Outputs(), 1)
	assert.Empty(t, g.FindNodes(ir.AtenAdd))
	assert.Empty(t, g.FindNodes(ir.AtenIndexPut))
	assert.Len(t, g.FindNodes(ir.AtenMaskedFill), 1)
	assert.Len(t, g.FindNodes(ir.OnnxGather), 2)

	// With dead-code elimination, only the prim::ListUnpack of the unfused split remains.
	stats = Run(loadTestGraph(t, "mixed"), Options{EliminateDeadUnpacks: true})
	require.Len(t, stats, 5)
	assert.Equal(t, PassStat{Name: "EliminateDeadListUnpacks", Rewrites: 2}, stats[4])
}

func TestIdempotent(t *testing.T) {
	for _, name := range []string{"split_fusion", "list_add_nested", "list_gather", "index_put", "mixed"} {
		t.Run(name, func(t *testing.T) {
			g := loadTestGraph(t, name)
			PreprocessForONNX(g)
			once := g.String()
			stats := Run(g, Options{Lint: true})
			assert.Equal(t, 0, stats.Total())
			assert.Equal(t, once, g.String())
		})
	}
}

func TestFuseListUnpack(t *testing.T) {
	g := loadTestGraph(t, "split_fusion")
	unpack := g.FindNodes(ir.PrimListUnpack)[0]
	assert.Equal(t, 1, FuseListUnpack(g.Block()))
	require.NoError(t, g.Lint())

	split := g.FindNodes(ir.AtenSplitWithSizes)[0]
	assert.Equal(t, int64(3), split.I(ir.OutputsAttr))
	require.Len(t, split.Outputs(), 3)
	assert.Equal(t, split.Outputs(), g.Outputs())
	for ii, output := range split.Outputs() {
		assert.Equal(t, ii, output.Offset())
		assert.Equal(t, unpack.OutputAt(ii).Type().String(), output.Type().String())
	}
	assert.Equal(t, "Float(1, 4, 3)", split.OutputAt(1).Type().String())

	// The prim::ListUnpack is dead: no inputs and unused outputs.
	assert.False(t, unpack.IsDestroyed())
	assert.Empty(t, unpack.Inputs())
	for _, output := range unpack.Outputs() {
		assert.False(t, output.HasUses())
	}
	assert.Equal(t, 1, EliminateDeadListUnpacks(g.Block()))
	assert.True(t, unpack.IsDestroyed())
	assert.Empty(t, g.FindNodes(ir.PrimListUnpack))
	require.NoError(t, g.Lint())
}

func TestFuseListUnpackProducers(t *testing.T) {
	for _, kind := range []ir.Symbol{ir.AtenSplit, ir.AtenSplitWithSizes, ir.AtenUnsafeSplit,
		ir.AtenUnsafeSplitWithSizes, ir.AtenUnbind, ir.AtenUnsafeChunk, ir.AtenWhere} {
		t.Run(string(kind), func(t *testing.T) {
			g := irtext.MustParse(`graph(%x : Float(4, 2)):
  %l : Tensor[] = ` + string(kind) + `(%x)
  %a : Float(2, 2), %b : Float(2, 2) = prim::ListUnpack(%l)
  return (%b, %a)
`)
			assert.Equal(t, 1, FuseListUnpack(g.Block()))
			producer := g.FindNodes(kind)[0]
			assert.Equal(t, []*ir.Value{producer.OutputAt(1), producer.OutputAt(0)}, g.Outputs())
			require.NoError(t, g.Lint())
		})
	}
}

func TestFuseListUnpackNotMatched(t *testing.T) {
	testCases := []struct {
		name, source string
	}{
		{"two consumers", `graph(%x : Float(4, 2)):
  %l : Tensor[] = aten::split(%x)
  %n : int = aten::len(%l)
  %a : Tensor, %b : Tensor = prim::ListUnpack(%l)
  return (%a, %b, %n)
`},
		{"no consumer", `graph(%x : Float(4, 2)):
  %l : Tensor[] = aten::split(%x)
  return (%x)
`},
		{"other consumer", `graph(%x : Float(4, 2)):
  %l : Tensor[] = aten::split(%x)
  %y : Tensor = aten::cat(%l)
  return (%y)
`},
		{"not a list producer", `graph(%x : Float(4, 2)):
  %l : Tensor[] = aten::chunk(%x)
  %a : Tensor, %b : Tensor = prim::ListUnpack(%l)
  return (%a, %b)
`},
		{"graph output", `graph(%x : Float(4, 2)):
  %l : Tensor[] = aten::split(%x)
  return (%l)
`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := irtext.MustParse(tc.source)
			before := g.String()
			assert.Equal(t, 0, FuseListUnpack(g.Block()))
			assert.Equal(t, before, g.String())
		})
	}
}

func TestRegisterFusibleListProducer(t *testing.T) {
	const chunk = ir.Symbol("aten::chunk")
	require.False(t, FusibleListProducers.Has(chunk))
	RegisterFusibleListProducer(chunk)
	defer delete(FusibleListProducers, chunk)

	g := irtext.MustParse(`graph(%x : Float(4, 2)):
  %l : Tensor[] = aten::chunk(%x)
  %a : Tensor, %b : Tensor = prim::ListUnpack(%l)
  return (%a, %b)
`)
	assert.Equal(t, 1, FuseListUnpack(g.Block()))
	assert.Equal(t, int64(2), g.FindNodes(chunk)[0].I(ir.OutputsAttr))
}

func TestReplaceAddWithConcat(t *testing.T) {
	g := irtext.MustParse(`graph(%x : Float(2, 3), %y : Float(4)):
  %s1 : int[] = aten::size(%x)
  %s2 : int[] = aten::size(%y)
  %r : int[] = aten::add(%s1, %s2)
  return (%r)
`)
	assert.Equal(t, 1, ReplaceAddWithConcat(g.Block()))
	require.NoError(t, g.Lint())
	assert.Empty(t, g.FindNodes(ir.AtenAdd))
	concat := g.FindNodes(ir.OnnxConcat)[0]
	assert.Equal(t, int64(0), concat.I(ir.AxisAttr))
	assert.Equal(t, []*ir.Value{g.ValueByName("s1"), g.ValueByName("s2")}, concat.Inputs())
	assert.Equal(t, []*ir.Value{concat.Output()}, g.Outputs())

	outputType, ok := ir.AsTensor(concat.Output().Type())
	require.True(t, ok)
	dtype, _ := outputType.ScalarKind()
	assert.Equal(t, dtypes.Int64, dtype)
	rank, _ := outputType.Rank()
	assert.Equal(t, 1, rank)
	assert.Equal(t, "r", concat.Output().DebugName())
}

func TestReplaceAddWithConcatNotMatched(t *testing.T) {
	testCases := []struct {
		name, source string
	}{
		{"float lists", `graph(%a : float[], %b : float[]):
  %r : float[] = aten::add(%a, %b)
  return (%r)
`},
		{"tensors", `graph(%a : Float(2), %b : Float(2)):
  %r : Float(2) = aten::add(%a, %b)
  return (%r)
`},
		{"list and tensor", `graph(%a : int[], %b : Long(2)):
  %r : Tensor = aten::add(%a, %b)
  return (%r)
`},
		{"int scalars", `graph(%a : int, %b : int):
  %r : int = aten::add(%a, %b)
  return (%r)
`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := irtext.MustParse(tc.source)
			before := g.String()
			assert.Equal(t, 0, ReplaceAddWithConcat(g.Block()))
			assert.Equal(t, before, g.String())
		})
	}
}

// indexPutGraph builds an aten::index_put_ of a Float(2, 2) with the given index and value types.
// accumulate is the name of the flag value: "false", "true" (constants) or "acc" (a graph input).
func indexPutGraph(maskType, valueType, accumulate string) *ir.Graph {
	source := strings.NewReplacer("{{mask}}", maskType, "{{value}}", valueType, "{{acc}}", accumulate).Replace(
		`graph(%dest : Float(2, 2), %mask : {{mask}}, %v : {{value}}, %acc : bool):
  %false : bool = prim::Constant[value=0]()
  %true : bool = prim::Constant[value=1]()
  %idx : Tensor?[] = prim::ListConstruct(%mask)
  %out : Float(2, 2) = aten::index_put_(%dest, %idx, %v, %{{acc}})
  return (%out)
`)
	return irtext.MustParse(source)
}

func TestReplaceIndexPutWithMasked(t *testing.T) {
	testCases := []struct {
		name, valueType string
		want            ir.Symbol
	}{
		{"scalar value", "Float()", ir.AtenMaskedFill},
		{"tensor value", "Float(4)", ir.AtenMaskedScatter},
		{"matrix value", "Float(2, 2)", ir.AtenMaskedScatter},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := indexPutGraph("Bool(2, 2)", tc.valueType, "false")
			assert.Equal(t, 1, ReplaceIndexPutWithMasked(g.Block()))
			require.NoError(t, g.Lint())
			assert.Empty(t, g.FindNodes(ir.AtenIndexPut))
			masked := g.FindNodes(tc.want)
			require.Len(t, masked, 1)
			assert.Equal(t, []*ir.Value{g.Inputs()[0], g.Inputs()[1], g.Inputs()[2]}, masked[0].Inputs())
			assert.Equal(t, []*ir.Value{masked[0].Output()}, g.Outputs())
			assert.Equal(t, "Float(2, 2)", masked[0].Output().Type().String())
			assert.Equal(t, "out", masked[0].Output().DebugName())
		})
	}
}

func TestReplaceIndexPutNotMatched(t *testing.T) {
	testCases := []struct {
		name, maskType, valueType string
	}{
		{"integer index", "Long(2)", "Float()"},
		{"unknown index scalar kind", "Tensor", "Float()"},
		{"index not a tensor", "int", "Float()"},
		{"unknown value rank", "Bool(2, 2)", "Float"},
		{"value not a tensor", "Bool(2, 2)", "float"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := indexPutGraph(tc.maskType, tc.valueType, "false")
			before := g.String()
			assert.Equal(t, 0, ReplaceIndexPutWithMasked(g.Block()))
			assert.Equal(t, before, g.String())
		})
	}

	t.Run("two indices", func(t *testing.T) {
		g := irtext.MustParse(`graph(%dest : Float(2, 2), %m1 : Bool(2), %m2 : Bool(2), %v : Float()):
  %false : bool = prim::Constant[value=0]()
  %idx : Tensor?[] = prim::ListConstruct(%m1, %m2)
  %out : Float(2, 2) = aten::index_put_(%dest, %idx, %v, %false)
  return (%out)
`)
		assert.Equal(t, 0, ReplaceIndexPutWithMasked(g.Block()))
	})
	t.Run("indices from a graph input", func(t *testing.T) {
		g := irtext.MustParse(`graph(%dest : Float(2, 2), %idx : Tensor?[], %v : Float()):
  %false : bool = prim::Constant[value=0]()
  %out : Float(2, 2) = aten::index_put_(%dest, %idx, %v, %false)
  return (%out)
`)
		assert.Equal(t, 0, ReplaceIndexPutWithMasked(g.Block()))
	})
}

func TestReplaceIndexPutAccumulate(t *testing.T) {
	testCases := []struct {
		accumulate      string
		lenient, strict int
	}{
		{"false", 1, 1},
		{"true", 1, 0},
		{"acc", 1, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.accumulate, func(t *testing.T) {
			g := indexPutGraph("Bool(2, 2)", "Float()", tc.accumulate)
			assert.Equal(t, tc.lenient, replaceIndexPut(g.Block(), Options{}))
			g = indexPutGraph("Bool(2, 2)", "Float()", tc.accumulate)
			assert.Equal(t, tc.strict, replaceIndexPut(g.Block(), Options{StrictAccumulate: true}))
		})
	}
}

func TestExpandListUnpackToGather(t *testing.T) {
	g := loadTestGraph(t, "list_gather")
	unpack := g.FindNodes(ir.PrimListUnpack)[0]
	sz := g.ValueByName("sz")
	assert.Equal(t, 1, ExpandListUnpackToGather(g.Block()))
	require.NoError(t, g.Lint())

	gathers := g.FindNodes(ir.OnnxGather)
	require.Len(t, gathers, 2)
	for ii, gather := range gathers {
		assert.Equal(t, sz, gather.Input(0))
		index := gather.Input(1).Node()
		assert.Equal(t, ir.OnnxConstant, index.Kind())
		assert.Equal(t, int64(ii), index.T(ir.ValueAttr).Value())
		assert.Equal(t, "int", gather.Output().Type().String())
		assert.False(t, unpack.OutputAt(ii).HasUses())
	}
	shape := g.FindNodes(ir.PrimListConstruct)[0]
	assert.Equal(t, []*ir.Value{gathers[1].Output(), gathers[0].Output()}, shape.Inputs())

	// The prim::ListUnpack is kept, still consuming the list.
	assert.False(t, unpack.IsDestroyed())
	assert.Equal(t, []*ir.Value{sz}, unpack.Inputs())
}

func TestExpandListUnpackToGatherNotMatched(t *testing.T) {
	testCases := []struct {
		name, source string
	}{
		{"list construct", `graph(%a : int, %b : int):
  %l : int[] = prim::ListConstruct(%a, %b)
  %c : int, %d : int = prim::ListUnpack(%l)
  %r : int[] = prim::ListConstruct(%d, %c)
  return (%r)
`},
		{"tensor list", `graph(%x : Float(4, 2)):
  %l : Tensor[] = aten::unsafe_chunk(%x)
  %n : int = aten::len(%l)
  %a : Tensor, %b : Tensor = prim::ListUnpack(%l)
  return (%a, %b, %n)
`},
		{"unused elements", `graph(%x : Float(4, 2)):
  %sz : int[] = aten::size(%x)
  %a : int, %b : int = prim::ListUnpack(%sz)
  return (%sz)
`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := irtext.MustParse(tc.source)
			before := g.String()
			assert.Equal(t, 0, ExpandListUnpackToGather(g.Block()))
			assert.Equal(t, before, g.String())
		})
	}
}

func TestExpandListUnpackToGatherPartialUse(t *testing.T) {
	g := irtext.MustParse(`graph(%x : Float(4, 2, 3)):
  %sz : int[] = aten::size(%x)
  %a : int, %b : int, %c : int = prim::ListUnpack(%sz)
  return (%c)
`)
	unpack := g.FindNodes(ir.PrimListUnpack)[0]
	assert.Equal(t, 1, ExpandListUnpackToGather(g.Block()))
	require.NoError(t, g.Lint())

	// Every element is gathered once any of them is used.
	gathers := g.FindNodes(ir.OnnxGather)
	require.Len(t, gathers, 3)
	for ii, gather := range gathers {
		assert.Equal(t, int64(ii), gather.Input(1).Node().T(ir.ValueAttr).Value())
		assert.Equal(t, "int", gather.Output().Type().String())
		assert.False(t, unpack.OutputAt(ii).HasUses())
	}
	assert.Equal(t, []*ir.Value{gathers[2].Output()}, g.Outputs())
	assert.Equal(t, 0, ExpandListUnpackToGather(g.Block()))
}

func TestExpandListUnpackToGatherSingleUse(t *testing.T) {
	g := irtext.MustParse(`graph(%x : Float(4, 2)):
  %sz : int[] = aten::size(%x)
  %a : int, %b : int = prim::ListUnpack(%sz)
  %n : Tensor = aten::scalar_tensor(%b)
  return (%n)
`)
	assert.Equal(t, 1, ExpandListUnpackToGather(g.Block()))
	require.NoError(t, g.Lint())
	assert.Equal(t, `graph(%x : Float(4, 2)):
  %sz : int[] = aten::size(%x)
  %5 : Long() = onnx::Constant[value={0}]()
  %a : int = onnx::Gather(%sz, %5)
  %7 : Long() = onnx::Constant[value={1}]()
  %b : int = onnx::Gather(%sz, %7)
  %a.1 : int, %b.1 : int = prim::ListUnpack(%sz)
  %n : Tensor = aten::scalar_tensor(%b)
  return (%n)
`, g.String())

	// The printed result parses back to the same graph.
	assert.Equal(t, g.String(), irtext.MustParse(g.String()).String())
}

// TestPassInteractions checks that later passes see the result of earlier ones.
func TestPassInteractions(t *testing.T) {
	t.Run("concat output is not unpacked", func(t *testing.T) {
		g := irtext.MustParse(`graph(%x : Float(2, 3), %y : Float(4)):
  %s1 : int[] = aten::size(%x)
  %s2 : int[] = aten::size(%y)
  %s : int[] = aten::add(%s1, %s2)
  %a : int, %b : int, %c : int = prim::ListUnpack(%s)
  return (%a, %b, %c)
`)
		stats := Run(g, Options{Lint: true})
		assert.Equal(t, 1, stats[1].Rewrites)
		assert.Equal(t, 0, stats[3].Rewrites)
		assert.Empty(t, g.FindNodes(ir.OnnxGather))
	})
	t.Run("fused unpack is not expanded", func(t *testing.T) {
		g := irtext.MustParse(`graph(%x : Float(2, 3)):
  %l : int[] = aten::split(%x)
  %a : int, %b : int = prim::ListUnpack(%l)
  return (%a, %b)
`)
		stats := Run(g, Options{Lint: true})
		assert.Equal(t, 1, stats[0].Rewrites)
		assert.Equal(t, 0, stats[3].Rewrites)
	})
}

func TestNestedBlocks(t *testing.T) {
	g := irtext.MustParse(`graph(%x : Float(4, 2), %c : bool):
  %r : Tensor, %n : int = prim::Loop(%c)
    block0(%i : int):
      %l : Tensor[] = aten::split(%x)
      %a : Tensor, %b : Tensor = prim::ListUnpack(%l)
      %s : int[] = aten::size(%a)
      %inner : int = prim::If(%c)
        block0():
          %d0 : int, %d1 : int = prim::ListUnpack(%s)
          -> (%d1)
        block1():
          -> (%i)
      -> (%b, %inner)
  return (%r, %n)
`)
	stats := Run(g, Options{Lint: true})
	assert.Equal(t, 1, stats[0].Rewrites)
	assert.Equal(t, 1, stats[3].Rewrites)
	split := g.FindNodes(ir.AtenSplit)[0]
	assert.Len(t, split.Outputs(), 2)
	loop := g.FindNodes(ir.PrimLoop)[0]
	assert.Equal(t, split.OutputAt(1), loop.Blocks()[0].Outputs()[0])

	gathers := g.FindNodes(ir.OnnxGather)
	require.Len(t, gathers, 2)
	ifNode := g.FindNodes(ir.PrimIf)[0]
	for _, gather := range gathers {
		assert.Equal(t, ifNode.Blocks()[0], gather.OwningBlock())
	}
	assert.Equal(t, gathers[1].Output(), ifNode.Blocks()[0].Outputs()[0])
}
