package ir

import "strings"

// Symbol is a qualified node kind, in the form "namespace::name" (e.g. "aten::split").
//
// Symbols are plain strings, so comparing them is cheap and they can be used as map keys.
type Symbol string

// Kinds referenced by the IR itself and by the ONNX preprocessing passes.
const (
	PrimParam         Symbol = "prim::Param"
	PrimReturn        Symbol = "prim::Return"
	PrimConstant      Symbol = "prim::Constant"
	PrimListConstruct Symbol = "prim::ListConstruct"
	PrimListUnpack    Symbol = "prim::ListUnpack"
	PrimIf            Symbol = "prim::If"
	PrimLoop          Symbol = "prim::Loop"

	AtenSplit                Symbol = "aten::split"
	AtenSplitWithSizes       Symbol = "aten::split_with_sizes"
	AtenUnsafeSplit          Symbol = "aten::unsafe_split"
	AtenUnsafeSplitWithSizes Symbol = "aten::unsafe_split_with_sizes"
	AtenUnbind               Symbol = "aten::unbind"
	AtenUnsafeChunk          Symbol = "aten::unsafe_chunk"
	AtenWhere                Symbol = "aten::where"
	AtenAdd                  Symbol = "aten::add"
	AtenSize                 Symbol = "aten::size"
	AtenIndexPut             Symbol = "aten::index_put_"
	AtenMaskedFill           Symbol = "aten::masked_fill"
	AtenMaskedScatter        Symbol = "aten::masked_scatter"

	OnnxConcat   Symbol = "onnx::Concat"
	OnnxConstant Symbol = "onnx::Constant"
	OnnxGather   Symbol = "onnx::Gather"
)

// Attribute names used by the preprocessing passes.
const (
	OutputsAttr = "_outputs"
	AxisAttr    = "axis"
	ValueAttr   = "value"
)

// Namespace returns the part before "::", or "" if the symbol is not qualified.
func (s Symbol) Namespace() string {
	ns, _, found := strings.Cut(string(s), "::")
	if !found {
		return ""
	}
	return ns
}

// Name returns the unqualified part of the symbol.
func (s Symbol) Name() string {
	_, name, found := strings.Cut(string(s), "::")
	if !found {
		return string(s)
	}
	return name
}

// IsValid returns whether the symbol has a non-empty namespace and name.
func (s Symbol) IsValid() bool {
	ns, name, found := strings.Cut(string(s), "::")
	return found && ns != "" && name != ""
}

// String implements fmt.Stringer.
func (s Symbol) String() string { return string(s) }
