// Package irtext parses the textual form of the IR, as printed by ir.Graph.String.
//
// Example:
//
//	graph(%x : Float(5, 4, 3)):
//	  %sizes : int[] = prim::Constant[value=[2, 1, 2]]()
//	  %dim : int = prim::Constant[value=0]()
//	  %l : Tensor[] = aten::split_with_sizes(%x, %sizes, %dim)
//	  %a : Float(2, 4, 3), %b : Float(1, 4, 3), %c : Float(2, 4, 3) = prim::ListUnpack(%l)
//	  return (%a, %b, %c)
//
// Types: "Tensor" (unknown scalar kind and shape), "Float(2, ?, 3)" (unknown axis size), "Bool(*)" (unknown rank),
// "Long()" (scalar tensor), "int", "float", "bool", "str", "None", lists "int[]", optionals "Tensor?" and
// tuples "(int, Tensor)".
//
// Attributes: ints ("3"), floats ("1.5"), strings, int and float lists ("[1, 2]") and tensors ("{0}" for a scalar,
// "{[1, 2]}" for a 1-D tensor).
//
// Nested blocks follow their node, each labeled "blockN(<inputs>):" and terminated by "-> (<outputs>)".
package irtext

import (
	"os"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/onnxprep/ir"
	"github.com/pkg/errors"
)

// Parse parses the textual IR into a new graph.
func Parse(source string) (*ir.Graph, error) {
	return parse("<string>", source)
}

// ParseFile reads and parses a file with the textual IR.
func ParseFile(filePath string) (*ir.Graph, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read IR file %s", filePath)
	}
	return parse(filePath, string(contents))
}

// MustParse parses the textual IR, and panics with an exception if it fails.
// It is meant for tests and static programs.
func MustParse(source string) *ir.Graph {
	g, err := Parse(source)
	if err != nil {
		exceptions.Panicf("irtext.MustParse(): %+v", err)
	}
	return g
}

// ErrorPosition returns the line and column of a parse error, if available.
func ErrorPosition(err error) (line, column int, ok bool) {
	var pErr participle.Error
	if !errors.As(err, &pErr) {
		return 0, 0, false
	}
	pos := pErr.Position()
	return pos.Line, pos.Column, true
}

func parse(filename, source string) (g *ir.Graph, err error) {
	// Panics from the parser or from the graph construction are returned as errors.
	if exception := exceptions.Try(func() { g, err = parseAndBuild(filename, source) }); exception != nil {
		return nil, errors.Errorf("failed to parse IR in %s: %v", filename, exception)
	}
	return g, err
}

func parseAndBuild(filename, source string) (*ir.Graph, error) {
	expr, err := irParser.ParseString(filename, source)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse IR in %s", filename)
	}
	b := &builder{g: ir.NewGraph()}
	if err := b.graph(expr); err != nil {
		return nil, errors.WithMessagef(err, "while building IR from %s", filename)
	}
	return b.g, nil
}

// scope maps value names to values, and falls back to the enclosing scope.
type scope struct {
	parent *scope
	values map[string]*ir.Value
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, values: make(map[string]*ir.Value)}
}

func (s *scope) lookup(name string) *ir.Value {
	for ; s != nil; s = s.parent {
		if v, found := s.values[name]; found {
			return v
		}
	}
	return nil
}

type builder struct {
	g *ir.Graph
}

func (b *builder) graph(expr *graphExpr) error {
	sc := newScope(nil)
	if err := b.blockBody(b.g.Block(), sc, expr.Inputs, expr.Nodes, expr.Returns); err != nil {
		return err
	}
	return nil
}

func (b *builder) blockBody(block *ir.Block, sc *scope, inputs []*typedValueExpr, nodes []*nodeExpr, returns []string) error {
	for _, input := range inputs {
		v := block.AddInput("")
		if err := b.define(sc, v, input); err != nil {
			return err
		}
	}
	for _, nodeE := range nodes {
		if err := b.node(block, sc, nodeE); err != nil {
			return err
		}
	}
	for _, name := range returns {
		v, err := b.use(sc, name)
		if err != nil {
			return errors.WithMessage(err, "in block outputs")
		}
		block.RegisterOutput(v)
	}
	return nil
}

func (b *builder) node(block *ir.Block, sc *scope, expr *nodeExpr) error {
	n := b.g.Create(ir.Symbol(expr.Kind), len(expr.Outputs))
	block.AppendNode(n)
	for _, name := range expr.Inputs {
		v, err := b.use(sc, name)
		if err != nil {
			return errors.WithMessagef(err, "in %s at %s", expr.Kind, expr.Pos)
		}
		n.AddInput(v)
	}
	for _, attrE := range expr.Attributes {
		if err := setAttribute(n, attrE); err != nil {
			return errors.WithMessagef(err, "in %s at %s", expr.Kind, expr.Pos)
		}
	}
	for _, blockE := range expr.Blocks {
		child := n.AddBlock()
		if err := b.blockBody(child, newScope(sc), blockE.Inputs, blockE.Nodes, blockE.Returns); err != nil {
			return errors.WithMessagef(err, "in %s of %s at %s", blockE.Label, expr.Kind, blockE.Pos)
		}
	}
	// Outputs are defined after the nested blocks, which can't refer to them.
	for ii, outputE := range expr.Outputs {
		if err := b.define(sc, n.OutputAt(ii), outputE); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) define(sc *scope, v *ir.Value, expr *typedValueExpr) error {
	name := expr.Name[1:]
	if _, found := sc.values[name]; found {
		return errors.Errorf("value %%%s redefined at %s", name, expr.Pos)
	}
	t, err := buildType(expr.Type)
	if err != nil {
		return errors.WithMessagef(err, "in the type of %%%s", name)
	}
	v.SetType(t)
	v.SetDebugName(name)
	sc.values[name] = v
	return nil
}

func (b *builder) use(sc *scope, ref string) (*ir.Value, error) {
	name := ref[1:]
	v := sc.lookup(name)
	if v == nil {
		return nil, errors.Errorf("undefined value %%%s", name)
	}
	return v, nil
}

func buildType(expr *typeExpr) (ir.Type, error) {
	var t ir.Type
	switch {
	case expr.Tuple != nil:
		elems := make([]ir.Type, len(expr.Tuple))
		for ii, elemE := range expr.Tuple {
			elem, err := buildType(elemE)
			if err != nil {
				return nil, err
			}
			elems[ii] = elem
		}
		t = ir.TupleOf(elems...)
	default:
		var err error
		t, err = buildNamedType(expr.Name, expr.Shape)
		if err != nil {
			return nil, errors.WithMessagef(err, "at %s", expr.Pos)
		}
	}
	for _, suffix := range expr.Suffixes {
		if suffix == "?" {
			t = ir.OptionalOf(t)
		} else {
			t = ir.ListOf(t)
		}
	}
	return t, nil
}

func buildNamedType(name string, shape *shapeExpr) (ir.Type, error) {
	var scalar ir.Type
	switch name {
	case "int":
		scalar = ir.IntType{}
	case "float":
		scalar = ir.FloatType{}
	case "bool":
		scalar = ir.BoolType{}
	case "str":
		scalar = ir.StringType{}
	case "None":
		scalar = ir.NoneType{}
	}
	if scalar != nil {
		if shape != nil {
			return nil, errors.Errorf("type %q can't have a shape", name)
		}
		return scalar, nil
	}

	dtype := dtypes.InvalidDType
	if name != "Tensor" {
		var err error
		dtype, err = ir.DTypeForScalarName(name)
		if err != nil {
			return nil, err
		}
	}
	if shape == nil {
		if dtype == dtypes.InvalidDType {
			return ir.Tensor(), nil
		}
		// A scalar kind without shape, e.g. "Float", is a tensor of unknown rank.
		return ir.TensorWithDType(dtype), nil
	}
	if shape.Unranked {
		return ir.TensorWithDType(dtype), nil
	}
	dims := make([]int, len(shape.Dims))
	for ii, dimE := range shape.Dims {
		if dimE.Unknown {
			dims[ii] = ir.UnknownDim
			continue
		}
		dim, err := strconv.Atoi(dimE.Size)
		if err != nil || dim < 0 {
			return nil, errors.Errorf("invalid dimension %q for axis %d", dimE.Size, ii)
		}
		dims[ii] = dim
	}
	return ir.TensorOf(dtype, dims...), nil
}

func setAttribute(n *ir.Node, expr *attributeExpr) error {
	valueE := expr.Value
	switch {
	case valueE.Number != nil:
		if valueE.Number.Float != "" {
			f, err := strconv.ParseFloat(valueE.Number.Float, 64)
			if err != nil {
				return errors.Wrapf(err, "attribute %q", expr.Name)
			}
			n.SetF(expr.Name, f)
			return nil
		}
		i, err := strconv.ParseInt(valueE.Number.Int, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "attribute %q", expr.Name)
		}
		n.SetI(expr.Name, i)
	case valueE.String != nil:
		n.SetS(expr.Name, *valueE.String)
	case valueE.List != nil:
		ints, floats, isFloat, err := parseNumbers(valueE.List.Items)
		if err != nil {
			return errors.WithMessagef(err, "attribute %q", expr.Name)
		}
		if isFloat {
			n.SetFs(expr.Name, floats)
		} else {
			n.SetIs(expr.Name, ints)
		}
	case valueE.Tensor != nil:
		t, err := buildTensor(valueE.Tensor)
		if err != nil {
			return errors.WithMessagef(err, "attribute %q", expr.Name)
		}
		n.SetT(expr.Name, t)
	case valueE.Graph:
		return errors.Errorf("attribute %q: subgraph attributes can't be parsed", expr.Name)
	default:
		return errors.Errorf("attribute %q has no value", expr.Name)
	}
	return nil
}

// parseNumbers converts the list items: if any of them is a float, they are all returned as floats.
func parseNumbers(items []*numberExpr) (ints []int64, floats []float64, isFloat bool, err error) {
	for _, item := range items {
		if item.Float != "" {
			isFloat = true
			break
		}
	}
	for _, item := range items {
		text := item.Int
		if item.Float != "" {
			text = item.Float
		}
		if isFloat {
			var f float64
			f, err = strconv.ParseFloat(text, 64)
			if err != nil {
				return
			}
			floats = append(floats, f)
		} else {
			var i int64
			i, err = strconv.ParseInt(text, 10, 64)
			if err != nil {
				return
			}
			ints = append(ints, i)
		}
	}
	if ints == nil && !isFloat {
		ints = []int64{}
	}
	return
}

func buildTensor(expr *tensorExpr) (*tensors.Tensor, error) {
	if expr.Scalar != nil {
		_, floats, isFloat, err := parseNumbers([]*numberExpr{expr.Scalar})
		if err != nil {
			return nil, err
		}
		if isFloat {
			return tensors.FromScalar(floats[0]), nil
		}
		i, err := strconv.ParseInt(expr.Scalar.Int, 10, 64)
		if err != nil {
			return nil, err
		}
		return tensors.FromScalar(i), nil
	}
	ints, floats, isFloat, err := parseNumbers(expr.List.Items)
	if err != nil {
		return nil, err
	}
	if isFloat {
		return tensors.FromValue(floats), nil
	}
	return tensors.FromValue(ints), nil
}
