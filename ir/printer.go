package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// String implements fmt.Stringer, and pretty-prints the graph in the textual IR form, e.g.:
//
//	graph(%x : Float(5, 4, 3)):
//	  %1 : Tensor[] = aten::split_with_sizes(%x, %sizes, %dim)
//	  %a : Float(2, 4, 3), %b : Float(3, 4, 3) = prim::ListUnpack(%1)
//	  return (%a, %b)
//
// The output can be parsed back with the irtext package.
func (g *Graph) String() string {
	var buf bytes.Buffer
	// w writes to the buffer.
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("graph(%s):\n", typedValues(g.block.Inputs()))
	printNodes(w, g.block, 1)
	w("  return (%s)\n", valueNames(g.block.Outputs()))
	return buf.String()
}

// String implements fmt.Stringer, and prints the node in one line, without nested blocks.
func (n *Node) String() string {
	return nodeLine(n)
}

// String implements fmt.Stringer, and returns the value name prefixed by "%".
func (v *Value) String() string {
	return "%" + v.Name()
}

func printNodes(w func(format string, args ...any), b *Block, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range b.Nodes() {
		w("%s%s\n", indent, nodeLine(n))
		for ii, child := range n.blocks {
			w("%s  block%d(%s):\n", indent, ii, typedValues(child.Inputs()))
			printNodes(w, child, depth+2)
			w("%s    -> (%s)\n", indent, valueNames(child.Outputs()))
		}
	}
}

func nodeLine(n *Node) string {
	var sb strings.Builder
	if len(n.outputs) > 0 {
		sb.WriteString(typedValues(n.outputs))
		sb.WriteString(" ")
	}
	sb.WriteString("= ")
	sb.WriteString(string(n.kind))
	if len(n.attributes) > 0 {
		sb.WriteByte('[')
		for ii, name := range n.AttributeNames() {
			if ii > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(name)
			sb.WriteByte('=')
			sb.WriteString(n.attributes[name].String())
		}
		sb.WriteByte(']')
	}
	sb.WriteByte('(')
	sb.WriteString(valueNames(n.inputs))
	sb.WriteByte(')')
	return sb.String()
}

func typedValues(values []*Value) string {
	parts := make([]string, len(values))
	for ii, v := range values {
		parts[ii] = fmt.Sprintf("%%%s : %s", v.Name(), v.typ)
	}
	return strings.Join(parts, ", ")
}

func valueNames(values []*Value) string {
	parts := make([]string, len(values))
	for ii, v := range values {
		parts[ii] = "%" + v.Name()
	}
	return strings.Join(parts, ", ")
}

// String returns the textual IR form of the attribute value.
func (a *Attribute) String() string {
	switch a.Kind {
	case AttrInt:
		return strconv.FormatInt(a.I, 10)
	case AttrFloat:
		return formatFloat(a.F)
	case AttrInts:
		parts := make([]string, len(a.Ints))
		for ii, v := range a.Ints {
			parts[ii] = strconv.FormatInt(v, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case AttrFloats:
		parts := make([]string, len(a.Floats))
		for ii, v := range a.Floats {
			parts[ii] = formatFloat(v)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case AttrString:
		return strconv.Quote(a.S)
	case AttrTensor:
		return "{" + formatTensor(a.T) + "}"
	case AttrGraph:
		return "<Graph>"
	default:
		return "<invalid>"
	}
}

// formatFloat always includes a decimal point or exponent, so floats are distinguishable from ints.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// formatTensor formats scalar tensors as their value and 1-D tensors as a list.
// Other tensors use the tensors package formatting, which can't be parsed back.
func formatTensor(t *tensors.Tensor) string {
	if t == nil {
		return "<nil>"
	}
	switch value := t.Value().(type) {
	case int64:
		return strconv.FormatInt(value, 10)
	case int32:
		return strconv.FormatInt(int64(value), 10)
	case float64:
		return formatFloat(value)
	case float32:
		return formatFloat(float64(value))
	case []int64:
		parts := make([]string, len(value))
		for ii, v := range value {
			parts[ii] = strconv.FormatInt(v, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []float64:
		parts := make([]string, len(value))
		for ii, v := range value {
			parts[ii] = formatFloat(v)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return t.String()
	}
}
