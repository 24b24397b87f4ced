package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// Type is the type of Value. It is one of *TensorType, *ListType, *OptionalType, *TupleType,
// IntType, FloatType, BoolType, StringType or NoneType.
//
// String returns the textual IR form of the type, which is also the canonical form used for equality.
type Type interface {
	fmt.Stringer
	isType()
}

// IntType is the type of Python-like integer scalars.
type IntType struct{}

// FloatType is the type of Python-like float scalars.
type FloatType struct{}

// BoolType is the type of booleans.
type BoolType struct{}

// StringType is the type of strings.
type StringType struct{}

// NoneType is the type of the None constant.
type NoneType struct{}

func (IntType) isType()    {}
func (FloatType) isType()  {}
func (BoolType) isType()   {}
func (StringType) isType() {}
func (NoneType) isType()   {}

func (IntType) String() string    { return "int" }
func (FloatType) String() string  { return "float" }
func (BoolType) String() string   { return "bool" }
func (StringType) String() string { return "str" }
func (NoneType) String() string   { return "None" }

// UnknownDim is used in TensorType dimensions for an axis of unknown size.
const UnknownDim = -1

// TensorType is the type of a tensor, with optionally known scalar kind and shape.
type TensorType struct {
	// DType is the scalar kind, or dtypes.InvalidDType if unknown.
	DType dtypes.DType

	// Dims holds the dimensions if the rank is known: use UnknownDim for axes of unknown size.
	// It is only valid if RankKnown is true.
	Dims []int

	// RankKnown indicates whether Dims is meaningful.
	RankKnown bool
}

func (*TensorType) isType() {}

// Tensor returns a tensor type with unknown scalar kind and rank.
func Tensor() *TensorType {
	return &TensorType{}
}

// TensorOf returns a tensor type with known scalar kind and rank.
// Pass no dimensions for a scalar (rank-0) tensor and UnknownDim for axes of unknown size.
func TensorOf(dtype dtypes.DType, dims ...int) *TensorType {
	if dims == nil {
		dims = []int{}
	}
	return &TensorType{DType: dtype, Dims: dims, RankKnown: true}
}

// TensorWithDType returns a tensor type with known scalar kind but unknown rank.
func TensorWithDType(dtype dtypes.DType) *TensorType {
	return &TensorType{DType: dtype}
}

// ScalarKind returns the tensor scalar kind and whether it is known.
func (t *TensorType) ScalarKind() (dtypes.DType, bool) {
	return t.DType, t.DType != dtypes.InvalidDType
}

// Rank returns the tensor rank and whether it is known.
func (t *TensorType) Rank() (int, bool) {
	if !t.RankKnown {
		return 0, false
	}
	return len(t.Dims), true
}

// String implements Type.
func (t *TensorType) String() string {
	var sb strings.Builder
	if t.DType == dtypes.InvalidDType {
		sb.WriteString("Tensor")
		if !t.RankKnown {
			return sb.String()
		}
	} else {
		sb.WriteString(ScalarName(t.DType))
	}
	sb.WriteByte('(')
	if !t.RankKnown {
		sb.WriteByte('*')
	}
	for ii, dim := range t.Dims {
		if ii > 0 {
			sb.WriteString(", ")
		}
		if dim < 0 {
			sb.WriteByte('?')
		} else {
			fmt.Fprintf(&sb, "%d", dim)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// ListType is a homogeneous list of elements of type Elem.
type ListType struct {
	Elem Type
}

func (*ListType) isType() {}

// ListOf returns a list type of the given element type.
func ListOf(elem Type) *ListType { return &ListType{Elem: elem} }

// String implements Type.
func (t *ListType) String() string { return t.Elem.String() + "[]" }

// OptionalType is a value of type Elem or None.
type OptionalType struct {
	Elem Type
}

func (*OptionalType) isType() {}

// OptionalOf returns an optional type of the given element type.
func OptionalOf(elem Type) *OptionalType { return &OptionalType{Elem: elem} }

// String implements Type.
func (t *OptionalType) String() string { return t.Elem.String() + "?" }

// TupleType is a fixed size heterogeneous tuple.
type TupleType struct {
	Elems []Type
}

func (*TupleType) isType() {}

// TupleOf returns a tuple type with the given element types.
func TupleOf(elems ...Type) *TupleType { return &TupleType{Elems: elems} }

// String implements Type.
func (t *TupleType) String() string {
	parts := make([]string, len(t.Elems))
	for ii, elem := range t.Elems {
		parts[ii] = elem.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// AsTensor downcasts t to a *TensorType.
func AsTensor(t Type) (*TensorType, bool) {
	tt, ok := t.(*TensorType)
	return tt, ok
}

// AsList downcasts t to a *ListType.
func AsList(t Type) (*ListType, bool) {
	lt, ok := t.(*ListType)
	return lt, ok
}

// IsInt returns whether t is the integer scalar type.
func IsInt(t Type) bool {
	_, ok := t.(IntType)
	return ok
}

// IsIntList returns whether t is a list of integer scalars (int[]).
func IsIntList(t Type) bool {
	lt, ok := AsList(t)
	return ok && IsInt(lt.Elem)
}

// TypesEqual returns whether the two types are structurally the same.
func TypesEqual(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// TensorFromNumberType returns the 1-D tensor type holding numbers of the given scalar type:
// int maps to Long, float to Double and bool to Bool.
// The length of the tensor is unknown.
func TensorFromNumberType(elem Type) *TensorType {
	switch elem.(type) {
	case IntType:
		return TensorOf(dtypes.Int64, UnknownDim)
	case FloatType:
		return TensorOf(dtypes.Float64, UnknownDim)
	case BoolType:
		return TensorOf(dtypes.Bool, UnknownDim)
	default:
		return Tensor()
	}
}
