package ir

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// scalarNameToDType maps the tensor scalar-kind names used in the textual IR to GoMLX data types.
//
// The names follow the exporter's front-end convention ("Float" is 32 bits, "Long" is a 64 bits integer).
var scalarNameToDType = map[string]dtypes.DType{
	"Float":         dtypes.Float32,
	"Double":        dtypes.Float64,
	"Half":          dtypes.Float16,
	"BFloat16":      dtypes.BFloat16,
	"Long":          dtypes.Int64,
	"Int":           dtypes.Int32,
	"Short":         dtypes.Int16,
	"Char":          dtypes.Int8,
	"Byte":          dtypes.Uint8,
	"Bool":          dtypes.Bool,
	"ComplexFloat":  dtypes.Complex64,
	"ComplexDouble": dtypes.Complex128,
}

var dtypeToScalarName map[dtypes.DType]string

func init() {
	dtypeToScalarName = make(map[dtypes.DType]string, len(scalarNameToDType))
	for name, dtype := range scalarNameToDType {
		dtypeToScalarName[dtype] = name
	}
}

// DTypeForScalarName converts a tensor scalar-kind name to a GoMLX data type.
//
// Both the front-end names ("Float", "Long", "Bool") and the GoMLX names ("Float32", "Int64") are accepted.
func DTypeForScalarName(name string) (dtypes.DType, error) {
	if dtype, found := scalarNameToDType[name]; found {
		return dtype, nil
	}
	if dtype, found := dtypes.MapOfNames[name]; found && dtype != dtypes.InvalidDType {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported/unknown tensor scalar kind %q", name)
}

// ScalarName returns the textual IR name for the dtype.
// DTypes without a front-end name use the GoMLX name.
func ScalarName(dtype dtypes.DType) string {
	if name, found := dtypeToScalarName[dtype]; found {
		return name
	}
	return dtype.String()
}

// IsScalarName returns whether name can be used as a tensor scalar kind.
func IsScalarName(name string) bool {
	_, err := DTypeForScalarName(name)
	return err == nil
}
