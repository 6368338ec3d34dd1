// Package transform applies a spec export's transformation chain to a
// normalized dataset, replacing the predecessor's pandas-based pipeline
// (gin/executor/transform/transform_exec.go) with a row-oriented one:
// datasets are []map[string]any rather than a DataFrame. Grounded on
// transform_funtions.py for the function set and transform_exec.go for
// the per-field transformation-chain semantics.
package transform

import (
	"fmt"

	"github.com/KathyBarabash/asg-runtime/internal/spec"
	"github.com/KathyBarabash/asg-runtime/pkg/aerrors"
)

// Row is one record of a dataset: a flat map from field name to value.
type Row = map[string]any

// Func is a single named transformation step. It receives the row the
// export reads from (the source row with the fields already computed for
// this output record laid over it) and the step's params, and returns the
// value to store at its output field.
type Func func(src Row, params map[string]any) (any, error)

// Registry maps function names to their implementations. The zero value
// is the builtin set; callers needing additional functions should copy
// Builtins and extend it rather than mutate the shared map.
type Registry map[string]Func

// Builtins mirrors the predecessor's transform_funtions.functions table.
var Builtins = Registry{
	"map_field":          mapField,
	"concatenate_fields": concatenateFields,
	"multiply_by_value":  multiplyByValue,
	"substract_columns":  subtractColumns,
}

func mapField(src Row, params map[string]any) (any, error) {
	source, err := stringParam(params, "source")
	if err != nil {
		return nil, err
	}
	return src[source], nil
}

func concatenateFields(src Row, params map[string]any) (any, error) {
	col1, err := stringParam(params, "col1")
	if err != nil {
		return nil, err
	}
	col2, err := stringParam(params, "col2")
	if err != nil {
		return nil, err
	}
	return fmt.Sprint(src[col1]) + fmt.Sprint(src[col2]), nil
}

func multiplyByValue(src Row, params map[string]any) (any, error) {
	column, err := stringParam(params, "column")
	if err != nil {
		return nil, err
	}
	factor, ok := numeric(params["value"])
	if !ok {
		return nil, fmt.Errorf("transform: multiply_by_value: param %q must be numeric", "value")
	}
	v, ok := numeric(src[column])
	if !ok {
		return nil, fmt.Errorf("transform: multiply_by_value: column %q is not numeric", column)
	}
	return v * factor, nil
}

func subtractColumns(src Row, params map[string]any) (any, error) {
	fromCol, err := stringParam(params, "from_col")
	if err != nil {
		return nil, err
	}
	otherCol, err := stringParam(params, "other_col")
	if err != nil {
		return nil, err
	}
	a, ok := numeric(src[fromCol])
	if !ok {
		return nil, fmt.Errorf("transform: substract_columns: column %q is not numeric", fromCol)
	}
	b, ok := numeric(src[otherCol])
	if !ok {
		return nil, fmt.Errorf("transform: substract_columns: column %q is not numeric", otherCol)
	}
	return a - b, nil
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("transform: missing param %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("transform: param %q must be a string", name)
	}
	return s, nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Apply runs one export's ProcessDataSet against a dataset (already
// selected down to the export's dataframe selector by the executor),
// returning one transformed row per input row that produced a non-nil
// value for every configured field. A row that can't produce all fields
// is dropped, mirroring the predecessor's res_df.dropna().
func Apply(dataset []Row, pds spec.ProcessDataSet, registry Registry) ([]Row, error) {
	if registry == nil {
		registry = Builtins
	}

	fieldNames := make([]string, 0, len(pds.Fields))
	for name := range pds.Fields {
		fieldNames = append(fieldNames, name)
	}

	out := make([]Row, 0, len(dataset))
	for _, src := range dataset {
		result := Row{}
		complete := true
		for _, fieldName := range fieldNames {
			chain := pds.Fields[fieldName]
			value, err := applyChain(src, result, fieldName, chain, registry)
			if err != nil {
				return nil, err
			}
			if value == nil {
				complete = false
				break
			}
			result[fieldName] = value
		}
		if complete {
			out = append(out, result)
		}
	}
	return out, nil
}

// applyChain runs fieldName's transformation functions in order. Each
// function reads from src (the original row) overlaid with result
// (fields already computed for this output row), so later steps can
// reference earlier ones' outputs, mirroring the predecessor's
// sequential df mutation.
func applyChain(src, result Row, fieldName string, chain []spec.TransformFunction, registry Registry) (any, error) {
	view := make(Row, len(src)+len(result))
	for k, v := range src {
		view[k] = v
	}
	for k, v := range result {
		view[k] = v
	}

	var value any
	for _, step := range chain {
		fn, ok := registry[step.Function]
		if !ok {
			return nil, aerrors.TransformFailedError(
				fmt.Sprintf("unsupported function %q", step.Function), nil)
		}
		v, err := fn(view, step.Params)
		if err != nil {
			return nil, aerrors.TransformFailedError(fmt.Sprintf("field %q", fieldName), err)
		}
		value = v
		view[fieldName] = v
	}
	return value, nil
}
