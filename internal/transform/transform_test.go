package transform

import (
	"testing"

	"github.com/KathyBarabash/asg-runtime/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_MapField(t *testing.T) {
	dataset := []Row{
		{"person_id": 1},
		{"person_id": 2},
	}
	pds := spec.ProcessDataSet{
		Dataframe: ".",
		Fields: map[string][]spec.TransformFunction{
			"person_ID": {{Function: "map_field", Params: map[string]any{"source": "person_id"}}},
		},
	}
	out, err := Apply(dataset, pds, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0]["person_ID"])
	assert.Equal(t, 2, out[1]["person_ID"])
}

func TestApply_DropsIncompleteRows(t *testing.T) {
	dataset := []Row{
		{"person_id": 1},
		{"other_field": "x"},
	}
	pds := spec.ProcessDataSet{
		Fields: map[string][]spec.TransformFunction{
			"person_ID": {{Function: "map_field", Params: map[string]any{"source": "person_id"}}},
		},
	}
	out, err := Apply(dataset, pds, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestApply_UnsupportedFunctionFails(t *testing.T) {
	dataset := []Row{{"x": 1}}
	pds := spec.ProcessDataSet{
		Fields: map[string][]spec.TransformFunction{
			"y": {{Function: "does_not_exist"}},
		},
	}
	_, err := Apply(dataset, pds, nil)
	require.Error(t, err)
}

func TestApply_MultiplyByValue(t *testing.T) {
	dataset := []Row{{"amount": 10.0}}
	pds := spec.ProcessDataSet{
		Fields: map[string][]spec.TransformFunction{
			"doubled": {{Function: "multiply_by_value", Params: map[string]any{"column": "amount", "value": 2.0}}},
		},
	}
	out, err := Apply(dataset, pds, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 20.0, out[0]["doubled"])
}

func TestApply_ChainedFunctionsSeeEarlierOutputs(t *testing.T) {
	dataset := []Row{{"a": "foo", "b": "bar"}}
	pds := spec.ProcessDataSet{
		Fields: map[string][]spec.TransformFunction{
			"combined": {
				{Function: "concatenate_fields", Params: map[string]any{"col1": "a", "col2": "b"}},
				{Function: "concatenate_fields", Params: map[string]any{"col1": "combined", "col2": "b"}},
			},
		},
	}
	out, err := Apply(dataset, pds, nil)
	require.NoError(t, err)
	assert.Equal(t, "foobarbar", out[0]["combined"])
}
