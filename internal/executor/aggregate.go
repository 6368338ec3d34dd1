package executor

import (
	"github.com/KathyBarabash/asg-runtime/internal/spec"
	"github.com/KathyBarabash/asg-runtime/internal/transform"
)

// mergePages collapses one call's (possibly multi-page) decoded JSON
// pages into a single value, mirroring rest_helper.py's
// _handle_api_output page-accumulation: list pages concatenate, object
// pages shallow-merge with later pages winning on scalar keys. A single
// page is returned unchanged.
func mergePages(pages []any) any {
	if len(pages) == 0 {
		return nil
	}
	if len(pages) == 1 {
		return pages[0]
	}

	if _, ok := pages[0].([]any); ok {
		var merged []any
		for _, page := range pages {
			if list, ok := page.([]any); ok {
				merged = append(merged, list...)
			}
		}
		return merged
	}

	if _, ok := pages[0].(map[string]any); ok {
		merged := map[string]any{}
		for _, page := range pages {
			m, ok := page.(map[string]any)
			if !ok {
				continue
			}
			for k, v := range m {
				if existing, ok := merged[k].([]any); ok {
					if incoming, ok := v.([]any); ok {
						merged[k] = append(existing, incoming...)
						continue
					}
				}
				merged[k] = v
			}
		}
		return merged
	}

	return pages[len(pages)-1]
}

// aggregateAPIResults combines the per-entry results of one API's plan
// entries into the value downstream dependents and dataset selectors see.
// A single entry (no fan-out) passes its result through untouched; a
// fan-out tags each resulting row with "argument-<name>" = the driving
// value, mirroring connector_request.py's prepend_values handling.
func aggregateAPIResults(entries []spec.PlanEntry, results []any) any {
	if len(entries) == 1 {
		return results[0]
	}

	var rows []any
	for i, result := range results {
		for _, row := range toMapSlice(result) {
			tagged := make(map[string]any, len(row)+len(entries[i].PrependValues))
			for k, v := range row {
				tagged[k] = v
			}
			for name, v := range entries[i].PrependValues {
				tagged["argument-"+name] = v
			}
			rows = append(rows, tagged)
		}
	}
	return rows
}

// toMapSlice normalizes a JSON value into a slice of row maps: a list of
// objects passes through (non-object elements are dropped), a single
// object becomes a one-element slice, and anything else yields nothing.
func toMapSlice(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		return []map[string]any{t}
	default:
		return nil
	}
}

// buildDatasetMap selects each named output dataset out of its API's
// aggregated raw result, per the DatasetRef path, mirroring
// _handle_api_output's "." root-object special case by way of
// spec.ExtractPath.
func buildDatasetMap(s *spec.Spec, raw map[string]any) map[string]any {
	datasets := make(map[string]any, len(s.OutputData))
	for name, ref := range s.OutputData {
		value, _ := spec.ExtractPath(raw[ref.API], ref.Path)
		datasets[name] = value
	}
	return datasets
}

// applyExports runs every configured export's transform chain against
// its source dataset, returning one row-set per export name.
func (e *Executor) applyExports(s *spec.Spec, datasets map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(s.Exports))
	for name, pds := range s.Exports {
		source := selectDataframe(datasets, pds.Dataframe)
		rows, err := transform.Apply(toRows(source), pds, e.transforms)
		if err != nil {
			return nil, err
		}
		result[name] = rows
	}
	return result, nil
}

// selectDataframe resolves a "." selector to the spec's single output
// dataset (already guaranteed unique by spec.validateExportSelectors at
// parse time) or looks the named dataset up directly.
func selectDataframe(datasets map[string]any, dataframe string) any {
	if dataframe == "." || dataframe == "" {
		for _, v := range datasets {
			return v
		}
		return nil
	}
	return datasets[dataframe]
}

// toRows normalizes a dataset value into the row slice transform.Apply
// expects.
func toRows(v any) []transform.Row {
	switch t := v.(type) {
	case []any:
		out := make([]transform.Row, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, transform.Row(m))
			}
		}
		return out
	case map[string]any:
		return []transform.Row{transform.Row(t)}
	default:
		return nil
	}
}
