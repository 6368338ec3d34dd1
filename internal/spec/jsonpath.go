package spec

import (
	"fmt"
	"strings"

	"github.com/KathyBarabash/asg-runtime/pkg/aerrors"
)

// extractDotted walks a dot-separated path through nested
// map[string]any values, matching retrieve_value_from_json_path's
// simple field-access semantics (no array indices).
// ExtractPath is the exported form of extractDotted, used by the
// executor to select an output dataset's value out of an API's raw
// (already-aggregated) result.
func ExtractPath(data any, path string) (any, bool) {
	return extractDotted(data, path)
}

func extractDotted(data any, path string) (any, bool) {
	if path == "" || path == "." {
		return data, true
	}
	cur := data
	for _, segment := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[segment]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// selectReferenceValues resolves a reference argument's selector path
// against a prerequisite API's raw output, returning the list of values
// to fan out over. A non-list result at the path is returned as a
// single-element list so callers can treat every reference uniformly;
// whether that single element actually triggers a fan-out is the
// caller's decision.
func selectReferenceValues(root any, path string) ([]any, error) {
	if root == nil {
		return nil, aerrors.ResolveFailedError(
			fmt.Sprintf("prerequisite output unavailable for reference path %q", path), nil)
	}
	segments := strings.Split(path, ".")
	arrayName := segments[0]
	rest := segments[1:]

	var arr any
	if m, ok := root.(map[string]any); ok {
		v, ok := m[arrayName]
		if !ok {
			return nil, aerrors.ResolveFailedError(
				fmt.Sprintf("reference path %q not found in prerequisite output", path), nil)
		}
		arr = v
	} else {
		arr = root
	}

	list, ok := arr.([]any)
	if !ok {
		return []any{arr}, nil
	}
	if len(rest) == 0 {
		return list, nil
	}

	field := strings.Join(rest, ".")
	out := make([]any, 0, len(list))
	for _, item := range list {
		if v, ok := extractDotted(item, field); ok {
			out = append(out, v)
		}
	}
	return out, nil
}
