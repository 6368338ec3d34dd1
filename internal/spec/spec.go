// Package spec parses a declarative endpoint specification into typed
// API call descriptions and computes the canonical fingerprint used as
// the response cache key. Grounded on the Python predecessor's
// gin/common/con_spec/spec_helper_models.py (the typed shape) and
// models/endpoint_spec.py (the canonicalization algorithm).
package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	goccyjson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/KathyBarabash/asg-runtime/internal/httpfetch"
	"github.com/KathyBarabash/asg-runtime/pkg/aerrors"
)

// Argument sources, mirroring ArgSourceEnum.
const (
	SourceConstant  = "constant"
	SourceRuntime   = "runtime"
	SourceReference = "reference"
)

// Argument locations, mirroring ArgLocationEnum generalized to include
// a distinct path location (the predecessor folds path and query
// together and splits them back out from the URL template).
const (
	LocationPath   = "path"
	LocationQuery  = "query"
	LocationHeader = "header"
	LocationBody   = "body"
)

// Argument is one named value an API call needs, along with where it's
// placed in the request and how its value is obtained.
type Argument struct {
	Name     string `yaml:"name"`
	Location string `yaml:"argLocation"`
	Type     string `yaml:"type"`
	Source   string `yaml:"source"`
	Value    any    `yaml:"value"`

	// refAPI/refPath/isRefSelector are derived during BuildPlanner, not
	// part of the wire format.
	refAPI        string
	refPath       string
	isRefSelector bool
}

// APICall is one named upstream call: method, endpoint, its arguments,
// and an optional pagination descriptor.
type APICall struct {
	Type       string                `yaml:"type"`
	Endpoint   string                `yaml:"endpoint"`
	Method     string                `yaml:"method"`
	Arguments  []Argument            `yaml:"arguments"`
	Pagination *httpfetch.Pagination `yaml:"pagination"`
	Timeout    int                   `yaml:"timeout"`
}

// DatasetRef selects a dataset out of an API's output: the API that
// produces it and the JSON path within that API's response.
type DatasetRef struct {
	API  string `yaml:"api"`
	Path string `yaml:"path"`
}

// TransformFunction names one step in an export's transformation chain.
type TransformFunction struct {
	Function string         `yaml:"function"`
	Params   map[string]any `yaml:"params"`
}

// ProcessDataSet describes how one export's output fields are derived
// from a named dataset.
type ProcessDataSet struct {
	Dataframe string                         `yaml:"dataframe"`
	Fields    map[string][]TransformFunction `yaml:"fields"`
}

type outputSection struct {
	Data        map[string]DatasetRef     `yaml:"data"`
	Exports     map[string]ProcessDataSet `yaml:"exports"`
	RuntimeType string                    `yaml:"runtimeType"`
}

type innerSpec struct {
	Timeout  int                `yaml:"timeout"`
	APICalls map[string]APICall `yaml:"apiCalls"`
	Output   outputSection      `yaml:"output"`
}

type server struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

type wireSpec struct {
	APIVersion string    `yaml:"apiVersion"`
	Kind       string    `yaml:"kind"`
	Spec       innerSpec `yaml:"spec"`
	Servers    []server  `yaml:"servers"`
	Auth       string    `yaml:"auth"`
	APIKey     string    `yaml:"apiKey"`
}

// Spec is a fully parsed endpoint specification, ready to be turned
// into a Planner.
type Spec struct {
	RawSpec       string
	CanonicalSpec string
	Hash          string

	Timeout    time.Duration
	Servers    []string
	APICalls   map[string]APICall
	OutputData map[string]DatasetRef
	Exports    map[string]ProcessDataSet
}

// Fingerprint returns the response-cache key for this specification:
// the hex-encoded SHA-256 of its canonical form.
func (s *Spec) Fingerprint() string { return s.Hash }

// Parse decodes raw (JSON or YAML) into a Spec and computes its
// canonical fingerprint. Structurally invalid input is rejected.
func Parse(raw string) (*Spec, error) {
	var w wireSpec
	if err := yaml.Unmarshal([]byte(raw), &w); err != nil {
		return nil, aerrors.SpecInvalidError("invalid endpoint spec", err)
	}
	if len(w.Spec.APICalls) == 0 {
		return nil, aerrors.SpecInvalidError("no apiCalls defined", nil)
	}
	for name, ref := range w.Spec.Output.Data {
		if _, ok := w.Spec.APICalls[ref.API]; !ok {
			return nil, aerrors.SpecInvalidError(fmt.Sprintf("output %q references unknown API %q", name, ref.API), nil)
		}
	}

	canonical, hash, err := canonicalFingerprint(raw)
	if err != nil {
		return nil, aerrors.SpecInvalidError("computing spec fingerprint", err)
	}

	servers := make([]string, 0, len(w.Servers))
	for _, srv := range w.Servers {
		servers = append(servers, srv.URL)
	}

	timeout := w.Spec.Timeout
	if timeout <= 0 {
		timeout = 60
	}

	s := &Spec{
		RawSpec:       raw,
		CanonicalSpec: canonical,
		Hash:          hash,
		Timeout:       time.Duration(timeout) * time.Second,
		Servers:       servers,
		APICalls:      w.Spec.APICalls,
		OutputData:    w.Spec.Output.Data,
		Exports:       w.Spec.Output.Exports,
	}

	if err := validateExportSelectors(s); err != nil {
		return nil, err
	}
	return s, nil
}

// validateExportSelectors rejects an export's "dataframe=.""  selector
// when the spec produces more than one named dataset, since "." can
// only mean "the one dataset there is" unambiguously. This is the
// resolution for the predecessor's undocumented path-vs-"." conflict.
func validateExportSelectors(s *Spec) error {
	for name, pds := range s.Exports {
		if (pds.Dataframe == "." || pds.Dataframe == "") && len(s.OutputData) > 1 {
			return aerrors.SpecInvalidError(
				fmt.Sprintf("export %q uses dataframe \".\" but the spec defines %d datasets; name one explicitly", name, len(s.OutputData)),
				nil)
		}
		if pds.Dataframe != "." && pds.Dataframe != "" {
			if _, ok := s.OutputData[pds.Dataframe]; !ok {
				return aerrors.SpecInvalidError(
					fmt.Sprintf("export %q references unknown dataframe %q", name, pds.Dataframe), nil)
			}
		}
	}
	return nil
}

// canonicalFingerprint reproduces endpoint_spec.py's canonicalization:
// parse, re-serialize with sorted keys and no insignificant whitespace,
// lowercase the whole thing, then SHA-256 it. Numeric normalization is
// intentionally omitted, matching the predecessor.
func canonicalFingerprint(raw string) (canonical string, hash string, err error) {
	var parsed any
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", "", fmt.Errorf("spec: invalid endpoint spec: %w", err)
	}
	normalized := normalizeKeys(parsed)
	encoded, err := goccyjson.Marshal(normalized)
	if err != nil {
		return "", "", fmt.Errorf("spec: canonicalizing endpoint spec: %w", err)
	}
	canonical = strings.ToLower(string(encoded))
	sum := sha256.Sum256([]byte(canonical))
	return canonical, hex.EncodeToString(sum[:]), nil
}

// normalizeKeys walks a yaml.Unmarshal result and converts any
// map[string]interface{} produced along the way into a form
// encoding/json-compatible serializers render deterministically; yaml.v3
// already yields map[string]interface{} for mappings, so this mostly
// recurses to reach nested slices and maps uniformly.
func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeKeys(val)
		}
		return out
	default:
		return v
	}
}
