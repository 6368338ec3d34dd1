package spec

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/KathyBarabash/asg-runtime/internal/httpfetch"
	"github.com/KathyBarabash/asg-runtime/pkg/aerrors"
)

// maxFanout bounds list-valued reference expansion: an API argument that
// resolves to a list fans out into one plan entry per element, capped
// here to guard against runaway fan-out from a misbehaving upstream.
const maxFanout = 20

var envVarPattern = regexp.MustCompile(`\$\w+`)

// PlanEntry is a single concrete request the executor can hand to the
// origin fetcher, with no outstanding argument references.
type PlanEntry struct {
	APIName         string
	URLTemplate     string
	Method          string
	ParameterArgs   map[string]string
	HeaderArgs      map[string]string
	Body            []byte
	Timeout         time.Duration
	Pagination      *httpfetch.Pagination
	OutputSelectors map[string]DatasetRef
	PrependValues   map[string]any
}

// Planner resolves the dependency graph between a spec's API calls and
// emits plan entries on demand, performing no I/O itself: fan-out over
// list-valued references requires the caller to supply the prerequisite
// API's already-fetched output.
type Planner struct {
	spec      *Spec
	order     []string
	dependsOn map[string][]string
}

// BuildPlanner identifies the root set of APIs referenced by the spec's
// output selectors, walks their reference arguments to build a
// dependency DAG, and topologically orders it. Cycles and references to
// undefined APIs are fatal.
func BuildPlanner(s *Spec) (*Planner, error) {
	for name, ref := range s.OutputData {
		if _, ok := s.APICalls[ref.API]; !ok {
			return nil, aerrors.SpecInvalidError(
				fmt.Sprintf("output %q references unknown API %q", name, ref.API), nil)
		}
	}

	for name, call := range s.APICalls {
		for i := range call.Arguments {
			resolveArgument(&call.Arguments[i])
		}
		s.APICalls[name] = call
	}

	roots := make(map[string]bool)
	for _, ref := range s.OutputData {
		roots[ref.API] = true
	}

	dependsOn := make(map[string][]string)
	reachable := make(map[string]bool)
	var collect func(api string) error
	collect = func(api string) error {
		if reachable[api] {
			return nil
		}
		reachable[api] = true
		call, ok := s.APICalls[api]
		if !ok {
			return aerrors.SpecInvalidError(
				fmt.Sprintf("unknown API %q referenced by a dependent argument", api), nil)
		}
		seen := make(map[string]bool)
		for _, arg := range call.Arguments {
			if arg.Source != SourceReference || !arg.isRefSelector {
				continue
			}
			if seen[arg.refAPI] {
				continue
			}
			seen[arg.refAPI] = true
			dependsOn[api] = append(dependsOn[api], arg.refAPI)
			if err := collect(arg.refAPI); err != nil {
				return err
			}
		}
		return nil
	}
	for api := range roots {
		if err := collect(api); err != nil {
			return nil, err
		}
	}

	order, err := topoSort(reachable, dependsOn)
	if err != nil {
		return nil, err
	}

	return &Planner{spec: s, order: order, dependsOn: dependsOn}, nil
}

// resolveArgument substitutes environment variables into string
// reference values and marks map-valued references as selectors into a
// prerequisite API's output.
func resolveArgument(arg *Argument) {
	if arg.Source != SourceReference || arg.Value == nil {
		return
	}
	switch v := arg.Value.(type) {
	case string:
		arg.Value = substituteEnv(v)
	case map[string]any:
		api, _ := v["api"].(string)
		path, _ := v["path"].(string)
		if api != "" {
			arg.refAPI = api
			arg.refPath = path
			arg.isRefSelector = true
		}
	}
}

// substituteEnv replaces $NAME substrings with the process environment
// value, leaving unresolved names literal rather than failing.
func substituteEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if v, ok := os.LookupEnv(match[1:]); ok {
			return v
		}
		return match
	})
}

// topoSort orders reachable APIs so every prerequisite precedes its
// dependents, detecting cycles along the way.
func topoSort(reachable map[string]bool, dependsOn map[string][]string) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(reachable))
	order := make([]string, 0, len(reachable))

	names := make([]string, 0, len(reachable))
	for name := range reachable {
		names = append(names, name)
	}
	sort.Strings(names)

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return aerrors.SpecInvalidError(
				fmt.Sprintf("dependency cycle detected at API %q", name), nil)
		}
		state[name] = visiting
		deps := append([]string(nil), dependsOn[name]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Order returns the API names in dependency order: every prerequisite
// appears before its dependents.
func (p *Planner) Order() []string { return append([]string(nil), p.order...) }

// DependsOn returns the prerequisite API names a given API's reference
// arguments require.
func (p *Planner) DependsOn(api string) []string { return append([]string(nil), p.dependsOn[api]...) }

// Entries builds the plan entries for one API. prereqOutputs supplies
// the already-fetched, normalized output of every API this one depends
// on, keyed by API name; it is ignored when the API has no
// dependencies. An API may have at most one reference-selector argument,
// whether or not it resolves to a list; when it does, it triggers a
// fan-out of one entry per element (capped at maxFanout); this mirrors
// the predecessor's own documented limitation to a single dependent
// argument.
func (p *Planner) Entries(api string, prereqOutputs map[string]any) ([]PlanEntry, error) {
	call, ok := p.spec.APICalls[api]
	if !ok {
		return nil, aerrors.SpecInvalidError(fmt.Sprintf("unknown API %q", api), nil)
	}

	baseParams := map[string]string{}
	baseHeaders := map[string]string{}
	var body []byte

	var fanoutArg *Argument
	var fanoutValues []any

	for i := range call.Arguments {
		arg := call.Arguments[i]
		if arg.Source == SourceReference && arg.isRefSelector {
			values, err := selectReferenceValues(prereqOutputs[arg.refAPI], arg.refPath)
			if err != nil {
				return nil, err
			}
			if fanoutArg != nil {
				return nil, aerrors.ResolveFailedError(
					fmt.Sprintf("API %q has more than one fan-out reference argument (%q and %q); only one is supported",
						api, fanoutArg.Name, arg.Name), nil)
			}
			fanoutArg = &call.Arguments[i]
			fanoutValues = values
			continue
		}
		assignArgument(arg, arg.Value, baseParams, baseHeaders, &body)
	}

	selectors := outputSelectorsFor(p.spec.OutputData, api)
	timeout := time.Duration(call.Timeout) * time.Second
	if timeout <= 0 {
		timeout = p.spec.Timeout
	}
	urlTemplate := joinURL(p.spec.Servers, call.Endpoint)
	method := call.Method
	if method == "" {
		method = "get"
	}

	if fanoutArg == nil {
		entry := PlanEntry{
			APIName:         api,
			URLTemplate:     urlTemplate,
			Method:          method,
			ParameterArgs:   baseParams,
			HeaderArgs:      baseHeaders,
			Body:            body,
			Timeout:         timeout,
			Pagination:      call.Pagination,
			OutputSelectors: selectors,
		}
		return []PlanEntry{entry}, nil
	}

	n := len(fanoutValues)
	if n > maxFanout {
		n = maxFanout
	}
	entries := make([]PlanEntry, 0, n)
	for i := 0; i < n; i++ {
		v := fanoutValues[i]
		params := cloneStringMap(baseParams)
		headers := cloneStringMap(baseHeaders)
		localBody := body
		assignArgument(*fanoutArg, v, params, headers, &localBody)

		entries = append(entries, PlanEntry{
			APIName:         api,
			URLTemplate:     urlTemplate,
			Method:          method,
			ParameterArgs:   params,
			HeaderArgs:      headers,
			Body:            localBody,
			Timeout:         timeout,
			Pagination:      call.Pagination,
			OutputSelectors: selectors,
			PrependValues:   map[string]any{fanoutArg.Name: v},
		})
	}
	return entries, nil
}

func assignArgument(arg Argument, value any, params, headers map[string]string, body *[]byte) {
	str := fmt.Sprint(value)
	switch arg.Location {
	case LocationPath, LocationQuery:
		params[arg.Name] = str
	case LocationHeader:
		headers[arg.Name] = str
	case LocationBody:
		*body = []byte(str)
	}
}

func outputSelectorsFor(data map[string]DatasetRef, api string) map[string]DatasetRef {
	out := map[string]DatasetRef{}
	for name, ref := range data {
		if ref.API == api {
			out[name] = ref
		}
	}
	return out
}

func joinURL(servers []string, endpoint string) string {
	base := ""
	if len(servers) > 0 {
		base = servers[0]
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
