package provision

import (
	"fmt"
	"strings"

	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
)

// Plan orders resources so that every resource is applied after all of
// its dependencies. The order is deterministic: declaration order is
// preserved among resources whose dependencies are equally satisfied.
//
// Plan fails before anything is applied when a dependency is missing from
// the graph or the graph contains a cycle.
func Plan(resources []Resource) ([]Resource, error) {
	byID := make(map[string]Resource, len(resources))
	for _, r := range resources {
		if _, dup := byID[r.ID()]; dup {
			return nil, dserrors.ProvisionError{
				Resource: r.ID(),
				Message:  "duplicate resource id in graph",
			}
		}
		byID[r.ID()] = r
	}

	// Every declared dependency must exist before any Apply runs.
	for _, r := range resources {
		for _, dep := range r.DependsOn() {
			if _, ok := byID[dep]; !ok {
				return nil, dserrors.ProvisionError{
					Resource:   r.ID(),
					Message:    fmt.Sprintf("depends on %q which is not part of the graph", dep),
					Suggestion: "The resource graph is incomplete; this aborts the whole apply",
				}
			}
		}
	}

	ordered := make([]Resource, 0, len(resources))
	placed := make(map[string]bool, len(resources))

	for len(ordered) < len(resources) {
		progressed := false

		for _, r := range resources {
			if placed[r.ID()] {
				continue
			}
			if !depsPlaced(r, placed) {
				continue
			}
			ordered = append(ordered, r)
			placed[r.ID()] = true
			progressed = true
		}

		if !progressed {
			var stuck []string
			for _, r := range resources {
				if !placed[r.ID()] {
					stuck = append(stuck, r.ID())
				}
			}
			return nil, dserrors.ProvisionError{
				Resource: strings.Join(stuck, ", "),
				Message:  "dependency cycle detected",
			}
		}
	}

	return ordered, nil
}

func depsPlaced(r Resource, placed map[string]bool) bool {
	for _, dep := range r.DependsOn() {
		if !placed[dep] {
			return false
		}
	}
	return true
}
