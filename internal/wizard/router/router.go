// Package router binds each wizard step to a path below the base path and to
// the panel that renders it. It is a plain switch over paths: it neither
// tracks progress nor checks the order in which steps are visited.
package router

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"idverify/internal/wizard/steps"
	dErrors "idverify/pkg/domain-errors"
)

// View is what a panel hands to the page for rendering.
type View struct {
	Step     steps.Step
	Template string
	Data     map[string]any
	// Error is a user-facing validation message shown with the step.
	Error string
	// Redirect asks the wizard to show another step instead, for panels
	// whose prerequisites are missing.
	Redirect steps.Step
}

// Panel is one step's component. It reads the session contexts it needs from
// ctx and decides on its own completion which step comes next.
type Panel interface {
	Render(ctx context.Context) (View, error)
	Complete(ctx context.Context, form url.Values) (steps.Step, error)
}

type Route struct {
	Step  steps.Step
	Path  string
	Panel Panel
}

type Router struct {
	base   string
	routes []Route
}

// New validates the step→panel table: every declared step needs a panel and
// every panel must belong to a declared step.
func New(base string, panels map[steps.Step]Panel) (*Router, error) {
	base, err := normalizeBase(base)
	if err != nil {
		return nil, err
	}

	var problems []string
	routes := make([]Route, 0, len(panels))
	for _, s := range steps.All() {
		p, ok := panels[s]
		if !ok || p == nil {
			problems = append(problems, "no panel for step "+s.String())
			continue
		}
		routes = append(routes, Route{Step: s, Path: base + "/" + s.Slug(), Panel: p})
	}
	for s := range panels {
		if !s.IsValid() {
			problems = append(problems, fmt.Sprintf("panel bound to unknown step %q", string(s)))
		}
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid step table: "+strings.Join(problems, "; "))
	}
	return &Router{base: base, routes: routes}, nil
}

func normalizeBase(base string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" || !strings.HasPrefix(base, "/") {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "base path must be absolute and not the site root")
	}
	return base, nil
}

func (r *Router) Base() string { return r.base }

// PathFor returns the path bound to s.
func (r *Router) PathFor(s steps.Step) string {
	return r.base + "/" + s.Slug()
}

// FirstPath is where every mount is sent.
func (r *Router) FirstPath() string {
	return r.PathFor(steps.First())
}

// Match returns the first route whose path equals path or is a
// segment-prefix of it. Paths matching no route render nothing.
func (r *Router) Match(path string) (Route, bool) {
	path = trimSlash(path)
	for _, rt := range r.routes {
		if path == rt.Path || strings.HasPrefix(path, rt.Path+"/") {
			return rt, true
		}
	}
	return Route{}, false
}

// Within reports whether path lies at or below the base path.
func (r *Router) Within(path string) bool {
	path = trimSlash(path)
	return path == r.base || strings.HasPrefix(path, r.base+"/")
}

// Routes lists the table in canonical step order.
func (r *Router) Routes() []Route {
	return slices.Clone(r.routes)
}

func trimSlash(path string) string {
	if len(path) > 1 {
		return strings.TrimRight(path, "/")
	}
	return path
}
