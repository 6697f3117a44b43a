package router

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/spec"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrConflict is matched by every ConflictError.
var ErrConflict = errors.New("conflicting routes")

// ConflictError reports path templates under one method that the routing
// layer cannot tell apart.
type ConflictError struct {
	Method spec.HttpMethod
	Paths  []string
	Reason string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s routes conflict: %s", e.Method.Upper(), strings.Join(e.Paths, " and "))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Option configures Build.
type Option func(*Interface)

func WithLogger(l *zap.Logger) Option {
	return func(i *Interface) { i.log = l }
}

// WithMaxBodyBytes bounds the request bodies the adapter reads. Larger
// bodies are answered with 413.
func WithMaxBodyBytes(n int64) Option {
	return func(i *Interface) { i.maxBody = n }
}

var placeholderRE = regexp.MustCompile(`\{[^{}/]*\}`)

// normalize erases placeholder names: /pets/{id} and /pets/{petId} route
// identically.
func normalize(path string) string {
	return placeholderRE.ReplaceAllString(path, "{}")
}

// Build groups the contracts of set by method and path and prepares one
// Member per method. Templates that collide under one method are reported
// together and no Interface is returned.
func Build(set *contract.Set, opts ...Option) (*Interface, error) {
	if set == nil {
		return nil, errors.New("router: nil contract set")
	}
	iface := &Interface{
		set:     set,
		members: map[spec.HttpMethod]*Member{},
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(iface)
	}
	if iface.log == nil {
		iface.log = zap.NewNop()
	}
	if iface.maxBody <= 0 {
		iface.maxBody = defaultMaxBodyBytes
	}

	var errs error
	seen := map[spec.HttpMethod]map[string]string{}
	for _, op := range set.Operations {
		m := iface.members[op.Method]
		if m == nil {
			m = &Member{method: op.Method, routes: map[string]*route{}, owner: iface}
			iface.members[op.Method] = m
			seen[op.Method] = map[string]string{}
		}
		if _, dup := m.routes[op.Path]; dup {
			errs = multierr.Append(errs, fmt.Errorf("router: %s declared twice", op))
			continue
		}
		key := normalize(op.Path)
		if other, ok := seen[op.Method][key]; ok {
			errs = multierr.Append(errs, &ConflictError{Method: op.Method, Paths: []string{other, op.Path}})
			continue
		}
		seen[op.Method][key] = op.Path

		pattern, wildcards, err := muxPattern(op.Method, op.Path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("router: %s: %w", op, err))
			continue
		}
		rt := &route{op: op, pattern: pattern, wildcards: wildcards}
		m.routes[op.Path] = rt
		m.paths = append(m.paths, op.Path)
	}
	if errs != nil {
		return nil, errs
	}

	for _, method := range spec.Methods {
		m, ok := iface.members[method]
		if !ok {
			continue
		}
		iface.methods = append(iface.methods, method)
		var installed []*route
		for _, path := range m.paths {
			rt := m.routes[path]
			if err := iface.register(rt, installed); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			installed = append(installed, rt)
		}
	}
	if errs != nil {
		return nil, errs
	}
	iface.handler = iface.mux
	iface.log.Debug("routing interface built", zap.Int("methods", len(iface.methods)), zap.Int("routes", len(set.Operations)))
	return iface, nil
}

// register installs the dispatcher of rt on the mux. ServeMux panics on
// patterns it cannot tell apart; that is reported as a conflict naming the
// earlier route of the same method. Other panics are invalid patterns.
func (i *Interface) register(rt *route, earlier []*route) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = registrationError(rt, r, earlier)
		}
	}()
	i.mux.Handle(rt.pattern, i.dispatch(rt))
	return nil
}

func registrationError(rt *route, recovered any, earlier []*route) error {
	reason := fmt.Sprint(recovered)
	if !strings.Contains(reason, "conflicts with") {
		return fmt.Errorf("router: %s: invalid pattern %q: %s", rt.op, rt.pattern, reason)
	}
	paths := []string{rt.op.Path}
	for _, other := range earlier {
		if clash(other.pattern, rt.pattern) {
			paths = []string{other.op.Path, rt.op.Path}
			break
		}
	}
	return &ConflictError{Method: rt.op.Method, Paths: paths, Reason: reason}
}

// clash reports whether b cannot be registered next to a.
func clash(a, b string) (clashes bool) {
	defer func() {
		if recover() != nil {
			clashes = true
		}
	}()
	mux := http.NewServeMux()
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	mux.Handle(a, noop)
	mux.Handle(b, noop)
	return false
}

// muxPattern converts a path template into a ServeMux pattern. Wildcards are
// renamed to p0, p1, ... since parameter names need not be Go identifiers.
func muxPattern(m spec.HttpMethod, path string) (string, map[string]string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", nil, fmt.Errorf("path %q must start with /", path)
	}
	wildcards := map[string]string{}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if !strings.ContainsAny(seg, "{}") {
			continue
		}
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") || strings.Count(seg, "{") != 1 {
			return "", nil, fmt.Errorf("placeholder must span a whole segment: %q", seg)
		}
		name := seg[1 : len(seg)-1]
		wildcard := fmt.Sprintf("p%d", len(wildcards))
		wildcards[name] = wildcard
		segments[i] = "{" + wildcard + "}"
	}
	pattern := strings.Join(segments, "/")
	if strings.HasSuffix(pattern, "/") {
		pattern += "{$}"
	}
	return m.Upper() + " " + pattern, wildcards, nil
}
