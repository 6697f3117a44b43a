// Package router turns contracts into a routing interface whose only
// registration path is a per-method Member checked against the contract of
// the path being registered.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/spec"
	"go.uber.org/zap"
)

// ErrNoMember is returned for methods without any contract.
var ErrNoMember = errors.New("no operations declared for method")

// Base is the routing surface every Interface carries. It deliberately has no
// per-method registration: handlers are registered through Members only.
type Base interface {
	Use(mw ...func(http.Handler) http.Handler)
	http.Handler
}

var _ Base = (*Interface)(nil)

// Interface is the routing surface derived from a contract set. It is safe
// for concurrent use.
type Interface struct {
	set     *contract.Set
	methods []spec.HttpMethod
	members map[spec.HttpMethod]*Member
	mux     *http.ServeMux
	log     *zap.Logger
	maxBody int64

	mu         sync.RWMutex
	middleware []func(http.Handler) http.Handler
	handler    http.Handler
}

// Member returns the registration member of m.
func (i *Interface) Member(m spec.HttpMethod) (*Member, error) {
	mem, ok := i.members[m]
	if !ok {
		return nil, fmt.Errorf("router: %s: %w", m.Upper(), ErrNoMember)
	}
	return mem, nil
}

// Methods lists the methods that have a Member, in stable order.
func (i *Interface) Methods() []spec.HttpMethod {
	return append([]spec.HttpMethod(nil), i.methods...)
}

// Contracts returns the set the interface was built from.
func (i *Interface) Contracts() *contract.Set { return i.set }

// Use appends middleware applied to every request, outermost first.
func (i *Interface) Use(mw ...func(http.Handler) http.Handler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.middleware = append(i.middleware, mw...)
	var h http.Handler = i.mux
	for j := len(i.middleware) - 1; j >= 0; j-- {
		h = i.middleware[j](h)
	}
	i.handler = h
}

func (i *Interface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	i.mu.RLock()
	h := i.handler
	i.mu.RUnlock()
	h.ServeHTTP(w, r)
}

// Mount serves the interface on mux below prefix ("" mounts at the root).
func (i *Interface) Mount(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		mux.Handle("/", i)
		return
	}
	mux.Handle(prefix+"/", http.StripPrefix(prefix, i))
}

// Route names one operation.
type Route struct {
	Method spec.HttpMethod
	Path   string
}

func (r Route) String() string { return r.Method.Upper() + " " + r.Path }

// Missing lists the operations that have no handler yet.
func (i *Interface) Missing() []Route {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []Route
	for _, m := range i.methods {
		mem := i.members[m]
		for _, p := range mem.paths {
			if mem.routes[p].binding == nil {
				out = append(out, Route{Method: m, Path: p})
			}
		}
	}
	return out
}

// MissingHandlersError lists operations left without a handler.
type MissingHandlersError struct {
	Routes []Route
}

func (e *MissingHandlersError) Error() string {
	names := make([]string, len(e.Routes))
	for j, r := range e.Routes {
		names[j] = r.String()
	}
	return fmt.Sprintf("router: %d operations have no handler: %s", len(e.Routes), strings.Join(names, ", "))
}

// Verify fails when any operation has no handler. Call it before serving.
func (i *Interface) Verify() error {
	if missing := i.Missing(); len(missing) > 0 {
		return &MissingHandlersError{Routes: missing}
	}
	return nil
}

// RegistrationError is returned by Member.Handle.
type RegistrationError struct {
	Method spec.HttpMethod
	Path   string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("router: register %s %s: %v", e.Method.Upper(), e.Path, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Member registers handlers for one method. Each path literal selects its
// own contract; a handler is accepted only if its types conform to it.
type Member struct {
	method spec.HttpMethod
	paths  []string
	routes map[string]*route
	owner  *Interface
}

type route struct {
	op        *contract.Operation
	pattern   string
	wildcards map[string]string
	binding   *binding
}

type binding struct {
	handler Handler
	plan    *plan
}

func (m *Member) Method() spec.HttpMethod { return m.method }

// Paths lists the path templates of the member in contract order.
func (m *Member) Paths() []string { return append([]string(nil), m.paths...) }

// Contract returns the contract registered under path.
func (m *Member) Contract(path string) (*contract.Operation, bool) {
	rt, ok := m.routes[path]
	if !ok {
		return nil, false
	}
	return rt.op, true
}

// Handle registers h for path.
func (m *Member) Handle(path string, h Handler) error {
	fail := func(err error) error {
		return &RegistrationError{Method: m.method, Path: path, Err: err}
	}
	rt, ok := m.routes[path]
	if !ok {
		return fail(fmt.Errorf("path is not declared for %s", m.method.Upper()))
	}
	if h == nil {
		return fail(errors.New("nil handler"))
	}
	p, err := h.conform(rt.op)
	if err != nil {
		return fail(err)
	}

	m.owner.mu.Lock()
	defer m.owner.mu.Unlock()
	if rt.binding != nil {
		return fail(errors.New("handler already registered"))
	}
	rt.binding = &binding{handler: h, plan: p}
	m.owner.log.Debug("handler registered", zap.String("operation", rt.op.String()), zap.String("pattern", rt.pattern))
	return nil
}

func (i *Interface) dispatch(rt *route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i.mu.RLock()
		b := rt.binding
		i.mu.RUnlock()
		if b == nil {
			writeError(w, http.StatusNotImplemented, fmt.Errorf("%s has no handler", rt.op))
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, i.maxBody)
		}
		b.handler.serve(w, r, rt, b.plan, i.log)
	})
}
