// Package contract derives one Operation contract per (path, method) pair of
// a document.
package contract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/oasrouter/shape"
	"github.com/mark3labs/oasrouter/spec"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Operation is the derived contract of one (path, method) pair.
type Operation struct {
	Method      spec.HttpMethod
	Path        string
	OperationID string
	Summary     string
	Tags        []string

	// Params, Query and Headers are object shapes keyed by parameter name.
	// They are never nil; an operation without parameters of a location gets
	// an empty object.
	Params  *shape.Shape
	Query   *shape.Shape
	Headers *shape.Shape
	// Cookies lists declared cookie parameter names. They are not part of the
	// handler accessors.
	Cookies []string

	// RequestBody is nil when no body is declared. An optional body is a
	// union with the absent variant.
	RequestBody *shape.Shape
	// ResponseBody is nil when the selected response has no JSON content.
	ResponseBody   *shape.Shape
	ResponseStatus string
}

// BodyOptional reports whether the request body may be omitted entirely.
func (o *Operation) BodyOptional() bool {
	return o.RequestBody != nil && o.RequestBody.AcceptsAbsent()
}

// StatusCode returns ResponseStatus as an integer when it is an explicit
// code, otherwise fallback.
func (o *Operation) StatusCode(fallback int) int {
	if code, err := strconv.Atoi(o.ResponseStatus); err == nil {
		return code
	}
	return fallback
}

func (o *Operation) String() string {
	return o.Method.Upper() + " " + o.Path
}

// Set is the ordered result of a synthesis pass.
type Set struct {
	Operations []*Operation
	Registry   *shape.Registry
	Document   *spec.Document
}

// Lookup returns the contract for (m, path).
func (s *Set) Lookup(m spec.HttpMethod, path string) (*Operation, bool) {
	for _, op := range s.Operations {
		if op.Method == m && op.Path == path {
			return op, true
		}
	}
	return nil, false
}

// Synthesize derives the contract of every operation in doc. Definition
// errors abort before any operation is looked at. Synthesis errors are
// collected across all operations and returned together.
func Synthesize(ctx context.Context, doc *spec.Document, opts ...Option) (*Set, error) {
	if doc == nil {
		return nil, errors.New("contract: nil document")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = zap.NewNop()
	}
	flt, err := newFilter(o)
	if err != nil {
		return nil, err
	}

	reg, err := shape.NewRegistry(doc)
	if err != nil {
		return nil, &DefinitionError{Err: err}
	}
	if err := checkReferences(doc, reg); err != nil {
		return nil, &DefinitionError{Err: err}
	}

	s := &synthesizer{mapper: shape.NewMapper(reg), log: log}
	set := &Set{Registry: reg, Document: doc}
	var errs error
	for _, path := range doc.SortedPaths() {
		item := doc.Paths[path]
		if item == nil {
			continue
		}
		for _, m := range spec.Methods {
			op := item.Operation(m)
			if op == nil {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if ok, reason := flt.keep(m, path, op); !ok {
				log.Debug("operation filtered out", zap.String("method", m.Upper()), zap.String("path", path), zap.String("filter", reason))
				continue
			}
			c, err := s.operation(path, m, item, op)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			set.Operations = append(set.Operations, c)
		}
	}
	if errs != nil {
		return nil, errs
	}
	log.Debug("synthesized contracts", zap.Int("operations", len(set.Operations)), zap.Int("identifiers", reg.Len()))
	return set, nil
}

// checkReferences reports every named reference in doc that the registry
// cannot resolve.
func checkReferences(doc *spec.Document, reg *shape.Registry) error {
	var errs error
	shape.Walk(doc, func(pointer string, s *spec.Schema) {
		if s.Ref == "" {
			return
		}
		if _, _, ok := reg.Lookup(s.Ref); !ok {
			errs = multierr.Append(errs, &shape.ResolutionError{Identifier: s.Ref, Pointer: pointer})
		}
	})
	return errs
}

type synthesizer struct {
	mapper *shape.Mapper
	log    *zap.Logger
}

// operation builds one contract. Every problem found in the operation is
// returned, each localized to its field.
func (s *synthesizer) operation(path string, m spec.HttpMethod, item *spec.PathItem, op *spec.Operation) (*Operation, error) {
	var errs error
	fail := func(field string, err error) {
		errs = multierr.Append(errs, &SynthesisError{Method: m, Path: path, Field: field, Err: err})
	}

	c := &Operation{
		Method:      m,
		Path:        path,
		OperationID: op.OperationID,
		Summary:     op.Summary,
		Tags:        append([]string(nil), op.Tags...),
		Params:      shape.EmptyObject(),
		Query:       shape.EmptyObject(),
		Headers:     shape.EmptyObject(),
	}

	params, perrs := mergeParameters(item.Parameters, op.Parameters)
	for _, err := range perrs {
		fail("parameters", err)
	}
	for _, err := range checkTemplate(path, params) {
		fail("parameters", err)
	}
	for _, p := range params {
		var target *shape.Shape
		switch p.In {
		case spec.InPath:
			target = c.Params
		case spec.InQuery:
			target = c.Query
		case spec.InHeader:
			target = c.Headers
		case spec.InCookie:
			c.Cookies = append(c.Cookies, p.Name)
			s.log.Debug("cookie parameter is not part of the contract", zap.String("operation", c.String()), zap.String("name", p.Name))
			continue
		}
		ps, err := s.mapper.Map(p.Schema)
		if err != nil {
			fail(fmt.Sprintf("parameters[%s:%s]", p.In, p.Name), err)
			continue
		}
		target.Members = append(target.Members, shape.Member{Name: p.Name, Shape: ps, Optional: !p.Required})
	}

	if op.RequestBody != nil {
		body, err := s.requestBody(op.RequestBody)
		if err != nil {
			fail("requestBody", err)
		}
		c.RequestBody = body
	}

	status, body, err := s.response(op.Responses)
	if err != nil {
		fail("responses", err)
	}
	c.ResponseStatus, c.ResponseBody = status, body

	if errs != nil {
		return nil, errs
	}
	return c, nil
}

func (s *synthesizer) requestBody(rb *spec.RequestBody) (*shape.Shape, error) {
	mt, ok := rb.Content.JSON()
	if !ok {
		return nil, fmt.Errorf("no %s content declared", spec.JSONMediaType)
	}
	body, err := s.mapper.Map(mt.Schema)
	if err != nil {
		return nil, err
	}
	if !rb.Required {
		body = shape.OrAbsent(body)
	}
	return body, nil
}

// response selects the response that defines the contract. Candidates are
// the explicit 2xx codes in ascending order, then 2XX, then default. The
// first candidate with JSON content supplies the body; when none has one the
// first candidate supplies the status and there is no body.
func (s *synthesizer) response(responses spec.Responses) (string, *shape.Shape, error) {
	if len(responses) == 0 {
		return "", nil, errors.New("no responses declared")
	}
	candidates := responseCandidates(responses)
	for _, key := range candidates {
		resp := responses[key]
		if resp == nil {
			continue
		}
		mt, ok := resp.Content.JSON()
		if !ok {
			continue
		}
		body, err := s.mapper.Map(mt.Schema)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", key, err)
		}
		return key, body, nil
	}
	if len(candidates) > 0 {
		return candidates[0], nil, nil
	}
	return "", nil, nil
}

func responseCandidates(responses spec.Responses) []string {
	var explicit []string
	var wildcard, fallback string
	for key := range responses {
		switch {
		case len(key) == 3 && key[0] == '2' && isDigits(key):
			explicit = append(explicit, key)
		case strings.EqualFold(key, "2XX"):
			wildcard = key
		case key == "default":
			fallback = key
		}
	}
	sort.Strings(explicit)
	out := explicit
	if wildcard != "" {
		out = append(out, wildcard)
	}
	if fallback != "" {
		out = append(out, fallback)
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// mergeParameters applies path-level parameters under operation-level ones.
// An operation parameter with the same (name, in) replaces the path-level
// one in place; new ones are appended in declaration order.
func mergeParameters(pathLevel, opLevel []*spec.Parameter) ([]*spec.Parameter, []error) {
	base, errs := indexParameters(pathLevel, "path item")
	overrides, opErrs := indexParameters(opLevel, "operation")
	errs = append(errs, opErrs...)

	out := make([]*spec.Parameter, 0, len(base)+len(overrides))
	used := map[string]bool{}
	for _, p := range base {
		k := paramKey(p)
		if o, ok := findParam(overrides, k); ok {
			out = append(out, o)
			used[k] = true
			continue
		}
		out = append(out, p)
	}
	for _, p := range overrides {
		if !used[paramKey(p)] {
			out = append(out, p)
		}
	}
	return out, errs
}

func indexParameters(params []*spec.Parameter, level string) ([]*spec.Parameter, []error) {
	var errs []error
	seen := map[string]bool{}
	out := make([]*spec.Parameter, 0, len(params))
	for i, p := range params {
		switch {
		case p == nil:
			continue
		case p.Ref != "":
			errs = append(errs, fmt.Errorf("%s parameter %d: reference %q must be inlined", level, i, p.Ref))
			continue
		case strings.TrimSpace(p.Name) == "":
			errs = append(errs, fmt.Errorf("%s parameter %d: missing name", level, i))
			continue
		}
		switch p.In {
		case spec.InPath, spec.InQuery, spec.InHeader, spec.InCookie:
		default:
			errs = append(errs, fmt.Errorf("%s parameter %q: unknown location %q", level, p.Name, p.In))
			continue
		}
		k := paramKey(p)
		if seen[k] {
			errs = append(errs, fmt.Errorf("%s parameter %q in %s declared more than once", level, p.Name, p.In))
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out, errs
}

// paramKey is the (name, in) identity. Header names compare case-insensitively.
func paramKey(p *spec.Parameter) string {
	name := p.Name
	if p.In == spec.InHeader {
		name = strings.ToLower(name)
	}
	return p.In + ":" + name
}

func findParam(params []*spec.Parameter, key string) (*spec.Parameter, bool) {
	for _, p := range params {
		if paramKey(p) == key {
			return p, true
		}
	}
	return nil, false
}

var placeholderRE = regexp.MustCompile(`\{([^{}/]+)\}`)

// Placeholders returns the parameter names of a path template in order.
func Placeholders(path string) []string {
	var out []string
	for _, m := range placeholderRE.FindAllStringSubmatch(path, -1) {
		out = append(out, m[1])
	}
	return out
}

// checkTemplate matches template placeholders against path parameters.
func checkTemplate(path string, params []*spec.Parameter) []error {
	var errs []error
	declared := map[string]*spec.Parameter{}
	for _, p := range params {
		if p.In == spec.InPath {
			declared[p.Name] = p
		}
	}
	inTemplate := map[string]bool{}
	for _, name := range Placeholders(path) {
		inTemplate[name] = true
		if _, ok := declared[name]; !ok {
			errs = append(errs, fmt.Errorf("path placeholder {%s} has no path parameter", name))
		}
	}
	for _, p := range params {
		if p.In != spec.InPath {
			continue
		}
		if !inTemplate[p.Name] {
			errs = append(errs, fmt.Errorf("path parameter %q does not appear in the template", p.Name))
		}
		if !p.Required {
			errs = append(errs, fmt.Errorf("path parameter %q must be required", p.Name))
		}
	}
	return errs
}
