package router

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/shape"
)

var (
	noBodyType          = reflect.TypeFor[NoBody]()
	optionalBodyType    = reflect.TypeFor[optionalBody]()
	rawMessageType      = reflect.TypeFor[json.RawMessage]()
	jsonNumberType      = reflect.TypeFor[json.Number]()
	jsonUnmarshalerType = reflect.TypeFor[json.Unmarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

type signature struct {
	params, query, headers, body, response reflect.Type
}

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyRequired
	bodyOptional
)

// plan is the decoding recipe derived while checking a handler against its
// contract.
type plan struct {
	params, query, headers *accessorPlan
	body                   bodyKind
	// bodyElem is the decoded type; for optional bodies the Optional's element.
	bodyElem   reflect.Type
	noResponse bool
}

type accessorPlan struct {
	location string
	fields   []fieldPlan
}

type fieldPlan struct {
	name     string
	index    []int
	shape    *shape.Shape
	optional bool
}

// ConformanceError describes why a Go type does not match a contract shape.
type ConformanceError struct {
	Part   string // params, query, headers, body or response
	Path   string // Go-side location, e.g. "Pet.Tags[]"
	Reason string
}

func (e *ConformanceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Part, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Part, e.Path, e.Reason)
}

func conformSignature(op *contract.Operation, sig signature) (*plan, error) {
	p := &plan{}
	var err error
	if p.params, err = conformAccessor("params", op.Params, sig.params); err != nil {
		return nil, err
	}
	if p.query, err = conformAccessor("query", op.Query, sig.query); err != nil {
		return nil, err
	}
	if p.headers, err = conformAccessor("headers", op.Headers, sig.headers); err != nil {
		return nil, err
	}

	switch {
	case op.RequestBody == nil:
		if sig.body != noBodyType {
			return nil, &ConformanceError{Part: "body", Reason: fmt.Sprintf("operation declares no request body, use router.NoBody instead of %s", sig.body)}
		}
	default:
		inner, optional := op.RequestBody.WithoutAbsent()
		if sig.body.Kind() == reflect.Pointer && sig.body.Elem().Implements(optionalBodyType) {
			return nil, &ConformanceError{Part: "body", Reason: fmt.Sprintf("use router.Optional[T], not a pointer: %s", sig.body)}
		}
		isOptional := sig.body.Implements(optionalBodyType)
		switch {
		case optional && !isOptional:
			return nil, &ConformanceError{Part: "body", Reason: fmt.Sprintf("request body may be absent, use router.Optional[...] instead of %s", sig.body)}
		case !optional && isOptional:
			return nil, &ConformanceError{Part: "body", Reason: "request body is required, router.Optional is not allowed"}
		case sig.body == noBodyType:
			return nil, &ConformanceError{Part: "body", Reason: "operation declares a request body"}
		}
		p.body, p.bodyElem = bodyRequired, sig.body
		if optional {
			p.body = bodyOptional
			p.bodyElem = reflect.Zero(sig.body).Interface().(optionalBody).optionalElem()
		}
		c := &conformer{part: "body", named: map[string]reflect.Type{}}
		if err := c.value(inner, p.bodyElem, p.bodyElem.String()); err != nil {
			return nil, err
		}
	}

	switch {
	case op.ResponseBody == nil:
		if sig.response != noBodyType {
			return nil, &ConformanceError{Part: "response", Reason: fmt.Sprintf("selected response declares no JSON body, use router.NoBody instead of %s", sig.response)}
		}
		p.noResponse = true
	case sig.response == noBodyType:
		return nil, &ConformanceError{Part: "response", Reason: fmt.Sprintf("response %s declares a JSON body", op.ResponseStatus)}
	default:
		c := &conformer{part: "response", named: map[string]reflect.Type{}}
		if err := c.value(op.ResponseBody, sig.response, sig.response.String()); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// conformAccessor matches a parameter object shape against a struct whose
// fields are named by their json tag or Go name.
func conformAccessor(part string, s *shape.Shape, t reflect.Type) (*accessorPlan, error) {
	if t.Kind() != reflect.Struct {
		return nil, &ConformanceError{Part: part, Reason: fmt.Sprintf("accessor must be a struct, got %s", t)}
	}
	ap := &accessorPlan{location: part}
	fields := structFields(t)
	used := map[int]bool{}
	for _, m := range s.Members {
		i := findField(fields, m.Name)
		if i < 0 {
			return nil, &ConformanceError{Part: part, Path: t.String(), Reason: fmt.Sprintf("no field for parameter %q", m.Name)}
		}
		used[i] = true
		f := fields[i]
		if err := conformParam(m, f.typ); err != nil {
			return nil, &ConformanceError{Part: part, Path: t.String() + "." + f.goName, Reason: err.Error()}
		}
		ap.fields = append(ap.fields, fieldPlan{name: m.Name, index: f.index, shape: m.Shape, optional: m.Optional})
	}
	for i, f := range fields {
		if !used[i] {
			return nil, &ConformanceError{Part: part, Path: t.String() + "." + f.goName, Reason: "field does not match any declared parameter"}
		}
	}
	return ap, nil
}

// conformParam accepts scalars and slices of scalars. Optional parameters
// need a pointer, or a slice for array parameters.
func conformParam(m shape.Member, t reflect.Type) error {
	s, nullable := m.Shape.WithoutNull()
	isArray := s.Kind == shape.Array
	switch {
	case t.Kind() == reflect.Pointer:
		t = t.Elem()
	case (m.Optional || nullable) && !(isArray && t.Kind() == reflect.Slice):
		return fmt.Errorf("optional parameter needs a pointer field, got %s", t)
	}
	if isArray {
		if t.Kind() != reflect.Slice {
			return fmt.Errorf("array parameter needs a slice field, got %s", t)
		}
		items, _ := s.Items.WithoutNull()
		return conformScalar(items, t.Elem())
	}
	return conformScalar(s, t)
}

func conformScalar(s *shape.Shape, t reflect.Type) error {
	k := t.Kind()
	switch s.Kind {
	case shape.String:
		if k == reflect.String {
			return nil
		}
	case shape.Integer:
		if isInt(k) {
			return nil
		}
	case shape.Number:
		if isFloat(k) {
			return nil
		}
	case shape.Boolean:
		if k == reflect.Bool {
			return nil
		}
	default:
		// Anything else is handed over as the raw string.
		if k == reflect.String || k == reflect.Interface {
			return nil
		}
	}
	return fmt.Errorf("%s parameter cannot be decoded into %s", s.Kind, t)
}

type structField struct {
	name   string
	goName string
	index  []int
	typ    reflect.Type
}

// structFields lists exported fields by wire name (json tag or Go name).
func structFields(t reflect.Type) []structField {
	var out []structField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, skip := parseJSONTag(f)
		if skip {
			continue
		}
		out = append(out, structField{name: name, goName: f.Name, index: f.Index, typ: f.Type})
	}
	return out
}

func parseJSONTag(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, false
}

// findField matches the wire name exactly, then case-insensitively.
func findField(fields []structField, name string) int {
	for i, f := range fields {
		if f.name == name {
			return i
		}
	}
	for i, f := range fields {
		if strings.EqualFold(f.name, name) {
			return i
		}
	}
	return -1
}

// conformer checks JSON payload types. named maps the canonical keys of the
// definitions being expanded to the Go type chosen for them, so Ref markers
// must point back to the same type.
type conformer struct {
	part  string
	named map[string]reflect.Type
}

func (c *conformer) fail(path, format string, args ...any) error {
	return &ConformanceError{Part: c.part, Path: path, Reason: fmt.Sprintf(format, args...)}
}

func (c *conformer) value(s *shape.Shape, t reflect.Type, path string) error {
	if s == nil || s.Kind == shape.Any {
		return nil
	}
	if t.Kind() == reflect.Interface || t == rawMessageType {
		if untyped(s) {
			return nil
		}
		return c.fail(path, "untyped %s cannot stand for %s", t, s)
	}
	if s.Kind == shape.Ref {
		want, ok := c.named[s.Target]
		if !ok {
			return c.fail(path, "reference to %s outside its definition", shape.Name(s.Target))
		}
		if base := deref(t); base != want {
			return c.fail(path, "%s refers back to %s and must use %s, got %s", shape.Name(s.Target), shape.Name(s.Target), want, t)
		}
		return nil
	}
	if s.ID != "" {
		prev, had := c.named[s.ID]
		c.named[s.ID] = deref(t)
		defer func() {
			if had {
				c.named[s.ID] = prev
			} else {
				delete(c.named, s.ID)
			}
		}()
	}

	if inner, nullable := s.WithoutNull(); nullable {
		switch t.Kind() {
		case reflect.Pointer:
			return c.value(inner, t.Elem(), path)
		case reflect.Slice, reflect.Map:
			return c.value(inner, t, path)
		}
		return c.fail(path, "nullable %s needs a pointer, got %s", inner.Kind, t)
	}
	if t.Kind() == reflect.Pointer {
		return c.value(s, t.Elem(), path)
	}
	if s.Kind.Primitive() && (t.Implements(jsonUnmarshalerType) || reflect.PointerTo(t).Implements(textUnmarshalerType) || reflect.PointerTo(t).Implements(jsonUnmarshalerType)) {
		return nil
	}

	k := t.Kind()
	switch s.Kind {
	case shape.String:
		if k == reflect.String {
			return nil
		}
	case shape.Integer:
		if isInt(k) || t == jsonNumberType {
			return nil
		}
	case shape.Number:
		if isFloat(k) || t == jsonNumberType {
			return nil
		}
	case shape.Boolean:
		if k == reflect.Bool {
			return nil
		}
	case shape.Array:
		if k == reflect.Slice || k == reflect.Array {
			return c.value(s.Items, t.Elem(), path+"[]")
		}
	case shape.Object:
		return c.object(s, t, path)
	case shape.Union, shape.Intersection:
		return c.fail(path, "%s needs an interface or json.RawMessage, got %s", s.Kind, t)
	}
	return c.fail(path, "%s cannot hold %s", t, s)
}

func (c *conformer) object(s *shape.Shape, t reflect.Type, path string) error {
	if t.Kind() == reflect.Map {
		if t.Key().Kind() != reflect.String {
			return c.fail(path, "map keys must be strings, got %s", t)
		}
		if len(s.Members) > 0 {
			return c.fail(path, "object with declared properties needs a struct, got %s", t)
		}
		return c.value(s.Additional, t.Elem(), path+"[key]")
	}
	if t.Kind() != reflect.Struct {
		return c.fail(path, "object needs a struct, got %s", t)
	}
	if len(s.Members) == 0 && s.Additional != nil {
		return c.fail(path, "object with only additional properties needs a map, got %s", t)
	}
	fields := structFields(t)
	used := map[int]bool{}
	for _, m := range s.Members {
		i := findField(fields, m.Name)
		if i < 0 {
			return c.fail(path, "no field for property %q", m.Name)
		}
		used[i] = true
		f := fields[i]
		if m.Optional && !nilable(f.typ) {
			return c.fail(path+"."+f.goName, "optional property %q needs a pointer, slice or map, got %s", m.Name, f.typ)
		}
		if err := c.value(m.Shape, f.typ, path+"."+f.goName); err != nil {
			return err
		}
	}
	for i, f := range fields {
		if !used[i] {
			return c.fail(path+"."+f.goName, "field does not match any declared property")
		}
	}
	return nil
}

// untyped reports whether s has no single Go type, so only an interface or
// json.RawMessage can hold it.
func untyped(s *shape.Shape) bool {
	inner, _ := s.WithoutNull()
	switch inner.Kind {
	case shape.Any, shape.Null, shape.Union, shape.Intersection:
		return true
	}
	return false
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
