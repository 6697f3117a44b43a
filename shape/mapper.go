package shape

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/oasrouter/spec"
)

// ErrUnresolved is matched by every ResolutionError.
var ErrUnresolved = errors.New("unresolved schema reference")

// ResolutionError reports a named reference the registry cannot resolve.
// Pointer locates the reference within the mapped schema tree.
type ResolutionError struct {
	Identifier string
	Pointer    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unresolved schema reference %q at %s", e.Identifier, displayPointer(e.Pointer))
}

func (e *ResolutionError) Is(target error) bool { return target == ErrUnresolved }

// MappingError reports a schema the mapper cannot interpret.
type MappingError struct {
	Pointer string
	Message string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s: %s", displayPointer(e.Pointer), e.Message)
}

func displayPointer(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// Mapper converts schema definitions into shapes, resolving named
// references through a Registry.
type Mapper struct {
	reg *Registry
}

func NewMapper(reg *Registry) *Mapper {
	return &Mapper{reg: reg}
}

// Map converts s into a shape. Recursive definitions map to a single Ref
// marker at the point of re-entry.
func (m *Mapper) Map(s *spec.Schema) (*Shape, error) {
	return m.mapSchema(s, "", nil)
}

// MapRef converts the definition ref resolves to. Unlike Map on the resolved
// schema, the definition is open from the start, so a self reference becomes
// a Ref marker at its first re-entry.
func (m *Mapper) MapRef(ref string) (*Shape, error) {
	target, key, ok := m.reg.Lookup(ref)
	if !ok {
		return nil, &ResolutionError{Identifier: ref}
	}
	return m.mapNamed(target, key, "", nil)
}

// mapSchema handles naming: references are substituted and every named
// definition is pushed on stack while its body is mapped.
func (m *Mapper) mapSchema(s *spec.Schema, pointer string, stack []string) (*Shape, error) {
	if s == nil {
		return &Shape{Kind: Any}, nil
	}
	if s.Ref != "" {
		target, key, ok := m.reg.Lookup(s.Ref)
		if !ok {
			return nil, &ResolutionError{Identifier: s.Ref, Pointer: pointer}
		}
		return m.mapNamed(target, key, pointer, stack)
	}
	if s.ID != "" {
		return m.mapNamed(s, s.ID, pointer, stack)
	}
	return m.mapBody(s, pointer, stack)
}

func (m *Mapper) mapNamed(s *spec.Schema, key, pointer string, stack []string) (*Shape, error) {
	for _, open := range stack {
		if open == key {
			return &Shape{Kind: Ref, Target: key}, nil
		}
	}
	out, err := m.mapBody(s, pointer, append(stack[:len(stack):len(stack)], key))
	if err != nil {
		return nil, err
	}
	out.ID = key
	return out, nil
}

func (m *Mapper) mapBody(s *spec.Schema, pointer string, stack []string) (*Shape, error) {
	var (
		out *Shape
		err error
	)
	switch {
	case len(s.AllOf) > 0:
		out, err = m.mapAllOf(s, pointer, stack)
	case len(s.OneOf) > 0 || len(s.AnyOf) > 0:
		out, err = m.mapAlternatives(s, pointer, stack)
	default:
		out, err = m.mapTyped(s, pointer, stack)
	}
	if err != nil {
		return nil, err
	}
	if s.Nullable {
		out = orNull(out)
	}
	return out, nil
}

func (m *Mapper) mapTyped(s *spec.Schema, pointer string, stack []string) (*Shape, error) {
	var types []string
	nullable := false
	for _, t := range s.Type {
		if t == "null" {
			nullable = true
			continue
		}
		types = append(types, t)
	}
	if len(types) == 0 && !nullable {
		types = []string{inferType(s)}
	}

	var variants []*Shape
	for _, t := range types {
		v, err := m.mapType(s, t, pointer, stack)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	var out *Shape
	switch len(variants) {
	case 0:
		out = &Shape{Kind: Null}
	case 1:
		out = variants[0]
	default:
		out = &Shape{Kind: Union, Variants: variants}
	}
	if nullable && len(variants) > 0 {
		out = orNull(out)
	}
	return out, nil
}

func (m *Mapper) mapType(s *spec.Schema, t, pointer string, stack []string) (*Shape, error) {
	switch t {
	case "object":
		return m.mapObject(s, pointer, stack)
	case "array":
		items, err := m.mapSchema(s.Items, pointer+"/items", stack)
		if err != nil {
			return nil, err
		}
		return &Shape{Kind: Array, Items: items}, nil
	case "string":
		return primitive(String, s), nil
	case "number":
		return primitive(Number, s), nil
	case "integer":
		return primitive(Integer, s), nil
	case "boolean":
		return primitive(Boolean, s), nil
	case "":
		return primitive(Any, s), nil
	}
	return nil, &MappingError{Pointer: pointer, Message: fmt.Sprintf("unsupported type %q", t)}
}

func primitive(k Kind, s *spec.Schema) *Shape {
	out := &Shape{Kind: k, Format: s.Format}
	if len(s.Enum) > 0 {
		out.Enum = append([]any(nil), s.Enum...)
	}
	return out
}

func (m *Mapper) mapObject(s *spec.Schema, pointer string, stack []string) (*Shape, error) {
	out := &Shape{Kind: Object}
	for _, p := range s.Properties {
		child, err := m.mapSchema(p.Schema, pointer+"/properties/"+escape(p.Name), stack)
		if err != nil {
			return nil, err
		}
		out.Members = append(out.Members, Member{Name: p.Name, Shape: child, Optional: !s.IsRequired(p.Name)})
	}
	if ap := s.AdditionalProperties; ap != nil {
		switch {
		case ap.Schema != nil:
			extra, err := m.mapSchema(ap.Schema, pointer+"/additionalProperties", stack)
			if err != nil {
				return nil, err
			}
			out.Additional = extra
		case ap.Allowed != nil && *ap.Allowed:
			out.Additional = &Shape{Kind: Any}
		}
	}
	return out, nil
}

func (m *Mapper) mapAlternatives(s *spec.Schema, pointer string, stack []string) (*Shape, error) {
	key, alts := "oneOf", s.OneOf
	if len(alts) == 0 {
		key, alts = "anyOf", s.AnyOf
	}
	variants := make([]*Shape, 0, len(alts))
	for i, alt := range alts {
		v, err := m.mapSchema(alt, fmt.Sprintf("%s/%s/%d", pointer, key, i), stack)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	if len(variants) == 1 {
		return variants[0], nil
	}
	return &Shape{Kind: Union, Variants: variants}, nil
}

// mapAllOf merges the parts into one object when every part is an object,
// otherwise it keeps them as an intersection. Properties declared next to
// allOf count as one more part.
func (m *Mapper) mapAllOf(s *spec.Schema, pointer string, stack []string) (*Shape, error) {
	var parts []*Shape
	if len(s.Properties) > 0 {
		own, err := m.mapObject(s, pointer, stack)
		if err != nil {
			return nil, err
		}
		parts = append(parts, own)
	}
	for i, part := range s.AllOf {
		v, err := m.mapSchema(part, fmt.Sprintf("%s/allOf/%d", pointer, i), stack)
		if err != nil {
			return nil, err
		}
		parts = append(parts, v)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	for _, p := range parts {
		if p.Kind != Object {
			return &Shape{Kind: Intersection, Variants: parts}, nil
		}
	}
	merged := &Shape{Kind: Object}
	for _, p := range parts {
		for _, mem := range p.Members {
			if idx := memberIndex(merged, mem.Name); idx >= 0 {
				// Required in any part means required in the merge.
				merged.Members[idx].Optional = merged.Members[idx].Optional && mem.Optional
				continue
			}
			merged.Members = append(merged.Members, mem)
		}
		if merged.Additional == nil {
			merged.Additional = p.Additional
		}
	}
	return merged, nil
}

func memberIndex(s *Shape, name string) int {
	for i, m := range s.Members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

func orNull(s *Shape) *Shape {
	switch s.Kind {
	case Null, Any:
		return s
	case Union:
		for _, v := range s.Variants {
			if v.Kind == Null {
				return s
			}
		}
	}
	return &Shape{Kind: Union, Variants: []*Shape{s, {Kind: Null}}}
}

// inferType picks a type for schemas that omit one.
func inferType(s *spec.Schema) string {
	switch {
	case len(s.Properties) > 0 || s.AdditionalProperties != nil:
		return "object"
	case s.Items != nil:
		return "array"
	case len(s.Enum) > 0:
		return enumType(s.Enum)
	}
	return ""
}

// enumType infers the primitive type shared by every enum literal, or ""
// when the literals disagree.
func enumType(values []any) string {
	kind := ""
	for _, v := range values {
		var k string
		switch n := v.(type) {
		case nil:
			continue
		case string:
			k = "string"
		case bool:
			k = "boolean"
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			k = "integer"
		case float32:
			k = floatType(float64(n))
		case float64:
			k = floatType(n)
		default:
			return ""
		}
		switch {
		case kind == "":
			kind = k
		case kind == k:
		case strings.Contains(kind+k, "number") && strings.Contains(kind+k, "integer"):
			kind = "number"
		default:
			return ""
		}
	}
	return kind
}

func floatType(f float64) string {
	if f == math.Trunc(f) {
		return "integer"
	}
	return "number"
}
