// Package shape maps schema definitions into structural shape descriptors.
package shape

import (
	"fmt"
	"strings"
)

// Kind discriminates the variants of a Shape.
type Kind int

const (
	Any Kind = iota
	Null
	String
	Number
	Integer
	Boolean
	Object
	Array
	Union
	Intersection
	// Ref marks a re-entrant reference to a definition already being expanded.
	Ref
	// Absent is the "no value at all" variant used for optional request bodies.
	Absent
)

var kindNames = [...]string{
	Any:          "any",
	Null:         "null",
	String:       "string",
	Number:       "number",
	Integer:      "integer",
	Boolean:      "boolean",
	Object:       "object",
	Array:        "array",
	Union:        "union",
	Intersection: "intersection",
	Ref:          "ref",
	Absent:       "absent",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Primitive reports whether values of this kind are scalars.
func (k Kind) Primitive() bool {
	switch k {
	case Null, String, Number, Integer, Boolean:
		return true
	}
	return false
}

// Shape is a structural descriptor of a piece of data.
type Shape struct {
	Kind Kind
	// ID is the canonical key of the named definition this shape was mapped
	// from, empty for inline shapes.
	ID     string
	Format string
	Enum   []any
	// Members of an object, in declaration order.
	Members []Member
	// Additional is the value shape of undeclared object keys.
	Additional *Shape
	Items      *Shape
	Variants   []*Shape
	// Target is the canonical key a Ref shape refers back to.
	Target string
}

type Member struct {
	Name     string
	Shape    *Shape
	Optional bool
}

// Member returns the object member with the given name.
func (s *Shape) Member(name string) (Member, bool) {
	if s == nil {
		return Member{}, false
	}
	for _, m := range s.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// EmptyObject returns an object shape without members.
func EmptyObject() *Shape { return &Shape{Kind: Object} }

// Absence returns the explicit "absent" variant.
func Absence() *Shape { return &Shape{Kind: Absent} }

// OrAbsent returns s | absent.
func OrAbsent(s *Shape) *Shape {
	return &Shape{Kind: Union, Variants: []*Shape{s, Absence()}}
}

// AcceptsAbsent reports whether s has a top-level absent variant.
func (s *Shape) AcceptsAbsent() bool {
	_, ok := s.WithoutAbsent()
	return ok
}

// WithoutAbsent strips a top-level absent variant. The boolean reports
// whether one was present.
func (s *Shape) WithoutAbsent() (*Shape, bool) {
	if s == nil {
		return nil, false
	}
	if s.Kind == Absent {
		return nil, true
	}
	if s.Kind != Union {
		return s, false
	}
	rest := make([]*Shape, 0, len(s.Variants))
	for _, v := range s.Variants {
		if v.Kind != Absent {
			rest = append(rest, v)
		}
	}
	if len(rest) == len(s.Variants) {
		return s, false
	}
	if len(rest) == 1 {
		return rest[0], true
	}
	return &Shape{Kind: Union, ID: s.ID, Variants: rest}, true
}

// WithoutNull strips a top-level null variant. The boolean reports whether
// the shape was nullable.
func (s *Shape) WithoutNull() (*Shape, bool) {
	if s == nil || s.Kind != Union {
		return s, false
	}
	rest := make([]*Shape, 0, len(s.Variants))
	for _, v := range s.Variants {
		if v.Kind != Null {
			rest = append(rest, v)
		}
	}
	switch {
	case len(rest) == len(s.Variants):
		return s, false
	case len(rest) == 1:
		inner := *rest[0]
		if inner.ID == "" {
			inner.ID = s.ID
		}
		return &inner, true
	}
	return &Shape{Kind: Union, ID: s.ID, Variants: rest}, true
}

// Name returns the display name of a canonical key: the identifier itself,
// or the last segment of a local pointer.
func Name(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 && strings.HasPrefix(key, "#/") {
		seg := key[i+1:]
		seg = strings.ReplaceAll(seg, "~1", "/")
		return strings.ReplaceAll(seg, "~0", "~")
	}
	return key
}

// String renders the shape in a compact notation, e.g.
// "{name: string, tag?: string} | absent". Nested named shapes render by name.
func (s *Shape) String() string {
	var b strings.Builder
	render(&b, s, true)
	return b.String()
}

func render(b *strings.Builder, s *Shape, top bool) {
	if s == nil {
		b.WriteString("any")
		return
	}
	if !top && s.ID != "" {
		b.WriteString(Name(s.ID))
		return
	}
	switch s.Kind {
	case Ref:
		b.WriteString("^" + Name(s.Target))
	case Object:
		b.WriteString("{")
		for i, m := range s.Members {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(m.Name)
			if m.Optional {
				b.WriteString("?")
			}
			b.WriteString(": ")
			render(b, m.Shape, false)
		}
		if s.Additional != nil {
			if len(s.Members) > 0 {
				b.WriteString(", ")
			}
			b.WriteString("[key]: ")
			render(b, s.Additional, false)
		}
		b.WriteString("}")
	case Array:
		wrap := s.Items != nil && s.Items.ID == "" && (s.Items.Kind == Union || s.Items.Kind == Intersection)
		if wrap {
			b.WriteString("(")
		}
		render(b, s.Items, false)
		if wrap {
			b.WriteString(")")
		}
		b.WriteString("[]")
	case Union, Intersection:
		sep := " | "
		if s.Kind == Intersection {
			sep = " & "
		}
		for i, v := range s.Variants {
			if i > 0 {
				b.WriteString(sep)
			}
			nested := v.ID == "" && (v.Kind == Union || v.Kind == Intersection)
			if nested {
				b.WriteString("(")
			}
			render(b, v, false)
			if nested {
				b.WriteString(")")
			}
		}
	default:
		b.WriteString(s.Kind.String())
		if len(s.Enum) > 0 {
			b.WriteString("(")
			for i, e := range s.Enum {
				if i > 0 {
					b.WriteString("|")
				}
				if str, ok := e.(string); ok {
					fmt.Fprintf(b, "%q", str)
				} else {
					fmt.Fprintf(b, "%v", e)
				}
			}
			b.WriteString(")")
		}
	}
}
