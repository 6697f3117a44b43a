package goemitter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/gobuffalo/flect"
	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/shape"
	"github.com/stoewer/go-strcase"
)

const (
	routerPkg    = "github.com/mark3labs/oasrouter/router"
	contractPkg  = "github.com/mark3labs/oasrouter/contract"
	specPkg      = "github.com/mark3labs/oasrouter/spec"
	documentFile = "openapi.yaml"
)

type generator struct {
	file     *jen.File
	used     map[string]bool
	named    map[string]string // canonical key -> Go type name
	declared map[string]bool
}

func renderPackage(pkg string, set *contract.Set) ([]byte, error) {
	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by oasrouter. DO NOT EDIT.")
	f.Anon("embed")
	g := &generator{
		file:     f,
		used:     map[string]bool{"Routes": true, "NewRoutes": true, "Load": true, "API": true},
		named:    map[string]string{},
		declared: map[string]bool{},
	}

	f.Comment("//go:embed " + documentFile)
	f.Var().Id("document").Index().Byte()

	f.Comment("Load derives the routing interface from the embedded document.")
	f.Func().Id("Load").Params(jen.Id("ctx").Qual("context", "Context")).Params(jen.Op("*").Qual(routerPkg, "Interface"), jen.Error()).Block(
		jen.List(jen.Id("doc"), jen.Err()).Op(":=").Qual(specPkg, "Parse").Call(jen.Id("document")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.List(jen.Id("set"), jen.Err()).Op(":=").Qual(contractPkg, "Synthesize").Call(jen.Id("ctx"), jen.Id("doc")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Qual(routerPkg, "Build").Call(jen.Id("set"))),
	)

	f.Comment("Routes registers typed handlers. Each method accepts only the handler")
	f.Comment("shape of its operation.")
	f.Type().Id("Routes").Struct(jen.Id("API").Op("*").Qual(routerPkg, "Interface"))

	f.Func().Id("NewRoutes").Params(jen.Id("ctx").Qual("context", "Context")).Params(jen.Op("*").Id("Routes"), jen.Error()).Block(
		jen.List(jen.Id("api"), jen.Err()).Op(":=").Id("Load").Call(jen.Id("ctx")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Op("&").Id("Routes").Values(jen.Dict{jen.Id("API"): jen.Id("api")}), jen.Nil()),
	)

	f.Func().Params(jen.Id("r").Op("*").Id("Routes")).Id("handle").Params(
		jen.Id("m").Qual(specPkg, "HttpMethod"),
		jen.Id("path").String(),
		jen.Id("h").Qual(routerPkg, "Handler"),
	).Error().Block(
		jen.List(jen.Id("member"), jen.Err()).Op(":=").Id("r").Dot("API").Dot("Member").Call(jen.Id("m")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Err())),
		jen.Return(jen.Id("member").Dot("Handle").Call(jen.Id("path"), jen.Id("h"))),
	)

	for _, op := range set.Operations {
		g.operation(op)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *generator) operation(op *contract.Operation) {
	name := g.unique(operationName(op))
	params := g.accessor(name+"Params", op.Params)
	query := g.accessor(name+"Query", op.Query)
	headers := g.accessor(name+"Headers", op.Headers)

	body := jen.Qual(routerPkg, "NoBody")
	if op.RequestBody != nil {
		inner, optional := op.RequestBody.WithoutAbsent()
		t, _ := g.typeOf(inner, name+"Body")
		body = jen.Add(t)
		if optional {
			body = jen.Qual(routerPkg, "Optional").Types(t)
		}
	}
	response := jen.Qual(routerPkg, "NoBody")
	if op.ResponseBody != nil {
		response, _ = g.typeOf(op.ResponseBody, name+"Response")
	}

	types := []jen.Code{params, query, headers, body, response}
	g.file.Commentf("%s registers the handler of %s.", name, op)
	g.file.Func().Params(jen.Id("r").Op("*").Id("Routes")).Id(name).Params(
		jen.Id("h").Qual(routerPkg, "HandlerFunc").Types(types...),
	).Error().Block(
		jen.Return(jen.Id("r").Dot("handle").Call(
			jen.Qual(specPkg, strings.ToUpper(string(op.Method))),
			jen.Lit(op.Path),
			jen.Qual(routerPkg, "Bind").Types(types...).Call(jen.Id("h")),
		)),
	)
}

// accessor declares the parameter struct of one location, or uses
// router.Empty when there are no parameters.
func (g *generator) accessor(hint string, s *shape.Shape) *jen.Statement {
	if len(s.Members) == 0 {
		return jen.Qual(routerPkg, "Empty")
	}
	name := g.unique(hint)
	fields := make([]jen.Code, 0, len(s.Members))
	seen := map[string]bool{}
	for _, m := range s.Members {
		fields = append(fields, jen.Id(fieldName(m.Name, seen)).Add(paramType(m)).Tag(map[string]string{"json": m.Name}))
	}
	g.file.Type().Id(name).Struct(fields...)
	return jen.Id(name)
}

// paramType maps a parameter to a scalar, a slice of scalars, or a raw
// string. Optional scalars are pointers.
func paramType(m shape.Member) *jen.Statement {
	s, nullable := m.Shape.WithoutNull()
	if s.Kind == shape.Array {
		items, _ := s.Items.WithoutNull()
		return jen.Index().Add(scalarType(items))
	}
	t := scalarType(s)
	if m.Optional || nullable {
		return jen.Op("*").Add(t)
	}
	return t
}

func scalarType(s *shape.Shape) *jen.Statement {
	switch s.Kind {
	case shape.Integer:
		return integerType(s.Format)
	case shape.Number:
		return numberType(s.Format)
	case shape.Boolean:
		return jen.Bool()
	}
	return jen.String()
}

func integerType(format string) *jen.Statement {
	switch format {
	case "int32":
		return jen.Int32()
	case "int64":
		return jen.Int64()
	}
	return jen.Int()
}

func numberType(format string) *jen.Statement {
	if format == "float" {
		return jen.Float32()
	}
	return jen.Float64()
}

// typeOf returns a type expression for s and whether values of it can be nil.
// Named and inline object shapes become declared types.
func (g *generator) typeOf(s *shape.Shape, hint string) (*jen.Statement, bool) {
	if s == nil {
		return jen.Id("any"), true
	}
	inner, nullable := s.WithoutNull()
	t, nilable := g.nonNull(inner, hint)
	if nullable && !nilable {
		return jen.Op("*").Add(t), true
	}
	return t, nilable
}

func (g *generator) nonNull(s *shape.Shape, hint string) (*jen.Statement, bool) {
	switch {
	case s.Kind == shape.Ref:
		return jen.Id(g.typeName(s.Target)), false
	case s.ID != "":
		name := g.typeName(s.ID)
		if !g.declared[s.ID] {
			g.declared[s.ID] = true
			t, _ := g.structure(s, name)
			if s.Kind == shape.Union || s.Kind == shape.Intersection {
				// Alias, so the value keeps json.RawMessage's raw encoding.
				g.file.Type().Id(name).Op("=").Add(t)
			} else {
				g.file.Type().Id(name).Add(t)
			}
		}
		return jen.Id(name), nilableKind(s)
	case s.Kind == shape.Object && len(s.Members) > 0:
		name := g.unique(hint)
		t, _ := g.structure(s, name)
		g.file.Type().Id(name).Add(t)
		return jen.Id(name), false
	}
	return g.structure(s, hint)
}

// structure renders the shape itself, never by name.
func (g *generator) structure(s *shape.Shape, hint string) (*jen.Statement, bool) {
	switch s.Kind {
	case shape.String:
		if s.Format == "date-time" {
			return jen.Qual("time", "Time"), false
		}
		return jen.String(), false
	case shape.Integer:
		return integerType(s.Format), false
	case shape.Number:
		return numberType(s.Format), false
	case shape.Boolean:
		return jen.Bool(), false
	case shape.Array:
		items, _ := g.typeOf(s.Items, itemName(hint))
		return jen.Index().Add(items), true
	case shape.Object:
		if len(s.Members) == 0 {
			value := jen.Id("any")
			if s.Additional != nil {
				value, _ = g.typeOf(s.Additional, hint+"Value")
			}
			return jen.Map(jen.String()).Add(value), true
		}
		fields := make([]jen.Code, 0, len(s.Members))
		seen := map[string]bool{}
		for _, m := range s.Members {
			field := fieldName(m.Name, seen)
			t, nilable := g.typeOf(m.Shape, hint+field)
			if !nilable && (m.Optional || m.Shape.Kind == shape.Ref) {
				t = jen.Op("*").Add(t)
			}
			tag := m.Name
			if m.Optional {
				tag += ",omitempty"
			}
			fields = append(fields, jen.Id(field).Add(t).Tag(map[string]string{"json": tag}))
		}
		return jen.Struct(fields...), false
	case shape.Union, shape.Intersection:
		return jen.Qual("encoding/json", "RawMessage"), true
	}
	return jen.Id("any"), true
}

func nilableKind(s *shape.Shape) bool {
	switch s.Kind {
	case shape.Array, shape.Union, shape.Intersection, shape.Any, shape.Null:
		return true
	case shape.Object:
		return len(s.Members) == 0
	}
	return false
}

// itemName names inline array items after the singular of the array, e.g.
// the items of PetTags become PetTag.
func itemName(hint string) string {
	if item := flect.Singularize(hint); item != hint && item != "" {
		return item
	}
	return hint + "Item"
}

func (g *generator) typeName(key string) string {
	if name, ok := g.named[key]; ok {
		return name
	}
	name := g.unique(goIdent(shape.Name(key)))
	g.named[key] = name
	return name
}

func (g *generator) unique(name string) string {
	if !g.used[name] {
		g.used[name] = true
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s%d", name, i)
		if !g.used[candidate] {
			g.used[candidate] = true
			return candidate
		}
	}
}

// operationName prefers the operationId; otherwise it spells out the method
// and path, e.g. "get /pets/{id}" becomes GetPetsByID.
func operationName(op *contract.Operation) string {
	if op.OperationID != "" {
		if name := goIdent(op.OperationID); name != "" {
			return name
		}
	}
	words := []string{string(op.Method)}
	for _, seg := range strings.Split(op.Path, "/") {
		switch {
		case seg == "":
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			words = append(words, "by", seg[1:len(seg)-1])
		default:
			words = append(words, seg)
		}
	}
	return goIdent(strings.Join(words, " "))
}

// goIdent converts s into an exported Go identifier.
func goIdent(s string) string {
	var b strings.Builder
	for _, r := range strcase.UpperCamelCase(s) {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "N" + out
	}
	return out
}

func fieldName(name string, seen map[string]bool) string {
	field := goIdent(name)
	if field == "" {
		field = "Field"
	}
	base := field
	for i := 2; seen[field]; i++ {
		field = fmt.Sprintf("%s%d", base, i)
	}
	seen[field] = true
	return field
}
