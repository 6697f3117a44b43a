package shape

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/oasrouter/spec"
	"go.uber.org/multierr"
)

// DuplicateIdentifierError reports an Identifier declared by more than one
// schema definition.
type DuplicateIdentifierError struct {
	Identifier string
	Locations  []string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("duplicate schema identifier %q declared at %s", e.Identifier, strings.Join(e.Locations, ", "))
}

type definition struct {
	schema   *spec.Schema
	location string
}

// Registry indexes named schema definitions. Identifiers ($id) and local
// component pointers (#/components/schemas/Name) are separate namespaces.
type Registry struct {
	byID      map[string]definition
	byPointer map[string]definition
}

// NewRegistry indexes every schema of doc carrying an Identifier, plus every
// component schema by its local pointer. All duplicate Identifiers are
// reported together.
func NewRegistry(doc *spec.Document) (*Registry, error) {
	r := &Registry{
		byID:      map[string]definition{},
		byPointer: map[string]definition{},
	}
	if doc == nil {
		return r, nil
	}
	if doc.Components != nil {
		for name, s := range doc.Components.Schemas {
			if s != nil {
				r.byPointer[spec.ComponentPointer(name)] = definition{schema: s, location: spec.ComponentPointer(name)}
			}
		}
	}

	seen := map[string][]string{}
	var order []string
	Walk(doc, func(pointer string, s *spec.Schema) {
		if s.ID == "" {
			return
		}
		if _, ok := seen[s.ID]; !ok {
			order = append(order, s.ID)
			r.byID[s.ID] = definition{schema: s, location: pointer}
		}
		seen[s.ID] = append(seen[s.ID], pointer)
	})

	var err error
	for _, id := range order {
		if locs := seen[id]; len(locs) > 1 {
			err = multierr.Append(err, &DuplicateIdentifierError{Identifier: id, Locations: locs})
		}
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup resolves a named reference. ref is either an Identifier or a local
// component pointer. The second result is the canonical key of the target:
// its Identifier when it has one, otherwise its pointer.
func (r *Registry) Lookup(ref string) (*spec.Schema, string, bool) {
	if r == nil {
		return nil, "", false
	}
	if d, ok := r.byID[ref]; ok {
		return d.schema, ref, true
	}
	if d, ok := r.byPointer[ref]; ok {
		if d.schema.ID != "" {
			return d.schema, d.schema.ID, true
		}
		return d.schema, ref, true
	}
	return nil, "", false
}

// Location returns the document pointer where an Identifier is declared.
func (r *Registry) Location(id string) (string, bool) {
	d, ok := r.byID[id]
	return d.location, ok
}

// Identifiers returns the indexed Identifiers in lexical order.
func (r *Registry) Identifiers() []string {
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of indexed Identifiers.
func (r *Registry) Len() int { return len(r.byID) }

// Walk visits every schema of doc in a stable order: component schemas by
// name, then inline schemas under paths. fn receives the document pointer of
// each schema.
func Walk(doc *spec.Document, fn func(pointer string, s *spec.Schema)) {
	if doc == nil {
		return
	}
	if doc.Components != nil {
		for _, name := range sortedKeys(doc.Components.Schemas) {
			walkSchema(spec.ComponentPointer(name), doc.Components.Schemas[name], fn)
		}
	}
	for _, path := range doc.SortedPaths() {
		item := doc.Paths[path]
		if item == nil {
			continue
		}
		base := "#/paths/" + escape(path)
		walkParams(base+"/parameters", item.Parameters, fn)
		for _, m := range spec.Methods {
			op := item.Operation(m)
			if op == nil {
				continue
			}
			opPtr := spec.OperationPointer(path, m)
			walkParams(opPtr+"/parameters", op.Parameters, fn)
			if op.RequestBody != nil {
				walkContent(opPtr+"/requestBody/content", op.RequestBody.Content, fn)
			}
			for _, code := range sortedKeys(op.Responses) {
				if resp := op.Responses[code]; resp != nil {
					walkContent(opPtr+"/responses/"+code+"/content", resp.Content, fn)
				}
			}
		}
	}
}

func walkParams(pointer string, params []*spec.Parameter, fn func(string, *spec.Schema)) {
	for i, p := range params {
		if p != nil && p.Schema != nil {
			walkSchema(fmt.Sprintf("%s/%d/schema", pointer, i), p.Schema, fn)
		}
	}
}

func walkContent(pointer string, content spec.Content, fn func(string, *spec.Schema)) {
	for _, mime := range sortedKeys(content) {
		if mt := content[mime]; mt != nil && mt.Schema != nil {
			walkSchema(pointer+"/"+escape(mime)+"/schema", mt.Schema, fn)
		}
	}
}

func walkSchema(pointer string, s *spec.Schema, fn func(string, *spec.Schema)) {
	if s == nil {
		return
	}
	fn(pointer, s)
	for _, c := range s.Children() {
		walkSchema(pointer+c.Pointer, c.Schema, fn)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}
