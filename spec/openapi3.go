package spec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

const componentSchemaPrefix = "#/components/schemas/"

// FromOpenAPI3 adapts a kin-openapi document. Local component references
// ("#/components/schemas/Pet") are kept as named references so recursive
// definitions stay finite; any other reference must already be resolved.
func FromOpenAPI3(doc *openapi3.T) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	out := &Document{
		OpenAPI: doc.OpenAPI,
		Paths:   make(map[string]*PathItem, len(doc.Paths)),
	}
	if doc.Info != nil {
		out.Info = Info{
			Title:       strings.TrimSpace(doc.Info.Title),
			Version:     strings.TrimSpace(doc.Info.Version),
			Description: strings.TrimSpace(doc.Info.Description),
		}
	}
	for _, s := range doc.Servers {
		if s == nil {
			continue
		}
		out.Servers = append(out.Servers, Server{URL: s.URL, Description: s.Description})
	}

	if doc.Components != nil && len(doc.Components.Schemas) > 0 {
		out.Components = &Components{Schemas: make(map[string]*Schema, len(doc.Components.Schemas))}
		for name, ref := range doc.Components.Schemas {
			s, err := fromSchemaRef(ref, ComponentPointer(name))
			if err != nil {
				return nil, err
			}
			out.Components.Schemas[name] = s
		}
	}

	for path, item := range doc.Paths {
		if item == nil {
			continue
		}
		pi := &PathItem{Summary: item.Summary}
		params, err := fromParameters(item.Parameters, "#/paths/"+escapePointer(path)+"/parameters")
		if err != nil {
			return nil, err
		}
		pi.Parameters = params
		for _, pair := range []struct {
			m HttpMethod
			o *openapi3.Operation
		}{
			{GET, item.Get},
			{POST, item.Post},
			{PUT, item.Put},
			{DELETE, item.Delete},
			{PATCH, item.Patch},
			{HEAD, item.Head},
			{OPTIONS, item.Options},
			{TRACE, item.Trace},
		} {
			if pair.o == nil {
				continue
			}
			op, err := fromOperation(pair.o, OperationPointer(path, pair.m))
			if err != nil {
				return nil, err
			}
			pi.SetOperation(pair.m, op)
		}
		out.Paths[path] = pi
	}
	return out, nil
}

func fromOperation(o *openapi3.Operation, pointer string) (*Operation, error) {
	op := &Operation{
		OperationID: strings.TrimSpace(o.OperationID),
		Summary:     strings.TrimSpace(o.Summary),
		Description: strings.TrimSpace(o.Description),
		Tags:        append([]string(nil), o.Tags...),
	}
	params, err := fromParameters(o.Parameters, pointer+"/parameters")
	if err != nil {
		return nil, err
	}
	op.Parameters = params

	if o.RequestBody != nil {
		if o.RequestBody.Value == nil {
			return nil, fmt.Errorf("%s/requestBody: reference %q is not inlined", pointer, o.RequestBody.Ref)
		}
		content, err := fromContent(o.RequestBody.Value.Content, pointer+"/requestBody/content")
		if err != nil {
			return nil, err
		}
		op.RequestBody = &RequestBody{
			Description: o.RequestBody.Value.Description,
			Required:    o.RequestBody.Value.Required,
			Content:     content,
		}
	}

	op.Responses = make(Responses, len(o.Responses))
	for code, rref := range o.Responses {
		if rref == nil || rref.Value == nil {
			continue
		}
		resp := &Response{}
		if rref.Value.Description != nil {
			resp.Description = *rref.Value.Description
		}
		content, err := fromContent(rref.Value.Content, pointer+"/responses/"+code+"/content")
		if err != nil {
			return nil, err
		}
		resp.Content = content
		op.Responses[code] = resp
	}
	return op, nil
}

func fromParameters(refs openapi3.Parameters, pointer string) ([]*Parameter, error) {
	out := make([]*Parameter, 0, len(refs))
	for i, pref := range refs {
		if pref == nil {
			continue
		}
		if pref.Value == nil {
			out = append(out, &Parameter{Ref: pref.Ref})
			continue
		}
		p := pref.Value
		param := &Parameter{
			Name:        strings.TrimSpace(p.Name),
			In:          strings.TrimSpace(p.In),
			Description: p.Description,
			Required:    p.Required,
		}
		if p.Schema != nil {
			s, err := fromSchemaRef(p.Schema, fmt.Sprintf("%s/%d/schema", pointer, i))
			if err != nil {
				return nil, err
			}
			param.Schema = s
		}
		out = append(out, param)
	}
	return out, nil
}

func fromContent(content openapi3.Content, pointer string) (Content, error) {
	if len(content) == 0 {
		return nil, nil
	}
	out := make(Content, len(content))
	for mime, mt := range content {
		if mt == nil {
			continue
		}
		media := &MediaType{Example: mt.Example}
		if mt.Schema != nil {
			s, err := fromSchemaRef(mt.Schema, pointer+"/"+escapePointer(mime)+"/schema")
			if err != nil {
				return nil, err
			}
			media.Schema = s
		}
		out[mime] = media
	}
	return out, nil
}

func fromSchemaRef(ref *openapi3.SchemaRef, pointer string) (*Schema, error) {
	if ref == nil {
		return nil, nil
	}
	if strings.HasPrefix(ref.Ref, componentSchemaPrefix) {
		return &Schema{Ref: ref.Ref}, nil
	}
	if ref.Value == nil {
		if ref.Ref != "" {
			return nil, fmt.Errorf("%s: reference %q is not inlined", pointer, ref.Ref)
		}
		return &Schema{}, nil
	}
	v := ref.Value
	s := &Schema{
		Format:      strings.TrimSpace(v.Format),
		Description: strings.TrimSpace(v.Description),
		Nullable:    v.Nullable,
		Required:    append([]string(nil), v.Required...),
	}
	if t := strings.TrimSpace(v.Type); t != "" {
		s.Type = TypeList{t}
	}
	if len(v.Enum) > 0 {
		s.Enum = append([]any(nil), v.Enum...)
	}
	var err error
	if s.Items, err = fromSchemaRef(v.Items, pointer+"/items"); err != nil {
		return nil, err
	}
	// kin-openapi keeps properties in a map; sort for a stable member order.
	names := make([]string, 0, len(v.Properties))
	for name := range v.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child, err := fromSchemaRef(v.Properties[name], pointer+"/properties/"+escapePointer(name))
		if err != nil {
			return nil, err
		}
		s.Properties = append(s.Properties, Property{Name: name, Schema: child})
	}
	for _, group := range []struct {
		key  string
		refs openapi3.SchemaRefs
		dst  *[]*Schema
	}{
		{"oneOf", v.OneOf, &s.OneOf},
		{"anyOf", v.AnyOf, &s.AnyOf},
		{"allOf", v.AllOf, &s.AllOf},
	} {
		for i, r := range group.refs {
			child, err := fromSchemaRef(r, fmt.Sprintf("%s/%s/%d", pointer, group.key, i))
			if err != nil {
				return nil, err
			}
			*group.dst = append(*group.dst, child)
		}
	}
	return s, nil
}
