package spec

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document model consumed by the contract derivation pipeline. It mirrors the
// subset of OpenAPI 3.x the derivation interprets and keeps schema properties
// in declaration order.

type HttpMethod string

const (
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	DELETE  HttpMethod = "delete"
	PATCH   HttpMethod = "patch"
	HEAD    HttpMethod = "head"
	OPTIONS HttpMethod = "options"
	TRACE   HttpMethod = "trace"
)

// Methods lists every method a PathItem can carry, in the stable order used
// for iteration and reporting.
var Methods = []HttpMethod{GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS, TRACE}

// ParseMethod maps a case-insensitive method name to its HttpMethod.
func ParseMethod(s string) (HttpMethod, error) {
	m := HttpMethod(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("spec: unknown http method %q", s)
}

// Upper returns the method as used on the wire (GET, POST, ...).
func (m HttpMethod) Upper() string { return strings.ToUpper(string(m)) }

// Parameter locations.
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
	InCookie = "cookie"
)

// JSONMediaType is the only content type the derivation interprets.
const JSONMediaType = "application/json"

type Document struct {
	OpenAPI    string               `yaml:"openapi"`
	Info       Info                 `yaml:"info"`
	Servers    []Server             `yaml:"servers,omitempty"`
	Paths      map[string]*PathItem `yaml:"paths"`
	Components *Components          `yaml:"components,omitempty"`
}

type Info struct {
	Title       string `yaml:"title"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`
}

type Server struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description,omitempty"`
}

type Components struct {
	Schemas map[string]*Schema `yaml:"schemas,omitempty"`
}

type PathItem struct {
	Summary    string       `yaml:"summary,omitempty"`
	Parameters []*Parameter `yaml:"parameters,omitempty"`
	Get        *Operation   `yaml:"get,omitempty"`
	Put        *Operation   `yaml:"put,omitempty"`
	Post       *Operation   `yaml:"post,omitempty"`
	Delete     *Operation   `yaml:"delete,omitempty"`
	Options    *Operation   `yaml:"options,omitempty"`
	Head       *Operation   `yaml:"head,omitempty"`
	Patch      *Operation   `yaml:"patch,omitempty"`
	Trace      *Operation   `yaml:"trace,omitempty"`
}

// Operation returns the operation declared for m, or nil.
func (p *PathItem) Operation(m HttpMethod) *Operation {
	if p == nil {
		return nil
	}
	switch m {
	case GET:
		return p.Get
	case PUT:
		return p.Put
	case POST:
		return p.Post
	case DELETE:
		return p.Delete
	case OPTIONS:
		return p.Options
	case HEAD:
		return p.Head
	case PATCH:
		return p.Patch
	case TRACE:
		return p.Trace
	}
	return nil
}

// SetOperation stores op under m.
func (p *PathItem) SetOperation(m HttpMethod, op *Operation) {
	switch m {
	case GET:
		p.Get = op
	case PUT:
		p.Put = op
	case POST:
		p.Post = op
	case DELETE:
		p.Delete = op
	case OPTIONS:
		p.Options = op
	case HEAD:
		p.Head = op
	case PATCH:
		p.Patch = op
	case TRACE:
		p.Trace = op
	}
}

type Operation struct {
	OperationID string       `yaml:"operationId,omitempty"`
	Summary     string       `yaml:"summary,omitempty"`
	Description string       `yaml:"description,omitempty"`
	Tags        []string     `yaml:"tags,omitempty"`
	Parameters  []*Parameter `yaml:"parameters,omitempty"`
	RequestBody *RequestBody `yaml:"requestBody,omitempty"`
	Responses   Responses    `yaml:"responses"`
}

type Parameter struct {
	// Ref is set when the parameter is a $ref to components.parameters,
	// which the derivation does not dereference.
	Ref         string  `yaml:"$ref,omitempty"`
	Name        string  `yaml:"name"`
	In          string  `yaml:"in"`
	Description string  `yaml:"description,omitempty"`
	Required    bool    `yaml:"required,omitempty"`
	Schema      *Schema `yaml:"schema,omitempty"`
}

type RequestBody struct {
	Description string  `yaml:"description,omitempty"`
	Required    bool    `yaml:"required,omitempty"`
	Content     Content `yaml:"content"`
}

type Response struct {
	Description string  `yaml:"description"`
	Content     Content `yaml:"content,omitempty"`
}

type MediaType struct {
	Schema  *Schema `yaml:"schema,omitempty"`
	Example any     `yaml:"example,omitempty"`
}

// Content maps a media type to its payload description.
type Content map[string]*MediaType

// JSON returns the application/json entry, ignoring media type parameters
// such as charset.
func (c Content) JSON() (*MediaType, bool) {
	if mt, ok := c[JSONMediaType]; ok {
		return mt, true
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		base, _, _ := strings.Cut(k, ";")
		if strings.EqualFold(strings.TrimSpace(base), JSONMediaType) {
			return c[k], true
		}
	}
	return nil, false
}

// Responses maps a status key (200, 2XX, default) to a response. Keys are kept
// verbatim even when YAML resolves them as integers.
type Responses map[string]*Response

func (r *Responses) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("responses: expected mapping at line %d", node.Line)
	}
	out := make(Responses, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var resp Response
		if err := node.Content[i+1].Decode(&resp); err != nil {
			return fmt.Errorf("responses.%s: %w", node.Content[i].Value, err)
		}
		out[node.Content[i].Value] = &resp
	}
	*r = out
	return nil
}

type Schema struct {
	ID                   string                `yaml:"$id,omitempty"`
	Ref                  string                `yaml:"$ref,omitempty"`
	Type                 TypeList              `yaml:"type,omitempty"`
	Format               string                `yaml:"format,omitempty"`
	Description          string                `yaml:"description,omitempty"`
	Enum                 []any                 `yaml:"enum,omitempty"`
	Nullable             bool                  `yaml:"nullable,omitempty"`
	Properties           Properties            `yaml:"properties,omitempty"`
	Required             []string              `yaml:"required,omitempty"`
	Items                *Schema               `yaml:"items,omitempty"`
	AdditionalProperties *AdditionalProperties `yaml:"additionalProperties,omitempty"`
	OneOf                []*Schema             `yaml:"oneOf,omitempty"`
	AnyOf                []*Schema             `yaml:"anyOf,omitempty"`
	AllOf                []*Schema             `yaml:"allOf,omitempty"`
}

// IsRequired reports whether name is listed in the schema's required set.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Children returns every directly nested schema together with the JSON
// pointer segment that leads to it.
func (s *Schema) Children() []SchemaChild {
	if s == nil {
		return nil
	}
	var out []SchemaChild
	for _, p := range s.Properties {
		out = append(out, SchemaChild{Pointer: "/properties/" + escapePointer(p.Name), Schema: p.Schema})
	}
	if s.Items != nil {
		out = append(out, SchemaChild{Pointer: "/items", Schema: s.Items})
	}
	if s.AdditionalProperties != nil && s.AdditionalProperties.Schema != nil {
		out = append(out, SchemaChild{Pointer: "/additionalProperties", Schema: s.AdditionalProperties.Schema})
	}
	for i, v := range s.OneOf {
		out = append(out, SchemaChild{Pointer: fmt.Sprintf("/oneOf/%d", i), Schema: v})
	}
	for i, v := range s.AnyOf {
		out = append(out, SchemaChild{Pointer: fmt.Sprintf("/anyOf/%d", i), Schema: v})
	}
	for i, v := range s.AllOf {
		out = append(out, SchemaChild{Pointer: fmt.Sprintf("/allOf/%d", i), Schema: v})
	}
	return out
}

type SchemaChild struct {
	Pointer string
	Schema  *Schema
}

// TypeList accepts both `type: string` and the 3.1 list form `type: [string, "null"]`.
type TypeList []string

func (t *TypeList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = TypeList{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	return fmt.Errorf("type: expected string or list at line %d", node.Line)
}

func (t TypeList) MarshalYAML() (any, error) {
	if len(t) == 1 {
		return t[0], nil
	}
	return []string(t), nil
}

// Property is one named entry of an object schema.
type Property struct {
	Name   string
	Schema *Schema
}

// Properties preserves declaration order.
type Properties []Property

func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("properties: expected mapping at line %d", node.Line)
	}
	out := make(Properties, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var s Schema
		if err := node.Content[i+1].Decode(&s); err != nil {
			return fmt.Errorf("properties.%s: %w", node.Content[i].Value, err)
		}
		out = append(out, Property{Name: node.Content[i].Value, Schema: &s})
	}
	*p = out
	return nil
}

func (p Properties) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, prop := range p {
		var value yaml.Node
		if err := value.Encode(prop.Schema); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: prop.Name}, &value)
	}
	return node, nil
}

// Get returns the schema of the named property.
func (p Properties) Get(name string) (*Schema, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Schema, true
		}
	}
	return nil, false
}

// AdditionalProperties is either a boolean or a schema for undeclared keys.
type AdditionalProperties struct {
	Allowed *bool
	Schema  *Schema
}

func (a *AdditionalProperties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var b bool
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("additionalProperties: %w", err)
		}
		a.Allowed = &b
		return nil
	}
	var s Schema
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("additionalProperties: %w", err)
	}
	a.Schema = &s
	return nil
}

func (a AdditionalProperties) MarshalYAML() (any, error) {
	if a.Schema != nil {
		return a.Schema, nil
	}
	if a.Allowed != nil {
		return *a.Allowed, nil
	}
	return true, nil
}

// Parse decodes an OpenAPI 3.x document from YAML or JSON bytes.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if doc.Paths == nil {
		doc.Paths = map[string]*PathItem{}
	}
	return &doc, nil
}

// SortedPaths returns the document's path templates in lexical order.
func (d *Document) SortedPaths() []string {
	keys := make([]string, 0, len(d.Paths))
	for p := range d.Paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	return keys
}

// ComponentPointer returns the local JSON pointer of a component schema.
func ComponentPointer(name string) string {
	return "#/components/schemas/" + escapePointer(name)
}

func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

// OperationPointer returns the JSON pointer of an operation, e.g. "#/paths/~1pets/get".
func OperationPointer(path string, m HttpMethod) string {
	return "#/paths/" + escapePointer(path) + "/" + string(m)
}
