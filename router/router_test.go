package router

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const storeDoc = `openapi: 3.1.0
info: { title: store, version: "1" }
paths:
  /pets/{id}:
    get:
      parameters:
        - { name: id, in: path, required: true, schema: { type: string } }
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: { $ref: Pet }
  /pets:
    post:
      requestBody:
        required: false
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name: { type: string }
                tag: { type: string }
      responses:
        "201":
          description: created
          content:
            application/json:
              schema: { $ref: Pet }
  /owners/{owner}:
    get:
      parameters:
        - { name: owner, in: path, required: true, schema: { type: integer } }
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                required: [name]
                properties:
                  name: { type: string }
    delete:
      parameters:
        - { name: owner, in: path, required: true, schema: { type: integer } }
      responses:
        "204": { description: gone }
  /search:
    get:
      parameters:
        - { name: tags, in: query, schema: { type: array, items: { type: string } } }
        - { name: limit, in: query, schema: { type: integer } }
        - { name: X-Request-Id, in: header, required: true, schema: { type: string } }
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items: { $ref: Pet }
  /trees:
    put:
      requestBody:
        required: true
        content:
          application/json:
            schema: { $ref: Node }
      responses:
        "200": { description: ok }
components:
  schemas:
    Pet:
      $id: Pet
      type: object
      required: [id, name]
      properties:
        id: { type: integer, format: int64 }
        name: { type: string }
        tag: { type: string, nullable: true }
    Node:
      $id: Node
      type: object
      properties:
        value: { type: string }
        children:
          type: array
          items: { $ref: Node }
`

type pet struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Tag  *string `json:"tag,omitempty"`
}

type petParams struct {
	ID string `json:"id"`
}

type newPet struct {
	Name string  `json:"name"`
	Tag  *string `json:"tag,omitempty"`
}

type ownerParams struct {
	Owner int `json:"owner"`
}

type owner struct {
	Name string `json:"name"`
}

type searchQuery struct {
	Tags  []string `json:"tags"`
	Limit *int     `json:"limit"`
}

type searchHeaders struct {
	RequestID string `json:"X-Request-Id"`
}

type node struct {
	Value    *string `json:"value,omitempty"`
	Children []node  `json:"children,omitempty"`
}

func buildStore(t *testing.T) *Interface {
	t.Helper()
	doc, err := spec.Parse([]byte(storeDoc))
	require.NoError(t, err)
	set, err := contract.Synthesize(context.Background(), doc)
	require.NoError(t, err)
	iface, err := Build(set)
	require.NoError(t, err)
	return iface
}

func getPet(context.Context, *Request[petParams, Empty, Empty, NoBody], Responder[pet]) error {
	return nil
}

func member(t *testing.T, iface *Interface, m spec.HttpMethod) *Member {
	t.Helper()
	mem, err := iface.Member(m)
	require.NoError(t, err)
	return mem
}

func TestBuild_Members(t *testing.T) {
	t.Parallel()
	iface := buildStore(t)
	assert.Equal(t, []spec.HttpMethod{spec.GET, spec.POST, spec.PUT, spec.DELETE}, iface.Methods())

	get := member(t, iface, spec.GET)
	assert.Equal(t, []string{"/owners/{owner}", "/pets/{id}", "/search"}, get.Paths())
	op, ok := get.Contract("/pets/{id}")
	require.True(t, ok)
	assert.Equal(t, "{id: string}", op.Params.String())

	_, err := iface.Member(spec.PATCH)
	assert.ErrorIs(t, err, ErrNoMember)
}

func TestInterface_HasNoUntypedVerbRegistration(t *testing.T) {
	t.Parallel()
	typ := reflect.TypeOf(&Interface{})
	for _, m := range spec.Methods {
		name := m.Upper()[:1] + string(m)[1:]
		_, ok := typ.MethodByName(name)
		assert.False(t, ok, "Interface must not expose %s", name)
	}
	for _, name := range []string{"Handle", "HandleFunc"} {
		_, ok := typ.MethodByName(name)
		assert.False(t, ok, "Interface must not expose %s", name)
	}
}

func TestBuild_Conflict(t *testing.T) {
	t.Parallel()
	doc, err := spec.Parse([]byte(`openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /pets/{id}:
    get:
      parameters: [{ name: id, in: path, required: true, schema: { type: string } }]
      responses: { "200": { description: ok } }
  /pets/{petId}:
    get:
      parameters: [{ name: petId, in: path, required: true, schema: { type: string } }]
      responses: { "200": { description: ok } }
    delete:
      parameters: [{ name: petId, in: path, required: true, schema: { type: string } }]
      responses: { "204": { description: ok } }
`))
	require.NoError(t, err)
	set, err := contract.Synthesize(context.Background(), doc)
	require.NoError(t, err)

	iface, err := Build(set)
	require.Error(t, err)
	assert.Nil(t, iface)
	assert.ErrorIs(t, err, ErrConflict)
	require.Len(t, multierr.Errors(err), 1)

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, spec.GET, ce.Method)
	assert.Equal(t, []string{"/pets/{id}", "/pets/{petId}"}, ce.Paths)
}

func TestBuild_OverlappingTemplates(t *testing.T) {
	t.Parallel()
	doc, err := spec.Parse([]byte(`openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /a/{x}/b:
    get:
      parameters: [{ name: x, in: path, required: true, schema: { type: string } }]
      responses: { "200": { description: ok } }
  /a/b/{y}:
    get:
      parameters: [{ name: y, in: path, required: true, schema: { type: string } }]
      responses: { "200": { description: ok } }
`))
	require.NoError(t, err)
	set, err := contract.Synthesize(context.Background(), doc)
	require.NoError(t, err)

	iface, err := Build(set)
	require.Error(t, err)
	assert.Nil(t, iface)
	assert.ErrorIs(t, err, ErrConflict)

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, spec.GET, ce.Method)
	assert.ElementsMatch(t, []string{"/a/{x}/b", "/a/b/{y}"}, ce.Paths)
	assert.Contains(t, err.Error(), "/a/{x}/b and /a/b/{y}")
}

func TestRegistrationError(t *testing.T) {
	t.Parallel()
	first := &route{op: &contract.Operation{Method: spec.GET, Path: "/a/b/{y}"}, pattern: "GET /a/b/{p0}"}
	second := &route{op: &contract.Operation{Method: spec.GET, Path: "/a/{x}/b"}, pattern: "GET /a/{p0}/b"}

	err := registrationError(second, `pattern "GET /a/{p0}/b" conflicts with pattern "GET /a/b/{p0}"`, []*route{first})
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"/a/b/{y}", "/a/{x}/b"}, ce.Paths)

	bad := &route{op: &contract.Operation{Method: spec.GET, Path: "/a b"}, pattern: "GET /a b"}
	err = registrationError(bad, "parsing \"GET /a b\": bad pattern", []*route{first})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestMuxPattern(t *testing.T) {
	t.Parallel()
	pattern, wildcards, err := muxPattern(spec.GET, "/owners/{owner-id}/pets/{id}")
	require.NoError(t, err)
	assert.Equal(t, "GET /owners/{p0}/pets/{p1}", pattern)
	assert.Equal(t, map[string]string{"owner-id": "p0", "id": "p1"}, wildcards)

	pattern, _, err = muxPattern(spec.POST, "/dir/")
	require.NoError(t, err)
	assert.Equal(t, "POST /dir/{$}", pattern)

	_, _, err = muxPattern(spec.GET, "/files/{name}.json")
	assert.Error(t, err)
	_, _, err = muxPattern(spec.GET, "files")
	assert.Error(t, err)
}

func TestMember_Handle(t *testing.T) {
	t.Parallel()
	iface := buildStore(t)
	get := member(t, iface, spec.GET)

	require.NoError(t, get.Handle("/pets/{id}", Bind(getPet)))

	err := get.Handle("/pets/{id}", Bind(getPet))
	var re *RegistrationError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, err.Error(), "already registered")

	err = get.Handle("/cats", Bind(getPet))
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "/cats", re.Path)

	assert.Error(t, get.Handle("/search", nil))
}

func TestMember_RejectsOtherPathsHandler(t *testing.T) {
	t.Parallel()
	iface := buildStore(t)
	get := member(t, iface, spec.GET)

	err := get.Handle("/owners/{owner}", Bind(getPet))
	var re *RegistrationError
	require.True(t, errors.As(err, &re))
	var ce *ConformanceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "params", ce.Part)

	ownerHandler := Bind(func(context.Context, *Request[ownerParams, Empty, Empty, NoBody], Responder[owner]) error { return nil })
	assert.Error(t, get.Handle("/pets/{id}", ownerHandler))
	assert.NoError(t, get.Handle("/owners/{owner}", ownerHandler))
}

func TestConformance(t *testing.T) {
	t.Parallel()
	type badPet struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	type pickyPet struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Tag  string `json:"tag"`
	}
	type extraPet struct {
		ID    int64   `json:"id"`
		Name  string  `json:"name"`
		Tag   *string `json:"tag"`
		Color string  `json:"color"`
	}
	type badNode struct {
		Value    *string `json:"value"`
		Children []node  `json:"children"`
	}
	cases := []struct {
		name   string
		method spec.HttpMethod
		path   string
		h      Handler
		part   string
	}{
		{"required body for optional", spec.POST, "/pets",
			Bind(func(context.Context, *Request[Empty, Empty, Empty, newPet], Responder[pet]) error { return nil }), "body"},
		{"no body for declared body", spec.POST, "/pets",
			Bind(func(context.Context, *Request[Empty, Empty, Empty, NoBody], Responder[pet]) error { return nil }), "body"},
		{"optional for required body", spec.PUT, "/trees",
			Bind(func(context.Context, *Request[Empty, Empty, Empty, Optional[node]], Responder[NoBody]) error { return nil }), "body"},
		{"wrong property type", spec.GET, "/pets/{id}",
			Bind(func(context.Context, *Request[petParams, Empty, Empty, NoBody], Responder[badPet]) error { return nil }), "response"},
		{"optional property not nilable", spec.GET, "/pets/{id}",
			Bind(func(context.Context, *Request[petParams, Empty, Empty, NoBody], Responder[pickyPet]) error { return nil }), "response"},
		{"undeclared field", spec.GET, "/pets/{id}",
			Bind(func(context.Context, *Request[petParams, Empty, Empty, NoBody], Responder[extraPet]) error { return nil }), "response"},
		{"body for bodiless response", spec.DELETE, "/owners/{owner}",
			Bind(func(context.Context, *Request[ownerParams, Empty, Empty, NoBody], Responder[owner]) error { return nil }), "response"},
		{"required query as value", spec.GET, "/search",
			Bind(func(context.Context, *Request[Empty, struct {
				Tags  []string `json:"tags"`
				Limit int      `json:"limit"`
			}, searchHeaders, NoBody], Responder[[]pet]) error {
				return nil
			}), "query"},
		{"missing header field", spec.GET, "/search",
			Bind(func(context.Context, *Request[Empty, searchQuery, Empty, NoBody], Responder[[]pet]) error { return nil }), "headers"},
		{"recursive type mismatch", spec.PUT, "/trees",
			Bind(func(context.Context, *Request[Empty, Empty, Empty, badNode], Responder[NoBody]) error { return nil }), "body"},
		{"pointer to optional body", spec.POST, "/pets",
			Bind(func(context.Context, *Request[Empty, Empty, Empty, *Optional[newPet]], Responder[pet]) error { return nil }), "body"},
		{"untyped body for object", spec.PUT, "/trees",
			Bind(func(context.Context, *Request[Empty, Empty, Empty, any], Responder[NoBody]) error { return nil }), "body"},
		{"untyped optional body for object", spec.POST, "/pets",
			Bind(func(context.Context, *Request[Empty, Empty, Empty, Optional[any]], Responder[pet]) error { return nil }), "body"},
		{"untyped response for object", spec.GET, "/pets/{id}",
			Bind(func(context.Context, *Request[petParams, Empty, Empty, NoBody], Responder[any]) error { return nil }), "response"},
		{"raw response for array", spec.GET, "/search",
			Bind(func(context.Context, *Request[Empty, searchQuery, searchHeaders, NoBody], Responder[json.RawMessage]) error { return nil }), "response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			iface := buildStore(t)
			err := member(t, iface, tc.method).Handle(tc.path, tc.h)
			var ce *ConformanceError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tc.part, ce.Part)
		})
	}
}

func TestConformance_Accepts(t *testing.T) {
	t.Parallel()
	iface := buildStore(t)
	require.NoError(t, member(t, iface, spec.PUT).Handle("/trees",
		Bind(func(context.Context, *Request[Empty, Empty, Empty, node], Responder[NoBody]) error { return nil })))
	require.NoError(t, member(t, iface, spec.GET).Handle("/search",
		Bind(func(context.Context, *Request[Empty, searchQuery, searchHeaders, NoBody], Responder[[]*pet]) error { return nil })))
	require.NoError(t, member(t, iface, spec.POST).Handle("/pets",
		Bind(func(context.Context, *Request[Empty, Empty, Empty, Optional[newPet]], Responder[pet]) error { return nil })))
}

func TestVerify(t *testing.T) {
	t.Parallel()
	iface := buildStore(t)
	require.Len(t, iface.Missing(), 6)

	require.NoError(t, member(t, iface, spec.GET).Handle("/pets/{id}", Bind(getPet)))
	err := iface.Verify()
	var me *MissingHandlersError
	require.True(t, errors.As(err, &me))
	assert.Len(t, me.Routes, 5)
	assert.NotContains(t, me.Routes, Route{Method: spec.GET, Path: "/pets/{id}"})
	assert.Contains(t, me.Routes, Route{Method: spec.DELETE, Path: "/owners/{owner}"})
}
