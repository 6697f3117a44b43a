package contract

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/oasrouter/shape"
	"github.com/mark3labs/oasrouter/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func parse(t *testing.T, src string) *spec.Document {
	t.Helper()
	doc, err := spec.Parse([]byte(src))
	require.NoError(t, err)
	return doc
}

func synthesize(t *testing.T, src string, opts ...Option) *Set {
	t.Helper()
	set, err := Synthesize(context.Background(), parse(t, src), opts...)
	require.NoError(t, err)
	return set
}

const petsDoc = `openapi: 3.1.0
info: { title: pets, version: "1" }
paths:
  /pets/{id}:
    get:
      operationId: getPet
      parameters:
        - { name: id, in: path, required: true, schema: { type: string } }
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                required: [id, name]
                properties:
                  id: { type: integer }
                  name: { type: string }
  /pets:
    post:
      operationId: createPet
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
        "201": { description: created }
`

func TestSynthesize_GetPetByID(t *testing.T) {
	t.Parallel()
	set := synthesize(t, petsDoc)
	op, ok := set.Lookup(spec.GET, "/pets/{id}")
	require.True(t, ok)

	assert.Equal(t, "getPet", op.OperationID)
	assert.Equal(t, "{id: string}", op.Params.String())
	require.NotNil(t, op.Query)
	require.NotNil(t, op.Headers)
	assert.Empty(t, op.Query.Members)
	assert.Empty(t, op.Headers.Members)
	assert.Nil(t, op.RequestBody)
	assert.Equal(t, "{id: integer, name: string}", op.ResponseBody.String())
	assert.Equal(t, "200", op.ResponseStatus)
	assert.Equal(t, 200, op.StatusCode(0))
}

func TestSynthesize_OptionalRequestBody(t *testing.T) {
	t.Parallel()
	set := synthesize(t, petsDoc)
	op, ok := set.Lookup(spec.POST, "/pets")
	require.True(t, ok)

	assert.Equal(t, "{name: string, tag?: string} | absent", op.RequestBody.String())
	assert.True(t, op.BodyOptional())
	assert.Nil(t, op.ResponseBody)
	assert.Equal(t, "201", op.ResponseStatus)

	// Operations come out in path order, then method order.
	require.Len(t, set.Operations, 2)
	assert.Equal(t, "/pets", set.Operations[0].Path)
	assert.Equal(t, "/pets/{id}", set.Operations[1].Path)
}

func TestSynthesize_DuplicateIdentifierAborts(t *testing.T) {
	t.Parallel()
	set, err := Synthesize(context.Background(), parse(t, `openapi: 3.1.0
info: { title: t, version: "1" }
paths:
  /broken:
    get:
      parameters:
        - { name: missing, in: path, required: true }
      responses: {}
components:
  schemas:
    First: { $id: Pet, type: object }
    Second: { $id: Pet, type: object }
`))
	require.Error(t, err)
	assert.Nil(t, set)

	var def *DefinitionError
	require.True(t, errors.As(err, &def))
	var dup *shape.DuplicateIdentifierError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "Pet", dup.Identifier)
	// Synthesis never ran, so the broken operation is not reported.
	var syn *SynthesisError
	assert.False(t, errors.As(err, &syn))
}

func TestSynthesize_UnresolvedReferencesAbort(t *testing.T) {
	t.Parallel()
	_, err := Synthesize(context.Background(), parse(t, `openapi: 3.1.0
info: { title: t, version: "1" }
paths:
  /a:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: { $ref: Missing }
components:
  schemas:
    B:
      type: object
      properties:
        c: { $ref: '#/components/schemas/C' }
`))
	require.Error(t, err)
	var def *DefinitionError
	require.True(t, errors.As(err, &def))
	assert.True(t, errors.Is(err, shape.ErrUnresolved))
	assert.Len(t, multierr.Errors(def.Err), 2)
	assert.Contains(t, err.Error(), "#/components/schemas/B/properties/c")
}

func TestSynthesize_ParameterOverrideAndPartition(t *testing.T) {
	t.Parallel()
	set := synthesize(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /pets/{id}:
    parameters:
      - { name: id, in: path, required: true, schema: { type: string } }
      - { name: limit, in: query, schema: { type: integer } }
      - { name: X-Trace, in: header, schema: { type: string } }
    get:
      parameters:
        - { name: limit, in: query, required: true, schema: { type: string } }
        - { name: id, in: header, schema: { type: integer } }
        - { name: session, in: cookie, schema: { type: string } }
      responses:
        "200": { description: ok }
    delete:
      responses:
        "204": { description: gone }
`)
	get, ok := set.Lookup(spec.GET, "/pets/{id}")
	require.True(t, ok)
	assert.Equal(t, "{id: string}", get.Params.String())
	assert.Equal(t, "{limit: string}", get.Query.String())
	// Same name, different location: both kept.
	assert.Equal(t, "{X-Trace?: string, id?: integer}", get.Headers.String())
	assert.Equal(t, []string{"session"}, get.Cookies)

	del, ok := set.Lookup(spec.DELETE, "/pets/{id}")
	require.True(t, ok)
	assert.Equal(t, "{limit?: integer}", del.Query.String())
	assert.Nil(t, del.ResponseBody)
	assert.Equal(t, "204", del.ResponseStatus)
}

func TestSynthesize_BatchesErrors(t *testing.T) {
	t.Parallel()
	set, err := Synthesize(context.Background(), parse(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /ok:
    get:
      responses:
        "200": { description: ok }
  /items/{id}:
    get:
      responses:
        "200": { description: ok }
  /things:
    post:
      parameters:
        - { name: q, in: query }
        - { name: q, in: query }
      requestBody:
        content:
          text/plain:
            schema: { type: string }
      responses: {}
`))
	require.Error(t, err)
	assert.Nil(t, set)

	errs := multierr.Errors(err)
	require.Len(t, errs, 4)

	var fields []string
	for _, e := range errs {
		var syn *SynthesisError
		require.True(t, errors.As(e, &syn))
		fields = append(fields, syn.Method.Upper()+" "+syn.Path+" "+syn.Field)
	}
	assert.Equal(t, []string{
		"GET /items/{id} parameters",
		"POST /things parameters",
		"POST /things requestBody",
		"POST /things responses",
	}, fields)
	assert.Contains(t, err.Error(), "{id} has no path parameter")
}

func TestSynthesize_PathParameterChecks(t *testing.T) {
	t.Parallel()
	_, err := Synthesize(context.Background(), parse(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /a:
    get:
      parameters:
        - { name: stray, in: path, schema: { type: string } }
      responses:
        "200": { description: ok }
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `path parameter "stray" does not appear in the template`)
	assert.Contains(t, err.Error(), `path parameter "stray" must be required`)
}

func TestSynthesize_MappingErrorIsLocalized(t *testing.T) {
	t.Parallel()
	_, err := Synthesize(context.Background(), parse(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /a:
    get:
      parameters:
        - { name: f, in: query, schema: { type: file } }
      responses:
        "200": { description: ok }
`))
	var syn *SynthesisError
	require.True(t, errors.As(err, &syn))
	assert.Equal(t, "parameters[query:f]", syn.Field)
	var me *shape.MappingError
	assert.True(t, errors.As(err, &me))
}

func TestSynthesize_ResponseSelection(t *testing.T) {
	t.Parallel()
	set := synthesize(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /explicit:
    get:
      responses:
        "404":
          description: missing
          content:
            application/json: { schema: { type: boolean } }
        "default":
          description: error
          content:
            application/json: { schema: { type: integer } }
        "201":
          description: created
          content:
            application/json: { schema: { type: string } }
        "200":
          description: ok
  /wildcard:
    get:
      responses:
        default:
          description: error
          content:
            application/json: { schema: { type: integer } }
        2XX:
          description: ok
          content:
            application/json; charset=utf-8: { schema: { type: number } }
  /fallback:
    get:
      responses:
        default:
          description: anything
          content:
            application/json: { schema: { type: boolean } }
  /nobody:
    get:
      responses:
        "204": { description: none }
        default:
          description: none
          content:
            text/plain: { schema: { type: string } }
`)
	cases := []struct {
		path, status, body string
	}{
		{"/explicit", "201", "string"},
		{"/wildcard", "2XX", "number"},
		{"/fallback", "default", "boolean"},
		{"/nobody", "204", ""},
	}
	for _, tc := range cases {
		op, ok := set.Lookup(spec.GET, tc.path)
		require.True(t, ok, tc.path)
		assert.Equal(t, tc.status, op.ResponseStatus, tc.path)
		if tc.body == "" {
			assert.Nil(t, op.ResponseBody, tc.path)
			continue
		}
		assert.Equal(t, tc.body, op.ResponseBody.String(), tc.path)
	}
}

func TestSynthesize_RecursiveBody(t *testing.T) {
	t.Parallel()
	set := synthesize(t, `openapi: 3.1.0
info: { title: t, version: "1" }
paths:
  /tree:
    put:
      requestBody:
        required: true
        content:
          application/json:
            schema: { $ref: '#/components/schemas/Node' }
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items: { $ref: Node }
components:
  schemas:
    Node:
      $id: Node
      type: object
      properties:
        children:
          type: array
          items: { $ref: Node }
`)
	op, ok := set.Lookup(spec.PUT, "/tree")
	require.True(t, ok)
	assert.False(t, op.BodyOptional())
	assert.Equal(t, "{children?: ^Node[]}", op.RequestBody.String())
	assert.Equal(t, "Node", op.RequestBody.ID)
	assert.Equal(t, "Node[]", op.ResponseBody.String())
}

func TestSynthesize_Filters(t *testing.T) {
	t.Parallel()
	src := `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /pets:
    get:
      tags: [pets, read]
      responses: { "200": { description: ok } }
    post:
      tags: [pets, write]
      responses: { "200": { description: ok } }
  /users:
    get:
      tags: [users]
      responses: { "200": { description: ok } }
`
	set := synthesize(t, src, WithIncludeTags("pets"), WithExcludeTags("write"))
	require.Len(t, set.Operations, 1)
	assert.Equal(t, "GET /pets", set.Operations[0].String())

	set = synthesize(t, src, WithMethods("GET"), WithPathPatterns("^/users"))
	require.Len(t, set.Operations, 1)
	assert.Equal(t, "GET /users", set.Operations[0].String())

	_, err := Synthesize(context.Background(), parse(t, src), WithPathPatterns("("))
	assert.Error(t, err)
	_, err = Synthesize(context.Background(), parse(t, src), WithMethods("fetch"))
	assert.Error(t, err)
}

func TestSynthesize_Canceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Synthesize(ctx, parse(t, petsDoc))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"owner", "id"}, Placeholders("/owners/{owner}/pets/{id}"))
	assert.Empty(t, Placeholders("/pets"))
}
