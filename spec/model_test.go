package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsPropertyOrder(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(`openapi: 3.1.0
info: { title: t, version: "1" }
paths: {}
components:
  schemas:
    Pet:
      type: object
      properties:
        zeta: { type: string }
        alpha: { type: integer }
        mid:
          type: object
          properties:
            b: { type: boolean }
            a: { type: [string, "null"] }
`))
	require.NoError(t, err)
	pet := doc.Components.Schemas["Pet"]
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, propertyNames(pet))

	mid, ok := pet.Properties.Get("mid")
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, propertyNames(mid))
	a, _ := mid.Properties.Get("a")
	assert.Equal(t, TypeList{"string", "null"}, a.Type)
}

func TestParse_ResponseKeysAndContent(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(`openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /x:
    get:
      responses:
        200:
          description: ok
          content:
            application/json; charset=utf-8:
              schema: { type: string }
        default:
          description: error
`))
	require.NoError(t, err)
	op := doc.Paths["/x"].Operation(GET)
	require.NotNil(t, op)
	require.Contains(t, op.Responses, "200")
	require.Contains(t, op.Responses, "default")

	mt, ok := op.Responses["200"].Content.JSON()
	require.True(t, ok)
	assert.Equal(t, TypeList{"string"}, mt.Schema.Type)

	_, ok = op.Responses["default"].Content.JSON()
	assert.False(t, ok)
}

func TestParse_AdditionalProperties(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte(`openapi: 3.0.0
info: { title: t, version: "1" }
paths: {}
components:
  schemas:
    Closed:
      type: object
      additionalProperties: false
    Labels:
      type: object
      additionalProperties: { type: string }
`))
	require.NoError(t, err)
	closed := doc.Components.Schemas["Closed"].AdditionalProperties
	require.NotNil(t, closed)
	require.NotNil(t, closed.Allowed)
	assert.False(t, *closed.Allowed)
	assert.Nil(t, closed.Schema)

	labels := doc.Components.Schemas["Labels"].AdditionalProperties
	require.NotNil(t, labels)
	require.NotNil(t, labels.Schema)
	assert.Equal(t, TypeList{"string"}, labels.Schema.Type)
}

func TestParse_EmptyPaths(t *testing.T) {
	t.Parallel()
	doc, err := Parse([]byte("openapi: 3.0.0\ninfo: {title: t, version: '1'}\n"))
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths)
	assert.Empty(t, doc.SortedPaths())
}

func TestSchema_Children(t *testing.T) {
	t.Parallel()
	s := &Schema{
		Properties: Properties{{Name: "a/b", Schema: &Schema{}}},
		Items:      &Schema{},
		OneOf:      []*Schema{{}, {}},
	}
	var pointers []string
	for _, c := range s.Children() {
		pointers = append(pointers, c.Pointer)
	}
	assert.Equal(t, []string{"/properties/a~1b", "/items", "/oneOf/0", "/oneOf/1"}, pointers)
}

func TestParseMethod(t *testing.T) {
	t.Parallel()
	m, err := ParseMethod(" Get ")
	require.NoError(t, err)
	assert.Equal(t, GET, m)
	assert.Equal(t, "GET", m.Upper())

	_, err = ParseMethod("connect")
	assert.Error(t, err)
}

func TestPointers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "#/paths/~1pets~1{id}/get", OperationPointer("/pets/{id}", GET))
	assert.Equal(t, "#/components/schemas/Pet", ComponentPointer("Pet"))
}
