package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// preprocessV2ForCompatibility rewrites Swagger v2 operations so kin-openapi can
// convert them into a single JSON request body:
//   - formData parameters are removed, only JSON bodies are modeled;
//   - multiple body parameters are merged into one body parameter whose schema
//     is an object with one property per original parameter.
//
// It returns possibly-modified YAML bytes and whether anything changed. On error
// the original bytes are returned with modified=false.
func preprocessV2ForCompatibility(data []byte) ([]byte, bool, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return data, false, err
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok || len(paths) == 0 {
		return data, false, nil
	}
	modified := false
	for _, pim := range paths {
		pi, ok := pim.(map[string]any)
		if !ok {
			continue
		}
		for method, opm := range pi {
			if _, err := ParseMethod(method); err != nil {
				continue
			}
			op, ok := opm.(map[string]any)
			if !ok {
				continue
			}
			params, ok := op["parameters"].([]any)
			if !ok || len(params) == 0 {
				continue
			}
			if rewritten, changed := rewriteV2Params(params); changed {
				op["parameters"] = rewritten
				modified = true
			}
		}
	}
	if !modified {
		return data, false, nil
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return data, false, err
	}
	return out, true, nil
}

func rewriteV2Params(params []any) ([]any, bool) {
	var bodies []map[string]any
	kept := make([]any, 0, len(params))
	changed := false
	for _, p := range params {
		pm, _ := p.(map[string]any)
		if pm == nil {
			continue
		}
		switch in := asString(pm["in"]); {
		case strings.EqualFold(in, "formData"):
			changed = true
		case strings.EqualFold(in, "body"):
			bodies = append(bodies, pm)
		default:
			kept = append(kept, pm)
		}
	}
	switch len(bodies) {
	case 0:
		return kept, changed
	case 1:
		return append([]any{bodies[0]}, kept...), changed
	}

	props := map[string]any{}
	required := make([]any, 0, len(bodies))
	for _, pm := range bodies {
		name := asString(pm["name"])
		if name == "" {
			name = "field"
		}
		schema := extractSchemaFromParam(pm)
		if schema == nil {
			schema = map[string]any{"type": "string"}
		}
		props[name] = schema
		if rb, _ := pm["required"].(bool); rb {
			required = append(required, name)
		}
	}
	bodySchema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		bodySchema["required"] = required
	}
	merged := map[string]any{
		"in":       "body",
		"name":     "body",
		"required": len(required) > 0,
		"schema":   bodySchema,
	}
	return append([]any{merged}, kept...), true
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func extractSchemaFromParam(pm map[string]any) map[string]any {
	if sch, ok := pm["schema"].(map[string]any); ok {
		return sch
	}
	t, _ := pm["type"].(string)
	if t == "" {
		return nil
	}
	m := map[string]any{"type": t}
	if it, ok := pm["items"].(map[string]any); ok {
		m["items"] = it
	}
	if f, ok := pm["format"].(string); ok && f != "" {
		m["format"] = f
	}
	return m
}
