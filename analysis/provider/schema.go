package provider

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

var sentimentSchema = mustStrictSchema(sentimentVerdict{})

// strictSchema reflects v into the JSON schema dialect accepted by structured-output endpoints:
// inline definitions, closed objects and every property required.
func strictSchema(v any) (map[string]any, error) {
	r := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("strictSchema: marshal: %w", err)
	}
	var node map[string]any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("strictSchema: unmarshal: %w", err)
	}
	delete(node, "$schema")
	delete(node, "$id")
	closeObjects(node)
	return node, nil
}

func mustStrictSchema(v any) map[string]any {
	s, err := strictSchema(v)
	if err != nil {
		panic(err)
	}
	return s
}

func closeObjects(node map[string]any) {
	props, _ := node["properties"].(map[string]any)
	if t, _ := node["type"].(string); t == "object" {
		node["additionalProperties"] = false
		if len(props) > 0 {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sort.Strings(required)
			node["required"] = required
		}
	}
	for _, p := range props {
		if child, ok := p.(map[string]any); ok {
			closeObjects(child)
		}
	}
	for _, key := range []string{"items", "additionalProperties"} {
		if child, ok := node[key].(map[string]any); ok {
			closeObjects(child)
		}
	}
}
