package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/oriys/lambdakit/internal/domain"
)

// PayloadSchema checks encoded payloads against a JSON Schema subset before
// they are sent: type, enum, required, properties, items, minLength,
// maxLength, pattern, minimum, maximum, minItems, maxItems.
type PayloadSchema struct {
	root schemaNode
}

type schemaNode map[string]any

// ParseSchema parses a schema document. Patterns are compiled up front so a
// bad schema fails at construction rather than on the first call.
func ParseSchema(raw []byte) (*PayloadSchema, error) {
	var root schemaNode
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse payload schema: %w", err)
	}
	if err := root.compile("$"); err != nil {
		return nil, err
	}
	return &PayloadSchema{root: root}, nil
}

// Validate checks one encoded payload.
func (s *PayloadSchema) Validate(payload []byte) error {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return fmt.Errorf("payload is not JSON: %w", err)
	}
	return s.root.check("$", value)
}

func (n schemaNode) compile(path string) error {
	if p, ok := n["pattern"].(string); ok {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("%s: invalid pattern %q: %w", path, p, err)
		}
		n["pattern"] = re
	}
	if props, ok := n["properties"].(map[string]any); ok {
		for name, raw := range props {
			child, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if err := schemaNode(child).compile(path + "." + name); err != nil {
				return err
			}
		}
	}
	if items, ok := n["items"].(map[string]any); ok {
		if err := schemaNode(items).compile(path + "[]"); err != nil {
			return err
		}
	}
	return nil
}

func (n schemaNode) check(path string, value any) error {
	if want, ok := n["type"].(string); ok {
		if got := jsonType(value); got != want && !(want == "number" && got == "integer") {
			return fmt.Errorf("%s: expected %s, got %s", path, want, got)
		}
	}
	if allowed, ok := n["enum"].([]any); ok && !inEnum(allowed, value) {
		return fmt.Errorf("%s: value not in enum", path)
	}

	switch v := value.(type) {
	case string:
		return n.checkString(path, v)
	case float64:
		return n.checkNumber(path, v)
	case map[string]any:
		return n.checkObject(path, v)
	case []any:
		return n.checkArray(path, v)
	}
	return nil
}

// jsonType names the JSON type of a decoded value; whole numbers report
// "integer" so they satisfy both integer and number schemas.
func jsonType(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64:
		if x == math.Trunc(x) {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func inEnum(allowed []any, v any) bool {
	want, _ := json.Marshal(v)
	for _, a := range allowed {
		got, _ := json.Marshal(a)
		if string(got) == string(want) {
			return true
		}
	}
	return false
}

func (n schemaNode) checkString(path, s string) error {
	if min, ok := n["minLength"].(float64); ok && len(s) < int(min) {
		return fmt.Errorf("%s: length %d below minLength %d", path, len(s), int(min))
	}
	if max, ok := n["maxLength"].(float64); ok && len(s) > int(max) {
		return fmt.Errorf("%s: length %d above maxLength %d", path, len(s), int(max))
	}
	if re, ok := n["pattern"].(*regexp.Regexp); ok && !re.MatchString(s) {
		return fmt.Errorf("%s: does not match %q", path, re.String())
	}
	return nil
}

func (n schemaNode) checkNumber(path string, f float64) error {
	if min, ok := n["minimum"].(float64); ok && f < min {
		return fmt.Errorf("%s: %v below minimum %v", path, f, min)
	}
	if max, ok := n["maximum"].(float64); ok && f > max {
		return fmt.Errorf("%s: %v above maximum %v", path, f, max)
	}
	return nil
}

func (n schemaNode) checkObject(path string, obj map[string]any) error {
	if required, ok := n["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, present := obj[name]; name != "" && !present {
				return fmt.Errorf("%s: missing required field %q", path, name)
			}
		}
	}
	props, _ := n["properties"].(map[string]any)
	for name, raw := range props {
		child, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		v, present := obj[name]
		if !present {
			continue
		}
		if err := schemaNode(child).check(path+"."+name, v); err != nil {
			return err
		}
	}
	return nil
}

func (n schemaNode) checkArray(path string, arr []any) error {
	if min, ok := n["minItems"].(float64); ok && len(arr) < int(min) {
		return fmt.Errorf("%s: %d items below minItems %d", path, len(arr), int(min))
	}
	if max, ok := n["maxItems"].(float64); ok && len(arr) > int(max) {
		return fmt.Errorf("%s: %d items above maxItems %d", path, len(arr), int(max))
	}
	items, ok := n["items"].(map[string]any)
	if !ok {
		return nil
	}
	for i, v := range arr {
		if err := schemaNode(items).check(fmt.Sprintf("%s[%d]", path, i), v); err != nil {
			return err
		}
	}
	return nil
}

// checkSchema runs the schema registered for env's function, if any.
func (g *Gateway) checkSchema(env domain.Envelope) error {
	s, ok := g.schemas[env.FunctionName]
	if !ok {
		return nil
	}
	if err := s.Validate(env.Payload); err != nil {
		return &domain.Error{
			Kind:    domain.KindValidation,
			Op:      "invoke",
			Target:  env.FunctionName,
			Message: "payload rejected by schema: " + err.Error(),
			Err:     err,
		}
	}
	return nil
}
