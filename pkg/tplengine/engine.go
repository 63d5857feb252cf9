package tplengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// TemplateEngine resolves {{ expr }} expressions inside step configuration
// values against an execution context snapshot. Resolution is read-only:
// callers hand in a snapshotted copy of the context, never a live reference.
type TemplateEngine struct {
	funcs template.FuncMap
}

func NewEngine() *TemplateEngine {
	funcs := sprig.FuncMap()
	// Overridden so {{ now() }} resolves to a stable wire format instead of
	// a time.Time Go value.
	funcs["now"] = func() string {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return &TemplateEngine{funcs: funcs}
}

// HasTemplate returns true if the string contains template markers
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// RenderString renders a template string against the given context.
// Unresolvable references fail: templates run with missingkey=error.
func (e *TemplateEngine) RenderString(templateStr string, context map[string]any) (string, error) {
	if !HasTemplate(templateStr) {
		return templateStr, nil
	}
	normalized := NormalizeExpr(templateStr)
	tmpl, err := template.New("inline").Option("missingkey=error").Funcs(e.funcs).Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	rendered := buf.String()
	if strings.Contains(rendered, "<no value>") {
		return "", fmt.Errorf("template resolved to missing value: %s", templateStr)
	}
	return rendered, nil
}

// ParseMap walks a step config value and resolves every templated string in
// it, preserving non-string values as-is.
func (e *TemplateEngine) ParseMap(value any, data map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case string:
		return e.parseStringValue(v, data)
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			parsedVal, err := e.ParseMap(val, data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template in map key %s: %w", k, err)
			}
			result[k] = parsedVal
		}
		return result, nil
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			parsedVal, err := e.ParseMap(val, data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template in array index %d: %w", i, err)
			}
			result[i] = parsedVal
		}
		return result, nil
	default:
		return v, nil
	}
}

// parseStringValue handles parsing of string values that may contain templates
func (e *TemplateEngine) parseStringValue(v string, data map[string]any) (any, error) {
	if !HasTemplate(v) {
		return v, nil
	}

	// A value that is a single simple reference keeps its original type
	// (maps and slices survive instead of being stringified).
	if path, ok := simpleReferencePath(v); ok {
		if obj, found := traverseObjectPath(data, path); found {
			return obj, nil
		}
		return nil, fmt.Errorf("unresolvable template reference: %s", v)
	}

	rendered, err := e.RenderString(v, data)
	if err != nil {
		return nil, err
	}

	// Recover primitive types from rendered output.
	if rendered == "true" {
		return true, nil
	}
	if rendered == "false" {
		return false, nil
	}
	if strings.HasPrefix(rendered, "{") || strings.HasPrefix(rendered, "[") {
		var jsonObj any
		if json.Unmarshal([]byte(rendered), &jsonObj) == nil {
			return jsonObj, nil
		}
	}
	return rendered, nil
}

// simpleReferencePath reports whether the whole string is one bare or dotted
// context reference, and returns its path segments.
func simpleReferencePath(tmpl string) ([]string, bool) {
	trimmed := strings.TrimSpace(tmpl)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return nil, false
	}
	if strings.Count(trimmed, "{{") != 1 || strings.Count(trimmed, "}}") != 1 {
		return nil, false
	}
	content := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	if content == "" || strings.ContainsAny(content, "|() ") {
		return nil, false
	}
	content = strings.TrimPrefix(content, ".")
	if content == "" {
		return nil, false
	}
	return strings.Split(content, "."), true
}

func traverseObjectPath(data map[string]any, parts []string) (any, bool) {
	var current any = data
	for _, part := range parts {
		if part == "" {
			continue
		}
		currentMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := currentMap[part]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}
