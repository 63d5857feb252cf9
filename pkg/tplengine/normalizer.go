package tplengine

import (
	"regexp"
	"strings"
)

// Definitions authored against the engine use bare references like
// {{projectId}} or {{metrics.total}} and builtin calls like {{now()}}.
// NormalizeExpr rewrites those into Go template form ({{ .projectId }},
// {{ now }}) so text/template can evaluate them. Expressions already in Go
// template form pass through untouched.
var (
	bareRefPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z0-9_]+)*)\s*\}\}`)
	builtinPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\(\)\s*\}\}`)
)

func NormalizeExpr(s string) string {
	if !HasTemplate(s) {
		return s
	}
	s = builtinPattern.ReplaceAllString(s, "{{ $1 }}")
	return bareRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}"))
		if strings.HasPrefix(inner, ".") {
			return match
		}
		if isBuiltinName(inner) {
			return "{{ " + inner + " }}"
		}
		return "{{ ." + inner + " }}"
	})
}

// Builtins that may appear without parentheses after normalization.
func isBuiltinName(name string) bool {
	switch name {
	case "now", "uuidv4":
		return true
	default:
		return false
	}
}
