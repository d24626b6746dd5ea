package engine

import (
	"reflect"
	"regexp"
	"strings"
)

// templatePattern matches a config string whose entire value is one template
// expression. Anything else passes through untouched; there are no operators,
// filters, or escapes, and templates never nest.
var templatePattern = regexp.MustCompile(`^\s*\{\{\s*(.+?)\s*\}\}\s*$`)

// ResolveConfig walks a node's custom configuration and replaces every
// full-string template "{{ dotted.path }}" with the value at that path in
// the execution context. Lists and maps recurse; non-template strings and
// non-string values are returned unchanged. A path that fails to resolve
// yields nil, and the node runs with the nullified field.
func ResolveConfig(cfg map[string]any, ectx map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = resolveValue(v, ectx)
	}
	return out
}

func resolveValue(v any, ectx map[string]any) any {
	switch val := v.(type) {
	case string:
		m := templatePattern.FindStringSubmatch(val)
		if m == nil {
			return val
		}
		return lookupPath(ectx, m[1])
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveValue(item, ectx)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, ectx)
		}
		return out
	default:
		return v
	}
}

// lookupPath evaluates a dotted path against the context: each step is a map
// key lookup or, for struct values, an exported field lookup. Any failed
// step resolves the whole path to nil.
func lookupPath(ectx map[string]any, path string) any {
	var current any = ectx
	for _, step := range strings.Split(path, ".") {
		if step == "" {
			return nil
		}
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[step]
			if !ok {
				return nil
			}
			current = v
		default:
			v, ok := fieldLookup(current, step)
			if !ok {
				return nil
			}
			current = v
		}
	}
	return current
}

// fieldLookup reads an exported struct field (or map with string-like keys)
// by name via reflection. Handler results are usually plain JSON maps, but
// custom handlers may return structs.
func fieldLookup(v any, name string) (any, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(name))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	default:
		return nil, false
	}
}
